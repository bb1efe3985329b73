package campaign

import "math/big"

const bpsDenominator = 10_000

var bpsDivisor = big.NewInt(bpsDenominator)

// splitSale divides a received sale amount into creator, backer and platform
// shares according to the configured basis points. Integer truncation dust is
// folded into the backer share so the three parts always sum exactly to the
// input amount.
func splitSale(amount *big.Int, sale *SaleParams) (creatorAmt, backerAmt, platformAmt *big.Int) {
	if amount == nil {
		amount = big.NewInt(0)
	}
	creatorAmt = shareOf(amount, sale.CreatorShareBps)
	backerAmt = shareOf(amount, sale.BackerShareBps)
	platformAmt = shareOf(amount, sale.PlatformShareBps)
	dust := new(big.Int).Sub(amount, creatorAmt)
	dust.Sub(dust, backerAmt)
	dust.Sub(dust, platformAmt)
	backerAmt.Add(backerAmt, dust)
	return creatorAmt, backerAmt, platformAmt
}

func shareOf(amount *big.Int, bps uint32) *big.Int {
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return share.Div(share, bpsDivisor)
}

// entitlement computes the live proportional share of the accumulated backer
// pool owed to a contribution weight: pool * contributed / totalPledged. The
// figure is cumulative; callers subtract what was already withdrawn.
func entitlement(pool, contributed, totalPledged *big.Int) *big.Int {
	if pool == nil || contributed == nil || totalPledged == nil || totalPledged.Sign() == 0 {
		return big.NewInt(0)
	}
	entitled := new(big.Int).Mul(pool, contributed)
	return entitled.Div(entitled, totalPledged)
}

// hasStrictMajority reports whether the accumulated approval weight exceeds
// half of the total ever pledged. The denominator is fixed at total pledged,
// not votes cast, so insufficient turnout can never release a milestone.
func hasStrictMajority(weight, totalPledged *big.Int) bool {
	if weight == nil || totalPledged == nil {
		return false
	}
	half := new(big.Int).Div(totalPledged, big.NewInt(2))
	return weight.Cmp(half) > 0
}
