package campaign

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrSaleNotConfigured rejects purchases before the creator configured a
	// price and split.
	ErrSaleNotConfigured = errors.New("campaign: course sale not configured")
	// ErrPriceMismatch rejects purchases where the vault received a different
	// amount than the configured price.
	ErrPriceMismatch = errors.New("campaign: received amount does not match course price")
	// ErrReceiptMintFailed aborts a purchase whose course receipt could not be
	// minted; the sale's product is the receipt.
	ErrReceiptMintFailed = errors.New("campaign: course receipt mint failed")
	// ErrIssuerNotOwned rejects sale configuration until issuer ownership has
	// been transferred to the campaign vault.
	ErrIssuerNotOwned = errors.New("campaign: receipt issuer not owned by campaign")
	// ErrNoRevenue rejects withdrawals while the backer pool is empty.
	ErrNoRevenue = errors.New("campaign: no backer revenue accrued")
	// ErrNothingToWithdraw rejects withdrawals already covered by prior
	// payouts; calling again after the pool grows succeeds.
	ErrNothingToWithdraw = errors.New("campaign: nothing to withdraw")
)

// SetCourseSale replaces the course sale configuration. Only the creator may
// configure the sale, only once the campaign is Successful, and the course
// receipt issuer must already be owned by the campaign vault so purchases
// cannot end up unmintable. The state gate keeps redistribution from starting
// while contribution weights can still change.
func (e *Engine) SetCourseSale(id [32]byte, caller [20]byte, sale *SaleParams) error {
	if err := e.enter(id); err != nil {
		return err
	}
	defer e.exit(id)
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	c = c.Clone()
	if err := e.syncStatus(c); err != nil {
		return err
	}
	if c.State != StateSuccessful {
		return ErrWrongState
	}
	if caller != c.Creator {
		return ErrNotCreator
	}
	if err := sale.Validate(); err != nil {
		return err
	}
	issuer, err := e.issuerFor(c.CourseIssuer)
	if err != nil {
		return err
	}
	owner, err := issuer.Owner()
	if err != nil {
		return err
	}
	if owner != c.Vault {
		return ErrIssuerNotOwned
	}
	c.Sale = sale.Clone()
	if err := e.state.CampaignPut(c); err != nil {
		return err
	}
	e.emit(SaleConfiguredEvent(id, c.Sale))
	return nil
}

// Purchase settles one primary course sale. The price is pulled from the
// buyer with balance-delta measurement; a delta short of the configured price
// aborts the sale with a compensating return transfer. The course receipt
// mint is fatal, unlike the investor receipt on pledge, because the receipt is
// the product being sold. The backer pool share (plus truncation dust) is
// accounted before the creator and platform shares leave the vault.
func (e *Engine) Purchase(id [32]byte, buyer [20]byte) (uint64, error) {
	if err := e.enter(id); err != nil {
		return 0, err
	}
	defer e.exit(id)
	c, err := e.loadCampaign(id)
	if err != nil {
		return 0, err
	}
	c = c.Clone()
	if err := e.syncStatus(c); err != nil {
		return 0, err
	}
	if c.State != StateSuccessful {
		return 0, ErrWrongState
	}
	if c.Sale == nil || c.Sale.Price == nil || c.Sale.Price.Sign() <= 0 {
		return 0, ErrSaleNotConfigured
	}
	snapshot := c.Clone()
	gateway, err := e.gatewayFor(c)
	if err != nil {
		return 0, err
	}
	price := cloneBigInt(c.Sale.Price)
	before, err := gateway.BalanceOf(c.Vault)
	if err != nil {
		return 0, err
	}
	if err := gateway.TransferFrom(c.Vault, buyer, c.Vault, price); err != nil {
		return 0, fmt.Errorf("campaign: purchase transfer: %w", err)
	}
	after, err := gateway.BalanceOf(c.Vault)
	if err != nil {
		return 0, err
	}
	received := new(big.Int).Sub(after, before)
	if received.Cmp(price) != 0 {
		e.returnToBuyer(gateway, c, buyer, received)
		return 0, ErrPriceMismatch
	}
	receiptID := c.NextCourseReceipt
	issuer, err := e.issuerFor(c.CourseIssuer)
	if err == nil {
		err = issuer.Mint(buyer, receiptID)
	}
	if err != nil {
		e.returnToBuyer(gateway, c, buyer, received)
		return 0, fmt.Errorf("%w: %v", ErrReceiptMintFailed, err)
	}
	creatorAmt, backerAmt, platformAmt := splitSale(received, c.Sale)
	c.Pool.TotalBackerPool = new(big.Int).Add(c.Pool.TotalBackerPool, backerAmt)
	c.NextCourseReceipt++
	if err := e.state.CampaignPut(c); err != nil {
		return 0, err
	}
	if creatorAmt.Sign() > 0 {
		if err := gateway.Transfer(c.Vault, c.Creator, creatorAmt); err != nil {
			// The minted receipt cannot be unwound, so its id stays consumed
			// even though the sale is rolled back; a retry mints the next id
			// instead of colliding with the issuer's duplicate guard.
			snapshot.NextCourseReceipt = c.NextCourseReceipt
			if restoreErr := e.state.CampaignPut(snapshot); restoreErr != nil {
				return 0, fmt.Errorf("campaign: rollback after failed sale payout: %v (original: %w)", restoreErr, err)
			}
			e.returnToBuyer(gateway, c, buyer, received)
			return 0, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
		}
	}
	owed := new(big.Int).Add(cloneBigInt(c.PlatformOwed), platformAmt)
	if owed.Sign() > 0 && c.Sale.PlatformWallet != ([20]byte{}) {
		if err := gateway.Transfer(c.Vault, c.Sale.PlatformWallet, owed); err != nil {
			// Once the creator share settled the sale can no longer be
			// unwound without shorting the buyer. The undelivered platform
			// share stays reserved in the vault and is retried on the next
			// purchase.
			c.PlatformOwed = owed
			if putErr := e.state.CampaignPut(c); putErr != nil {
				return 0, fmt.Errorf("campaign: record deferred platform share: %v (push: %w)", putErr, err)
			}
			e.emit(PlatformShareDeferredEvent(id, c.Sale.PlatformWallet, owed))
		} else if cloneBigInt(c.PlatformOwed).Sign() > 0 {
			c.PlatformOwed = big.NewInt(0)
			if err := e.state.CampaignPut(c); err != nil {
				return 0, err
			}
		}
	}
	e.emit(ReceiptMintedEvent(c.ID, c.CourseIssuer, buyer, receiptID))
	e.emit(CoursePurchasedEvent(id, buyer, receiptID, received, creatorAmt, backerAmt, platformAmt))
	return receiptID, nil
}

// returnToBuyer compensates an aborted purchase by sending the pulled tokens
// back. The transfer is best-effort: the abort error dominates.
func (e *Engine) returnToBuyer(gateway AssetGateway, c *Campaign, buyer [20]byte, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	_ = gateway.Transfer(c.Vault, buyer, amount)
}

// WithdrawBackerRevenue pays the caller the difference between their live
// proportional entitlement against the accumulated pool and what they already
// withdrew. The computation is O(1) per call: no iteration over backers.
func (e *Engine) WithdrawBackerRevenue(id [32]byte, caller [20]byte) (*big.Int, error) {
	if err := e.enter(id); err != nil {
		return nil, err
	}
	defer e.exit(id)
	c, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	c = c.Clone()
	if err := e.syncStatus(c); err != nil {
		return nil, err
	}
	if c.State != StateSuccessful {
		return nil, ErrWrongState
	}
	snapshot := c.Clone()
	if c.Pool.TotalBackerPool.Sign() <= 0 {
		return nil, ErrNoRevenue
	}
	contributed, err := e.state.ContributionGet(id, caller)
	if err != nil {
		return nil, err
	}
	contributed = cloneBigInt(contributed)
	if contributed.Sign() <= 0 {
		return nil, ErrNoContribution
	}
	if c.TotalPledged.Sign() <= 0 {
		return nil, ErrNoContribution
	}
	entitled := entitlement(c.Pool.TotalBackerPool, contributed, c.TotalPledged)
	withdrawn, err := e.state.WithdrawnGet(id, caller)
	if err != nil {
		return nil, err
	}
	withdrawn = cloneBigInt(withdrawn)
	payout := new(big.Int).Sub(entitled, withdrawn)
	if payout.Sign() <= 0 {
		return nil, ErrNothingToWithdraw
	}
	gateway, err := e.gatewayFor(c)
	if err != nil {
		return nil, err
	}
	if err := e.state.WithdrawnPut(id, caller, entitled); err != nil {
		return nil, err
	}
	c.Pool.BackerPaidOut = new(big.Int).Add(c.Pool.BackerPaidOut, payout)
	if err := e.state.CampaignPut(c); err != nil {
		return nil, err
	}
	if err := gateway.Transfer(c.Vault, caller, payout); err != nil {
		restoreErr := e.state.WithdrawnPut(id, caller, withdrawn)
		if restoreErr == nil {
			restoreErr = e.state.CampaignPut(snapshot)
		}
		if restoreErr != nil {
			return nil, fmt.Errorf("campaign: rollback after failed withdrawal: %v (original: %w)", restoreErr, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}
	e.emit(RevenueWithdrawnEvent(id, caller, payout, entitled))
	return payout, nil
}
