package campaign

import (
	"math/big"
	"testing"
)

func TestSplitSaleConservesAmount(t *testing.T) {
	sale := &SaleParams{
		CreatorShareBps:  3_333,
		BackerShareBps:   3_333,
		PlatformShareBps: 3_334,
	}
	for _, amount := range []int64{1, 3, 10, 99, 100, 101, 9_999, 10_001} {
		creatorAmt, backerAmt, platformAmt := splitSale(big.NewInt(amount), sale)
		sum := new(big.Int).Add(creatorAmt, backerAmt)
		sum.Add(sum, platformAmt)
		if sum.Cmp(big.NewInt(amount)) != 0 {
			t.Fatalf("amount %d: parts sum to %s", amount, sum)
		}
	}
}

func TestSplitSaleDustFoldsIntoBackerShare(t *testing.T) {
	sale := &SaleParams{
		CreatorShareBps:  5_000,
		BackerShareBps:   3_000,
		PlatformShareBps: 2_000,
	}
	creatorAmt, backerAmt, platformAmt := splitSale(big.NewInt(101), sale)
	if creatorAmt.Cmp(big.NewInt(50)) != 0 || platformAmt.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("creator/platform = %s/%s, want 50/20", creatorAmt, platformAmt)
	}
	if backerAmt.Cmp(big.NewInt(31)) != 0 {
		t.Fatalf("backer = %s, want 30 plus 1 dust", backerAmt)
	}
}

func TestEntitlementProportional(t *testing.T) {
	cases := []struct {
		pool, contributed, total, want int64
	}{
		{100, 600, 1_000, 60},
		{100, 400, 1_000, 40},
		{1, 1, 3, 0},      // truncates down
		{100, 0, 1_000, 0},
		{0, 600, 1_000, 0},
	}
	for _, tc := range cases {
		got := entitlement(big.NewInt(tc.pool), big.NewInt(tc.contributed), big.NewInt(tc.total))
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("entitlement(%d, %d, %d) = %s, want %d", tc.pool, tc.contributed, tc.total, got, tc.want)
		}
	}
}

func TestEntitlementZeroTotalPledged(t *testing.T) {
	got := entitlement(big.NewInt(100), big.NewInt(50), big.NewInt(0))
	if got.Sign() != 0 {
		t.Fatalf("got %s, want 0 for zero denominator", got)
	}
}

func TestHasStrictMajority(t *testing.T) {
	cases := []struct {
		weight, total int64
		want          bool
	}{
		{0, 1_000, false},
		{500, 1_000, false}, // exactly half fails
		{501, 1_000, true},
		{1_000, 1_000, true},
		{500, 1_001, false}, // floor(1001/2) = 500, not exceeded
		{501, 1_001, true},
	}
	for _, tc := range cases {
		got := hasStrictMajority(big.NewInt(tc.weight), big.NewInt(tc.total))
		if got != tc.want {
			t.Fatalf("hasStrictMajority(%d, %d) = %v, want %v", tc.weight, tc.total, got, tc.want)
		}
	}
}
