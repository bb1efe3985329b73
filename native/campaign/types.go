package campaign

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// State represents the lifecycle states of a campaign. A campaign starts in
// Funding and transitions exactly once, after the deadline, to Successful or
// Failed. Both outcomes are terminal.
type State uint8

const (
	StateFunding State = iota
	StateSuccessful
	StateFailed
)

// Valid reports whether the status value is within the supported range.
func (s State) Valid() bool {
	switch s {
	case StateFunding, StateSuccessful, StateFailed:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case StateFunding:
		return "funding"
	case StateSuccessful:
		return "successful"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Milestone is a creator-proposed partial fund release gated by backer
// approval weight. The list is fixed at campaign creation; a milestone is
// immutable once released.
type Milestone struct {
	Description    string   `json:"description"`
	Payout         *big.Int `json:"payout"`
	Released       bool     `json:"released"`
	ApprovalWeight *big.Int `json:"approvalWeight"`
}

// Clone returns a deep copy of the milestone.
func (m *Milestone) Clone() *Milestone {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Payout != nil {
		clone.Payout = new(big.Int).Set(m.Payout)
	}
	if m.ApprovalWeight != nil {
		clone.ApprovalWeight = new(big.Int).Set(m.ApprovalWeight)
	}
	return &clone
}

// Validate ensures the milestone definition is sane prior to persistence.
func (m *Milestone) Validate() error {
	if m == nil {
		return errors.New("campaign: milestone must not be nil")
	}
	if strings.TrimSpace(m.Description) == "" {
		return errors.New("campaign: milestone description required")
	}
	if m.Payout == nil || m.Payout.Sign() <= 0 {
		return errors.New("campaign: milestone payout must be positive")
	}
	return nil
}

// SaleParams captures the course sale configuration. Each configuration call
// fully replaces the prior split; the three shares are expressed in basis
// points and must sum to the full denominator.
type SaleParams struct {
	Price            *big.Int `json:"price"`
	CreatorShareBps  uint32   `json:"creatorShareBps"`
	BackerShareBps   uint32   `json:"backerShareBps"`
	PlatformShareBps uint32   `json:"platformShareBps"`
	PlatformWallet   [20]byte `json:"platformWallet"`
}

// Clone returns a deep copy of the sale parameters.
func (p *SaleParams) Clone() *SaleParams {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	}
	return &clone
}

// Validate checks the configured sale split.
func (p *SaleParams) Validate() error {
	if p == nil {
		return errors.New("campaign: sale params must not be nil")
	}
	if p.Price == nil || p.Price.Sign() <= 0 {
		return errors.New("campaign: course price must be positive")
	}
	sum := uint64(p.CreatorShareBps) + uint64(p.BackerShareBps) + uint64(p.PlatformShareBps)
	if sum != bpsDenominator {
		return fmt.Errorf("campaign: share split must sum to %d bps, got %d", bpsDenominator, sum)
	}
	if p.PlatformShareBps > 0 && p.PlatformWallet == ([20]byte{}) {
		return errors.New("campaign: platform wallet required for a non-zero platform share")
	}
	return nil
}

// RevenuePool tracks the cumulative backer revenue reserve. TotalBackerPool
// and BackerPaidOut are both monotonic non-decreasing; their difference is the
// outstanding liability the vault balance must always cover.
type RevenuePool struct {
	TotalBackerPool *big.Int `json:"totalBackerPool"`
	BackerPaidOut   *big.Int `json:"backerPaidOut"`
}

// Liability returns the pool amount not yet withdrawn by backers.
func (p RevenuePool) Liability() *big.Int {
	total := p.TotalBackerPool
	if total == nil {
		total = big.NewInt(0)
	}
	paid := p.BackerPaidOut
	if paid == nil {
		paid = big.NewInt(0)
	}
	return new(big.Int).Sub(total, paid)
}

// Campaign aggregates the full state owned by one funding round: ledger
// parameters, milestone governance, the course sale configuration and the
// backer revenue pool.
type Campaign struct {
	ID                  [32]byte     `json:"id"`
	Creator             [20]byte     `json:"creator"`
	Asset               string       `json:"asset"`
	Vault               [20]byte     `json:"vault"`
	Goal                *big.Int     `json:"goal"`
	Deadline            int64        `json:"deadline"`
	CreatedAt           int64        `json:"createdAt"`
	State               State        `json:"state"`
	TotalPledged        *big.Int     `json:"totalPledged"`
	FundsClaimed        bool         `json:"fundsClaimed"`
	InvestorIssuer      string       `json:"investorIssuer"`
	CourseIssuer        string       `json:"courseIssuer"`
	NextInvestorReceipt uint64       `json:"nextInvestorReceipt"`
	NextCourseReceipt   uint64       `json:"nextCourseReceipt"`
	Milestones          []*Milestone `json:"milestones"`
	Sale                *SaleParams  `json:"sale,omitempty"`
	Pool                RevenuePool  `json:"pool"`
	PlatformOwed        *big.Int     `json:"platformOwed,omitempty"`
}

// ReservedBalance returns the vault balance that must never leave for the
// creator or a refund: the outstanding backer liability plus any platform
// share whose push transfer is still pending delivery.
func (c *Campaign) ReservedBalance() *big.Int {
	reserved := c.Pool.Liability()
	if c.PlatformOwed != nil {
		reserved.Add(reserved, c.PlatformOwed)
	}
	return reserved
}

// Clone returns a deep copy of the campaign so callers can safely mutate the
// copy without affecting the stored instance.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Goal != nil {
		clone.Goal = new(big.Int).Set(c.Goal)
	}
	if c.TotalPledged != nil {
		clone.TotalPledged = new(big.Int).Set(c.TotalPledged)
	}
	if len(c.Milestones) > 0 {
		clone.Milestones = make([]*Milestone, len(c.Milestones))
		for i, m := range c.Milestones {
			clone.Milestones[i] = m.Clone()
		}
	}
	clone.Sale = c.Sale.Clone()
	if c.Pool.TotalBackerPool != nil {
		clone.Pool.TotalBackerPool = new(big.Int).Set(c.Pool.TotalBackerPool)
	}
	if c.Pool.BackerPaidOut != nil {
		clone.Pool.BackerPaidOut = new(big.Int).Set(c.Pool.BackerPaidOut)
	}
	if c.PlatformOwed != nil {
		clone.PlatformOwed = new(big.Int).Set(c.PlatformOwed)
	}
	return &clone
}

// MilestonePayoutTotal sums the payouts of every milestone.
func (c *Campaign) MilestonePayoutTotal() *big.Int {
	total := big.NewInt(0)
	if c == nil {
		return total
	}
	for _, m := range c.Milestones {
		if m != nil && m.Payout != nil {
			total.Add(total, m.Payout)
		}
	}
	return total
}

// AllMilestonesReleased reports whether every milestone has been paid out. A
// campaign without milestones trivially satisfies the check.
func (c *Campaign) AllMilestonesReleased() bool {
	if c == nil {
		return false
	}
	for _, m := range c.Milestones {
		if m != nil && !m.Released {
			return false
		}
	}
	return true
}

// SanitizeCampaign validates and normalises the supplied definition, returning
// a cloned instance with non-nil amount fields. The original is not mutated.
func SanitizeCampaign(c *Campaign) (*Campaign, error) {
	if c == nil {
		return nil, errors.New("campaign: nil campaign")
	}
	clone := c.Clone()
	if strings.TrimSpace(clone.Asset) == "" {
		return nil, errors.New("campaign: asset required")
	}
	if clone.Creator == ([20]byte{}) {
		return nil, errors.New("campaign: creator required")
	}
	if clone.Goal == nil || clone.Goal.Sign() <= 0 {
		return nil, errors.New("campaign: funding goal must be positive")
	}
	if clone.Deadline <= 0 {
		return nil, errors.New("campaign: deadline must be positive")
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("campaign: invalid state %d", clone.State)
	}
	if clone.TotalPledged == nil {
		clone.TotalPledged = big.NewInt(0)
	}
	if clone.TotalPledged.Sign() < 0 {
		return nil, errors.New("campaign: total pledged must be non-negative")
	}
	for _, m := range clone.Milestones {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	if clone.MilestonePayoutTotal().Cmp(clone.Goal) > 0 {
		return nil, errors.New("campaign: milestone payouts exceed funding goal")
	}
	if clone.Sale != nil {
		if err := clone.Sale.Validate(); err != nil {
			return nil, err
		}
	}
	if clone.Pool.TotalBackerPool == nil {
		clone.Pool.TotalBackerPool = big.NewInt(0)
	}
	if clone.Pool.BackerPaidOut == nil {
		clone.Pool.BackerPaidOut = big.NewInt(0)
	}
	if clone.Pool.BackerPaidOut.Cmp(clone.Pool.TotalBackerPool) > 0 {
		return nil, errors.New("campaign: backer payouts exceed pool")
	}
	if clone.PlatformOwed == nil {
		clone.PlatformOwed = big.NewInt(0)
	}
	if clone.PlatformOwed.Sign() < 0 {
		return nil, errors.New("campaign: platform owed must be non-negative")
	}
	return clone, nil
}
