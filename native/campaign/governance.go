package campaign

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrMilestoneNotFound rejects votes and releases on invalid indexes.
	ErrMilestoneNotFound = errors.New("campaign: milestone index out of range")
	// ErrAlreadyVoted rejects a second vote from the same backer.
	ErrAlreadyVoted = errors.New("campaign: already voted on milestone")
	// ErrAlreadyReleased rejects operations on a released milestone.
	ErrAlreadyReleased = errors.New("campaign: milestone already released")
	// ErrInsufficientApproval rejects releases below the strict majority of
	// the total ever pledged.
	ErrInsufficientApproval = errors.New("campaign: approval below strict majority of total pledged")
)

// Vote records a backer's approval of a milestone. The vote weight is the
// caller's total contribution, which is frozen once the funding phase ends, so
// the weight is equivalent to a snapshot taken at success.
func (e *Engine) Vote(id [32]byte, voter [20]byte, index int) (*big.Int, error) {
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
	if index < 0 || index >= len(c.Milestones) {
		return nil, ErrMilestoneNotFound
	}
	milestone := c.Milestones[index]
	if milestone.Released {
		return nil, ErrAlreadyReleased
	}
	weight, err := e.state.ContributionGet(id, voter)
	if err != nil {
		return nil, err
	}
	weight = cloneBigInt(weight)
	if weight.Sign() <= 0 {
		return nil, ErrNoContribution
	}
	voted, err := e.state.VoteHas(id, index, voter)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, ErrAlreadyVoted
	}
	if err := e.state.VotePut(id, index, voter); err != nil {
		return nil, err
	}
	milestone.ApprovalWeight = new(big.Int).Add(cloneBigInt(milestone.ApprovalWeight), weight)
	if err := e.state.CampaignPut(c); err != nil {
		return nil, err
	}
	e.emit(MilestoneVotedEvent(id, index, voter, weight, milestone.ApprovalWeight))
	return new(big.Int).Set(milestone.ApprovalWeight), nil
}

// Release pays a milestone out to the creator once its approval weight passes
// a strict majority of the total ever pledged. The payout is bounded by the
// liability check so the backer revenue reserve is never spent, and the
// released flag is set before the transfer.
func (e *Engine) Release(id [32]byte, caller [20]byte, index int) (*big.Int, error) {
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
	snapshot := c.Clone()
	if c.State != StateSuccessful {
		return nil, ErrWrongState
	}
	if caller != c.Creator {
		return nil, ErrNotCreator
	}
	if index < 0 || index >= len(c.Milestones) {
		return nil, ErrMilestoneNotFound
	}
	milestone := c.Milestones[index]
	if milestone.Released {
		return nil, ErrAlreadyReleased
	}
	if !hasStrictMajority(milestone.ApprovalWeight, c.TotalPledged) {
		return nil, ErrInsufficientApproval
	}
	gateway, err := e.gatewayFor(c)
	if err != nil {
		return nil, err
	}
	balance, err := gateway.BalanceOf(c.Vault)
	if err != nil {
		return nil, err
	}
	payout := cloneBigInt(milestone.Payout)
	required := new(big.Int).Add(c.ReservedBalance(), payout)
	if balance.Cmp(required) < 0 {
		return nil, ErrLiabilityExceeded
	}
	milestone.Released = true
	if err := e.state.CampaignPut(c); err != nil {
		return nil, err
	}
	if err := gateway.Transfer(c.Vault, c.Creator, payout); err != nil {
		if restoreErr := e.state.CampaignPut(snapshot); restoreErr != nil {
			return nil, fmt.Errorf("campaign: rollback after failed release: %v (original: %w)", restoreErr, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}
	e.emit(MilestoneReleasedEvent(id, index, payout, c.Creator))
	return payout, nil
}
