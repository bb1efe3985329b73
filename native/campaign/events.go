package campaign

import (
	"math/big"

	"fundvault/core/events"
	"fundvault/core/types"
)

const (
	// EventTypeCreated is emitted when a campaign is instantiated.
	EventTypeCreated = "campaign.created"
	// EventTypePledged is emitted for every accounted pledge.
	EventTypePledged = "campaign.pledged"
	// EventTypeReceiptMinted is emitted when a receipt mint succeeds.
	EventTypeReceiptMinted = "campaign.receipt.minted"
	// EventTypeReceiptMintFailed is emitted when an investor receipt mint
	// fails; the pledge itself still stands.
	EventTypeReceiptMintFailed = "campaign.receipt.mint_failed"
	// EventTypeOutcome is emitted exactly once when the funding phase closes.
	EventTypeOutcome = "campaign.outcome"
	// EventTypeMilestoneVoted is emitted when a backer approves a milestone.
	EventTypeMilestoneVoted = "campaign.milestone.voted"
	// EventTypeMilestoneReleased is emitted when a milestone payout settles.
	EventTypeMilestoneReleased = "campaign.milestone.released"
	// EventTypeFundsClaimed is emitted when the creator claims the remainder.
	EventTypeFundsClaimed = "campaign.funds.claimed"
	// EventTypeRefundClaimed is emitted for every backer refund.
	EventTypeRefundClaimed = "campaign.refund.claimed"
	// EventTypeSaleConfigured is emitted when the course sale split changes.
	EventTypeSaleConfigured = "campaign.sale.configured"
	// EventTypeCoursePurchased is emitted for every settled course sale.
	EventTypeCoursePurchased = "campaign.course.purchased"
	// EventTypeRevenueWithdrawn is emitted when a backer withdraws revenue.
	EventTypeRevenueWithdrawn = "campaign.revenue.withdrawn"
	// EventTypePlatformShareDeferred is emitted when a platform share push
	// fails and the amount is held back in the vault for a later retry.
	EventTypePlatformShareDeferred = "campaign.platform.deferred"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

// CreatedEvent returns the structured payload announcing a new campaign.
func CreatedEvent(c *Campaign) *types.Event {
	return &types.Event{
		Type: EventTypeCreated,
		Attributes: map[string]string{
			"campaign": hexID(c.ID),
			"creator":  hexAddr(c.Creator),
			"asset":    c.Asset,
			"goal":     formatAmount(c.Goal),
			"deadline": intToString(c.Deadline),
		},
	}
}

// PledgedEvent records an accounted pledge using the actually-received amount.
func PledgedEvent(id [32]byte, backer [20]byte, received, contributed, totalPledged *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePledged,
		Attributes: map[string]string{
			"campaign":     hexID(id),
			"backer":       hexAddr(backer),
			"amount":       formatAmount(received),
			"contributed":  formatAmount(contributed),
			"totalPledged": formatAmount(totalPledged),
		},
	}
}

// ReceiptMintedEvent records a successful receipt mint.
func ReceiptMintedEvent(id [32]byte, issuer string, to [20]byte, receiptID uint64) *types.Event {
	return &types.Event{
		Type: EventTypeReceiptMinted,
		Attributes: map[string]string{
			"campaign": hexID(id),
			"issuer":   issuer,
			"to":       hexAddr(to),
			"receipt":  uintToString(receiptID),
		},
	}
}

// ReceiptMintFailedEvent records a tolerated investor receipt mint failure.
func ReceiptMintFailedEvent(id [32]byte, issuer string, to [20]byte, receiptID uint64, reason string) *types.Event {
	return &types.Event{
		Type: EventTypeReceiptMintFailed,
		Attributes: map[string]string{
			"campaign": hexID(id),
			"issuer":   issuer,
			"to":       hexAddr(to),
			"receipt":  uintToString(receiptID),
			"reason":   reason,
		},
	}
}

// OutcomeEvent records the one-shot funding outcome decision.
func OutcomeEvent(id [32]byte, state State, totalPledged, goal *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeOutcome,
		Attributes: map[string]string{
			"campaign":     hexID(id),
			"state":        state.String(),
			"totalPledged": formatAmount(totalPledged),
			"goal":         formatAmount(goal),
		},
	}
}

// MilestoneVotedEvent records an approval vote and the updated weight.
func MilestoneVotedEvent(id [32]byte, index int, voter [20]byte, weight, approval *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeMilestoneVoted,
		Attributes: map[string]string{
			"campaign": hexID(id),
			"index":    intToString(int64(index)),
			"voter":    hexAddr(voter),
			"weight":   formatAmount(weight),
			"approval": formatAmount(approval),
		},
	}
}

// MilestoneReleasedEvent records a settled milestone payout.
func MilestoneReleasedEvent(id [32]byte, index int, payout *big.Int, creator [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeMilestoneReleased,
		Attributes: map[string]string{
			"campaign": hexID(id),
			"index":    intToString(int64(index)),
			"payout":   formatAmount(payout),
			"creator":  hexAddr(creator),
		},
	}
}

// FundsClaimedEvent records the creator's final claim.
func FundsClaimedEvent(id [32]byte, creator [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeFundsClaimed,
		Attributes: map[string]string{
			"campaign": hexID(id),
			"creator":  hexAddr(creator),
			"amount":   formatAmount(amount),
		},
	}
}

// RefundClaimedEvent records a backer refund after a failed campaign.
func RefundClaimedEvent(id [32]byte, backer [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRefundClaimed,
		Attributes: map[string]string{
			"campaign": hexID(id),
			"backer":   hexAddr(backer),
			"amount":   formatAmount(amount),
		},
	}
}

// SaleConfiguredEvent records a course sale split replacement.
func SaleConfiguredEvent(id [32]byte, sale *SaleParams) *types.Event {
	return &types.Event{
		Type: EventTypeSaleConfigured,
		Attributes: map[string]string{
			"campaign":       hexID(id),
			"price":          formatAmount(sale.Price),
			"creatorBps":     uintToString(uint64(sale.CreatorShareBps)),
			"backerBps":      uintToString(uint64(sale.BackerShareBps)),
			"platformBps":    uintToString(uint64(sale.PlatformShareBps)),
			"platformWallet": hexAddr(sale.PlatformWallet),
		},
	}
}

// CoursePurchasedEvent records a settled primary sale and its split.
func CoursePurchasedEvent(id [32]byte, buyer [20]byte, receiptID uint64, amount, creatorAmt, backerAmt, platformAmt *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeCoursePurchased,
		Attributes: map[string]string{
			"campaign":    hexID(id),
			"buyer":       hexAddr(buyer),
			"receipt":     uintToString(receiptID),
			"amount":      formatAmount(amount),
			"creatorAmt":  formatAmount(creatorAmt),
			"backerAmt":   formatAmount(backerAmt),
			"platformAmt": formatAmount(platformAmt),
		},
	}
}

// RevenueWithdrawnEvent records a lazy proportional backer withdrawal.
func RevenueWithdrawnEvent(id [32]byte, backer [20]byte, payout, entitled *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRevenueWithdrawn,
		Attributes: map[string]string{
			"campaign": hexID(id),
			"backer":   hexAddr(backer),
			"payout":   formatAmount(payout),
			"entitled": formatAmount(entitled),
		},
	}
}

// PlatformShareDeferredEvent records a platform share kept in the vault after
// its push transfer failed. The amount is cumulative across deferred sales.
func PlatformShareDeferredEvent(id [32]byte, wallet [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypePlatformShareDeferred,
		Attributes: map[string]string{
			"campaign": hexID(id),
			"wallet":   hexAddr(wallet),
			"amount":   formatAmount(amount),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return big.NewInt(v).String()
}

func uintToString(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}
