package campaign

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"fundvault/core/events"
	"fundvault/core/types"
)

var (
	errNilState        = errors.New("campaign engine: state not configured")
	errNilAssets       = errors.New("campaign engine: asset resolver not configured")
	errNilReceipts     = errors.New("campaign engine: receipt resolver not configured")
	errCampaignExists  = errors.New("campaign engine: campaign already exists")
	errNothingReceived = errors.New("campaign engine: transfer delivered no tokens")

	// ErrCampaignNotFound is returned when no campaign matches the identifier.
	ErrCampaignNotFound = errors.New("campaign: not found")
	// ErrReentrantCall rejects recursive re-entry through a collaborator.
	ErrReentrantCall = errors.New("campaign: reentrant call")
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("campaign: amount must be positive")
	// ErrFundingClosed rejects pledges after the funding phase ended.
	ErrFundingClosed = errors.New("campaign: funding phase closed")
	// ErrWrongState rejects operations issued against the wrong lifecycle state.
	ErrWrongState = errors.New("campaign: operation not allowed in current state")
	// ErrNotCreator rejects creator-only operations from other callers.
	ErrNotCreator = errors.New("campaign: caller is not the creator")
	// ErrNoContribution rejects backer-only operations from non-backers.
	ErrNoContribution = errors.New("campaign: no contribution")
	// ErrAlreadyClaimed rejects a second creator fund claim.
	ErrAlreadyClaimed = errors.New("campaign: funds already claimed")
	// ErrMilestonesPending blocks the final claim while milestones are open.
	ErrMilestonesPending = errors.New("campaign: unreleased milestones remain")
	// ErrNothingToClaim is returned when no claimable remainder exists.
	ErrNothingToClaim = errors.New("campaign: nothing to claim")
	// ErrLiabilityExceeded guards the backer revenue reserve. It is returned
	// whenever a payout would leave the vault unable to cover outstanding
	// backer entitlements and must never be bypassable.
	ErrLiabilityExceeded = errors.New("campaign: payout would impair backer liability")
	// ErrPayoutFailed wraps an outbound transfer failure after state was
	// rolled back to its pre-call snapshot.
	ErrPayoutFailed = errors.New("campaign: payout transfer failed")
)

// AssetGateway is the external fungible-asset boundary. Declared transfer
// amounts are never trusted; callers measure vault balance deltas instead.
type AssetGateway interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
	BalanceOf(owner [20]byte) (*big.Int, error)
}

// ReceiptIssuer mints uniquely numbered receipts. Issuers are owned by the
// campaign vault; receipts are auditable artefacts, not accounting truth.
type ReceiptIssuer interface {
	Mint(to [20]byte, id uint64) error
	Owner() ([20]byte, error)
}

// AssetResolver resolves an asset symbol to its transfer gateway.
type AssetResolver interface {
	Asset(symbol string) (AssetGateway, error)
}

// ReceiptResolver resolves a receipt issuer by name.
type ReceiptResolver interface {
	Issuer(name string) (ReceiptIssuer, error)
}

type engineState interface {
	CampaignPut(*Campaign) error
	CampaignGet(id [32]byte) (*Campaign, bool, error)
	ContributionGet(id [32]byte, backer [20]byte) (*big.Int, error)
	ContributionPut(id [32]byte, backer [20]byte, amount *big.Int) error
	WithdrawnGet(id [32]byte, backer [20]byte) (*big.Int, error)
	WithdrawnPut(id [32]byte, backer [20]byte, amount *big.Int) error
	VoteHas(id [32]byte, index int, voter [20]byte) (bool, error)
	VotePut(id [32]byte, index int, voter [20]byte) error
}

// Engine wires the campaign accounting and governance state machine with
// persistence, event emission and the external asset/receipt collaborators.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	assets   AssetResolver
	receipts ReceiptResolver
	nowFn    func() int64

	guardMu sync.Mutex
	entered map[[32]byte]bool
}

// NewEngine constructs a campaign engine with a no-op emitter. Callers
// override collaborators via the Set* methods.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		entered: make(map[[32]byte]bool),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssetResolver configures the fungible-asset gateway lookup.
func (e *Engine) SetAssetResolver(assets AssetResolver) { e.assets = assets }

// SetReceiptResolver configures the receipt issuer lookup.
func (e *Engine) SetReceiptResolver(receipts ReceiptResolver) { e.receipts = receipts }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// enter flags the campaign as mid-operation. Operations are serialized by the
// registry's per-campaign lock; the flag only trips when a collaborator calls
// back into the engine before the outer operation finished.
func (e *Engine) enter(id [32]byte) error {
	e.guardMu.Lock()
	defer e.guardMu.Unlock()
	if e.entered == nil {
		e.entered = make(map[[32]byte]bool)
	}
	if e.entered[id] {
		return ErrReentrantCall
	}
	e.entered[id] = true
	return nil
}

func (e *Engine) exit(id [32]byte) {
	e.guardMu.Lock()
	delete(e.entered, id)
	e.guardMu.Unlock()
}

func (e *Engine) loadCampaign(id [32]byte) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	c, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || c == nil {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

func (e *Engine) gatewayFor(c *Campaign) (AssetGateway, error) {
	if e.assets == nil {
		return nil, errNilAssets
	}
	return e.assets.Asset(c.Asset)
}

func (e *Engine) issuerFor(name string) (ReceiptIssuer, error) {
	if e.receipts == nil {
		return nil, errNilReceipts
	}
	return e.receipts.Issuer(name)
}

// Create validates and persists a new campaign definition. Allow-listing and
// issuer provisioning are the registry's concern; the engine only guards the
// accounting invariants.
func (e *Engine) Create(c *Campaign) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sanitized, err := SanitizeCampaign(c)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if sanitized.Deadline <= now {
		return nil, fmt.Errorf("campaign: deadline must be in the future")
	}
	if _, ok, err := e.state.CampaignGet(sanitized.ID); err != nil {
		return nil, err
	} else if ok {
		return nil, errCampaignExists
	}
	sanitized.CreatedAt = now
	sanitized.State = StateFunding
	for _, m := range sanitized.Milestones {
		m.Released = false
		m.ApprovalWeight = big.NewInt(0)
	}
	if err := e.state.CampaignPut(sanitized); err != nil {
		return nil, err
	}
	e.emit(CreatedEvent(sanitized))
	return sanitized.Clone(), nil
}

// syncStatus applies the lazy deadline transition on the supplied (cloned)
// campaign, persisting and emitting the outcome exactly once. Subsequent calls
// after the transition are no-ops.
func (e *Engine) syncStatus(c *Campaign) error {
	if c.State != StateFunding || e.now() < c.Deadline {
		return nil
	}
	if c.TotalPledged.Cmp(c.Goal) >= 0 {
		c.State = StateSuccessful
	} else {
		c.State = StateFailed
	}
	if err := e.state.CampaignPut(c); err != nil {
		return err
	}
	e.emit(OutcomeEvent(c.ID, c.State, c.TotalPledged, c.Goal))
	return nil
}

// CheckStatus lazily re-evaluates the funding outcome and returns the current
// state. The poke is idempotent.
func (e *Engine) CheckStatus(id [32]byte) (State, error) {
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
	return c.State, nil
}

// Get returns a copy of the stored campaign without mutating state.
func (e *Engine) Get(id [32]byte) (*Campaign, error) {
	c, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// Contribution returns the accounted contribution of a backer.
func (e *Engine) Contribution(id [32]byte, backer [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadCampaign(id); err != nil {
		return nil, err
	}
	return e.state.ContributionGet(id, backer)
}

// Withdrawn returns the cumulative revenue already paid out to a backer.
func (e *Engine) Withdrawn(id [32]byte, backer [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadCampaign(id); err != nil {
		return nil, err
	}
	return e.state.WithdrawnGet(id, backer)
}

// Pledge pulls the requested amount from the backer and accounts the amount
// actually received, defending against assets that deliver fewer tokens than
// requested. The investor receipt mint is best-effort: a mint failure is
// logged through the event stream but never fails the pledge.
func (e *Engine) Pledge(id [32]byte, backer [20]byte, amount *big.Int) (*big.Int, error) {
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
	if c.State != StateFunding {
		return nil, ErrFundingClosed
	}
	if e.now() >= c.Deadline {
		return nil, ErrFundingClosed
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	gateway, err := e.gatewayFor(c)
	if err != nil {
		return nil, err
	}
	before, err := gateway.BalanceOf(c.Vault)
	if err != nil {
		return nil, err
	}
	if err := gateway.TransferFrom(c.Vault, backer, c.Vault, amount); err != nil {
		return nil, fmt.Errorf("campaign: pledge transfer: %w", err)
	}
	after, err := gateway.BalanceOf(c.Vault)
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Sub(after, before)
	if received.Sign() <= 0 {
		return nil, errNothingReceived
	}
	contributed, err := e.state.ContributionGet(id, backer)
	if err != nil {
		return nil, err
	}
	contributed = new(big.Int).Add(cloneBigInt(contributed), received)
	if err := e.state.ContributionPut(id, backer, contributed); err != nil {
		return nil, err
	}
	c.TotalPledged = new(big.Int).Add(c.TotalPledged, received)
	receiptID := c.NextInvestorReceipt
	c.NextInvestorReceipt++
	if err := e.state.CampaignPut(c); err != nil {
		return nil, err
	}
	e.emit(PledgedEvent(id, backer, received, contributed, c.TotalPledged))
	e.mintReceipt(c, c.InvestorIssuer, backer, receiptID, false)
	return received, nil
}

// mintReceipt attempts a receipt mint and emits the audit event. When fatal is
// false the failure is tolerated; callers handling fatal mints inspect the
// returned error themselves.
func (e *Engine) mintReceipt(c *Campaign, issuerName string, to [20]byte, receiptID uint64, fatal bool) error {
	issuer, err := e.issuerFor(issuerName)
	if err == nil {
		err = issuer.Mint(to, receiptID)
	}
	if err != nil {
		if !fatal {
			e.emit(ReceiptMintFailedEvent(c.ID, issuerName, to, receiptID, err.Error()))
			return nil
		}
		return err
	}
	e.emit(ReceiptMintedEvent(c.ID, issuerName, to, receiptID))
	return nil
}

// ClaimFunds transfers the claimable remainder to the creator once every
// milestone has been released. The transfer amount is the vault balance minus
// the reserved balance so neither the backer liability nor a deferred
// platform share is ever touched.
func (e *Engine) ClaimFunds(id [32]byte, caller [20]byte) (*big.Int, error) {
	if err := e.enter(id); err != nil {
		return nil, err
	}
	defer e.exit(id)
	stored, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	c := stored.Clone()
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
	if c.FundsClaimed {
		return nil, ErrAlreadyClaimed
	}
	if len(c.Milestones) > 0 && !c.AllMilestonesReleased() {
		return nil, ErrMilestonesPending
	}
	gateway, err := e.gatewayFor(c)
	if err != nil {
		return nil, err
	}
	balance, err := gateway.BalanceOf(c.Vault)
	if err != nil {
		return nil, err
	}
	claimable := new(big.Int).Sub(balance, c.ReservedBalance())
	if claimable.Sign() <= 0 {
		return nil, ErrNothingToClaim
	}
	c.FundsClaimed = true
	if err := e.state.CampaignPut(c); err != nil {
		return nil, err
	}
	if err := gateway.Transfer(c.Vault, c.Creator, claimable); err != nil {
		if restoreErr := e.state.CampaignPut(snapshot); restoreErr != nil {
			return nil, fmt.Errorf("campaign: rollback after failed claim: %v (original: %w)", restoreErr, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}
	e.emit(FundsClaimedEvent(id, c.Creator, claimable))
	return claimable, nil
}

// ClaimRefund returns a backer's full contribution after a failed campaign.
// The contribution is zeroed before the transfer; the refund is rejected if it
// would impair the backer revenue reserve.
func (e *Engine) ClaimRefund(id [32]byte, caller [20]byte) (*big.Int, error) {
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
	if c.State != StateFailed {
		return nil, ErrWrongState
	}
	contributed, err := e.state.ContributionGet(id, caller)
	if err != nil {
		return nil, err
	}
	contributed = cloneBigInt(contributed)
	if contributed.Sign() <= 0 {
		return nil, ErrNoContribution
	}
	gateway, err := e.gatewayFor(c)
	if err != nil {
		return nil, err
	}
	balance, err := gateway.BalanceOf(c.Vault)
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Add(c.ReservedBalance(), contributed)
	if balance.Cmp(required) < 0 {
		return nil, ErrLiabilityExceeded
	}
	if err := e.state.ContributionPut(id, caller, big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := gateway.Transfer(c.Vault, caller, contributed); err != nil {
		if restoreErr := e.state.ContributionPut(id, caller, contributed); restoreErr != nil {
			return nil, fmt.Errorf("campaign: rollback after failed refund: %v (original: %w)", restoreErr, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}
	e.emit(RefundClaimedEvent(id, caller, contributed))
	return contributed, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func hexID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}
