package campaign

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"fundvault/core/events"
	"fundvault/core/types"
)

type memState struct {
	campaigns     map[[32]byte]*Campaign
	contributions map[string]*big.Int
	withdrawn     map[string]*big.Int
	votes         map[string]bool
}

func newMemState() *memState {
	return &memState{
		campaigns:     make(map[[32]byte]*Campaign),
		contributions: make(map[string]*big.Int),
		withdrawn:     make(map[string]*big.Int),
		votes:         make(map[string]bool),
	}
}

func backerKey(id [32]byte, addr [20]byte) string {
	return string(id[:]) + string(addr[:])
}

func (m *memState) CampaignPut(c *Campaign) error {
	m.campaigns[c.ID] = c.Clone()
	return nil
}

func (m *memState) CampaignGet(id [32]byte) (*Campaign, bool, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (m *memState) ContributionGet(id [32]byte, backer [20]byte) (*big.Int, error) {
	if v, ok := m.contributions[backerKey(id, backer)]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *memState) ContributionPut(id [32]byte, backer [20]byte, amount *big.Int) error {
	m.contributions[backerKey(id, backer)] = new(big.Int).Set(amount)
	return nil
}

func (m *memState) WithdrawnGet(id [32]byte, backer [20]byte) (*big.Int, error) {
	if v, ok := m.withdrawn[backerKey(id, backer)]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *memState) WithdrawnPut(id [32]byte, backer [20]byte, amount *big.Int) error {
	m.withdrawn[backerKey(id, backer)] = new(big.Int).Set(amount)
	return nil
}

func voteTestKey(id [32]byte, index int, voter [20]byte) string {
	return fmt.Sprintf("%x/%d/%x", id, index, voter)
}

func (m *memState) VoteHas(id [32]byte, index int, voter [20]byte) (bool, error) {
	return m.votes[voteTestKey(id, index, voter)], nil
}

func (m *memState) VotePut(id [32]byte, index int, voter [20]byte) error {
	m.votes[voteTestKey(id, index, voter)] = true
	return nil
}

// mockLedger simulates the fungible asset gateway, including fee-on-transfer
// behaviour and injectable push-transfer failures.
type mockLedger struct {
	balances     map[[20]byte]*big.Int
	feeBps       uint32
	failPushTo   map[[20]byte]bool
	transferHook func()
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		balances:   make(map[[20]byte]*big.Int),
		failPushTo: make(map[[20]byte]bool),
	}
}

func (l *mockLedger) credit(addr [20]byte, amount int64) {
	l.balances[addr] = new(big.Int).Add(l.balanceOf(addr), big.NewInt(amount))
}

func (l *mockLedger) balanceOf(addr [20]byte) *big.Int {
	if v, ok := l.balances[addr]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (l *mockLedger) BalanceOf(owner [20]byte) (*big.Int, error) {
	return l.balanceOf(owner), nil
}

func (l *mockLedger) move(from, to [20]byte, amount *big.Int) error {
	if l.balanceOf(from).Cmp(amount) < 0 {
		return errors.New("insufficient balance")
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(l.feeBps)))
	fee.Div(fee, big.NewInt(10_000))
	delivered := new(big.Int).Sub(amount, fee)
	l.balances[from] = new(big.Int).Sub(l.balanceOf(from), amount)
	l.balances[to] = new(big.Int).Add(l.balanceOf(to), delivered)
	return nil
}

func (l *mockLedger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l.failPushTo[to] {
		return errors.New("push transfer rejected")
	}
	if l.transferHook != nil {
		l.transferHook()
	}
	return l.move(from, to, amount)
}

func (l *mockLedger) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if l.transferHook != nil {
		l.transferHook()
	}
	return l.move(owner, to, amount)
}

type mockResolver struct {
	ledger *mockLedger
}

func (r *mockResolver) Asset(string) (AssetGateway, error) { return r.ledger, nil }

type mockIssuer struct {
	owner  [20]byte
	minted map[uint64][20]byte
	fail   bool
}

func (i *mockIssuer) Owner() ([20]byte, error) { return i.owner, nil }

func (i *mockIssuer) Mint(to [20]byte, id uint64) error {
	if i.fail {
		return errors.New("mint rejected")
	}
	if i.minted == nil {
		i.minted = make(map[uint64][20]byte)
	}
	if _, ok := i.minted[id]; ok {
		return errors.New("duplicate receipt")
	}
	i.minted[id] = to
	return nil
}

type mockIssuerSet struct {
	issuers map[string]*mockIssuer
}

func (s *mockIssuerSet) Issuer(name string) (ReceiptIssuer, error) {
	issuer, ok := s.issuers[name]
	if !ok {
		return nil, errors.New("issuer not found")
	}
	return issuer, nil
}

type capturedEvents struct {
	events []*types.Event
}

func (c *capturedEvents) Emit(evt events.Event) {
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		c.events = append(c.events, carrier.Event())
	}
}

func (c *capturedEvents) ofType(eventType string) []*types.Event {
	var out []*types.Event
	for _, evt := range c.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type testClock struct {
	now int64
}

func (c *testClock) Now() int64      { return c.now }
func (c *testClock) Advance(d int64) { c.now += d }

type testEnv struct {
	engine  *Engine
	state   *memState
	ledger  *mockLedger
	issuers *mockIssuerSet
	emitted *capturedEvents
	clock   *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:   newMemState(),
		ledger:  newMockLedger(),
		issuers: &mockIssuerSet{issuers: make(map[string]*mockIssuer)},
		emitted: &capturedEvents{},
		clock:   &testClock{now: 1_000},
	}
	env.engine = NewEngine()
	env.engine.SetState(env.state)
	env.engine.SetAssetResolver(&mockResolver{ledger: env.ledger})
	env.engine.SetReceiptResolver(env.issuers)
	env.engine.SetEmitter(env.emitted)
	env.engine.SetNowFunc(env.clock.Now)
	return env
}

var (
	testCreator = [20]byte{0x01}
	testBackerA = [20]byte{0x0a}
	testBackerB = [20]byte{0x0b}
	testBuyer   = [20]byte{0x0c}
	testVault   = [20]byte{0xff}
)

func testCampaignID(seed byte) [32]byte {
	var id [32]byte
	id[0] = seed
	return id
}

// seedCampaign creates a campaign through the engine with a deadline 100
// seconds ahead of the test clock and mintable vault-owned issuers.
func (env *testEnv) seedCampaign(t *testing.T, goal int64, milestones []*Milestone) *Campaign {
	t.Helper()
	id := testCampaignID(1)
	definition := &Campaign{
		ID:             id,
		Creator:        testCreator,
		Asset:          "USD",
		Vault:          testVault,
		Goal:           big.NewInt(goal),
		Deadline:       env.clock.now + 100,
		InvestorIssuer: "inv",
		CourseIssuer:   "course",
		Milestones:     milestones,
	}
	env.issuers.issuers["inv"] = &mockIssuer{owner: testVault}
	env.issuers.issuers["course"] = &mockIssuer{owner: testVault}
	created, err := env.engine.Create(definition)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return created
}

func (env *testEnv) pledge(t *testing.T, id [32]byte, backer [20]byte, amount int64) *big.Int {
	t.Helper()
	received, err := env.engine.Pledge(id, backer, big.NewInt(amount))
	if err != nil {
		t.Fatalf("pledge %d from %x: %v", amount, backer[:1], err)
	}
	return received
}

func TestCreateRejectsPastDeadline(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Create(&Campaign{
		ID:       testCampaignID(9),
		Creator:  testCreator,
		Asset:    "USD",
		Vault:    testVault,
		Goal:     big.NewInt(100),
		Deadline: env.clock.now - 1,
	})
	if err == nil {
		t.Fatal("expected error for past deadline")
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 1_000, nil)
	_, err := env.engine.Create(&Campaign{
		ID:       c.ID,
		Creator:  testCreator,
		Asset:    "USD",
		Vault:    testVault,
		Goal:     big.NewInt(100),
		Deadline: env.clock.now + 50,
	})
	if !errors.Is(err, errCampaignExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestCreateRejectsMilestonesExceedingGoal(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Create(&Campaign{
		ID:       testCampaignID(9),
		Creator:  testCreator,
		Asset:    "USD",
		Vault:    testVault,
		Goal:     big.NewInt(100),
		Deadline: env.clock.now + 50,
		Milestones: []*Milestone{
			{Description: "phase one", Payout: big.NewInt(80)},
			{Description: "phase two", Payout: big.NewInt(30)},
		},
	})
	if err == nil {
		t.Fatal("expected milestone payout validation error")
	}
}

func TestPledgeAccountsReceivedAmount(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 1_000, nil)
	env.ledger.credit(testBackerA, 500)

	received := env.pledge(t, c.ID, testBackerA, 400)
	if received.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("received = %s, want 400", received)
	}

	stored, err := env.engine.Get(c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.TotalPledged.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("total pledged = %s, want 400", stored.TotalPledged)
	}
	contributed, err := env.engine.Contribution(c.ID, testBackerA)
	if err != nil {
		t.Fatalf("contribution: %v", err)
	}
	if contributed.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("contribution = %s, want 400", contributed)
	}
	if env.ledger.balanceOf(testVault).Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("vault balance = %s, want 400", env.ledger.balanceOf(testVault))
	}
	inv := env.issuers.issuers["inv"]
	if got, ok := inv.minted[0]; !ok || got != testBackerA {
		t.Fatalf("investor receipt 0 not minted to backer: %v", inv.minted)
	}
}

func TestPledgeFeeOnTransferAccountsDelta(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 1_000, nil)
	env.ledger.feeBps = 1_000 // 10% burned in transit
	env.ledger.credit(testBackerA, 1_000)

	received := env.pledge(t, c.ID, testBackerA, 1_000)
	if received.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("received = %s, want 900", received)
	}
	stored, _ := env.engine.Get(c.ID)
	if stored.TotalPledged.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("total pledged = %s, want measured 900, not declared 1000", stored.TotalPledged)
	}
}

func TestPledgeRejectsZeroAmountAndClosedFunding(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 1_000, nil)
	env.ledger.credit(testBackerA, 100)

	if _, err := env.engine.Pledge(c.ID, testBackerA, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	env.clock.Advance(100)
	if _, err := env.engine.Pledge(c.ID, testBackerA, big.NewInt(10)); !errors.Is(err, ErrFundingClosed) {
		t.Fatalf("after deadline: got %v, want ErrFundingClosed", err)
	}
}

func TestPledgeInvestorMintFailureIsTolerated(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 1_000, nil)
	env.issuers.issuers["inv"].fail = true
	env.ledger.credit(testBackerA, 100)

	if _, err := env.engine.Pledge(c.ID, testBackerA, big.NewInt(100)); err != nil {
		t.Fatalf("pledge should survive mint failure: %v", err)
	}
	if got := env.emitted.ofType(EventTypeReceiptMintFailed); len(got) != 1 {
		t.Fatalf("expected one mint-failed event, got %d", len(got))
	}
	stored, _ := env.engine.Get(c.ID)
	if stored.TotalPledged.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("pledge accounting must stand despite mint failure")
	}
}

func TestOutcomeSuccessAtGoalBoundary(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 500, nil)
	env.ledger.credit(testBackerA, 500)
	env.pledge(t, c.ID, testBackerA, 500)

	env.clock.Advance(100)
	state, err := env.engine.CheckStatus(c.ID)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if state != StateSuccessful {
		t.Fatalf("state = %v, want successful (total == goal counts)", state)
	}
	if got := env.emitted.ofType(EventTypeOutcome); len(got) != 1 {
		t.Fatalf("expected one outcome event, got %d", len(got))
	}
	// Re-evaluation must not emit again.
	if _, err := env.engine.CheckStatus(c.ID); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if got := env.emitted.ofType(EventTypeOutcome); len(got) != 1 {
		t.Fatalf("outcome event must fire once, got %d", len(got))
	}
}

func TestOutcomeFailureBelowGoal(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 500, nil)
	env.ledger.credit(testBackerA, 499)
	env.pledge(t, c.ID, testBackerA, 499)

	env.clock.Advance(100)
	state, err := env.engine.CheckStatus(c.ID)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if state != StateFailed {
		t.Fatalf("state = %v, want failed", state)
	}
}

func TestClaimRefundAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 1_000, nil)
	env.ledger.credit(testBackerA, 300)
	env.pledge(t, c.ID, testBackerA, 300)
	env.clock.Advance(100)

	refunded, err := env.engine.ClaimRefund(c.ID, testBackerA)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("refunded = %s, want 300", refunded)
	}
	if env.ledger.balanceOf(testBackerA).Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("backer balance = %s, want 300", env.ledger.balanceOf(testBackerA))
	}
	if _, err := env.engine.ClaimRefund(c.ID, testBackerA); !errors.Is(err, ErrNoContribution) {
		t.Fatalf("second refund: got %v, want ErrNoContribution", err)
	}
}

func TestClaimRefundRejectedWhileFunding(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 1_000, nil)
	env.ledger.credit(testBackerA, 300)
	env.pledge(t, c.ID, testBackerA, 300)

	if _, err := env.engine.ClaimRefund(c.ID, testBackerA); !errors.Is(err, ErrWrongState) {
		t.Fatalf("got %v, want ErrWrongState", err)
	}
}

func TestClaimRefundRollsBackOnTransferFailure(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 1_000, nil)
	env.ledger.credit(testBackerA, 300)
	env.pledge(t, c.ID, testBackerA, 300)
	env.clock.Advance(100)
	env.ledger.failPushTo[testBackerA] = true

	_, err := env.engine.ClaimRefund(c.ID, testBackerA)
	if !errors.Is(err, ErrPayoutFailed) {
		t.Fatalf("got %v, want ErrPayoutFailed", err)
	}
	contributed, _ := env.engine.Contribution(c.ID, testBackerA)
	if contributed.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("contribution after rollback = %s, want 300", contributed)
	}
}

func TestClaimFundsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 500, nil)
	env.ledger.credit(testBackerA, 600)
	env.pledge(t, c.ID, testBackerA, 600)
	env.clock.Advance(100)

	if _, err := env.engine.ClaimFunds(c.ID, testBackerA); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("non-creator claim: got %v, want ErrNotCreator", err)
	}
	claimed, err := env.engine.ClaimFunds(c.ID, testCreator)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("claimed = %s, want 600", claimed)
	}
	if env.ledger.balanceOf(testCreator).Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("creator balance = %s, want 600", env.ledger.balanceOf(testCreator))
	}
	if _, err := env.engine.ClaimFunds(c.ID, testCreator); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim: got %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimFundsBlockedByOpenMilestones(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 500, []*Milestone{
		{Description: "ship alpha", Payout: big.NewInt(200)},
	})
	env.ledger.credit(testBackerA, 500)
	env.pledge(t, c.ID, testBackerA, 500)
	env.clock.Advance(100)

	if _, err := env.engine.ClaimFunds(c.ID, testCreator); !errors.Is(err, ErrMilestonesPending) {
		t.Fatalf("got %v, want ErrMilestonesPending", err)
	}
}

func TestClaimFundsRollsBackOnTransferFailure(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 500, nil)
	env.ledger.credit(testBackerA, 500)
	env.pledge(t, c.ID, testBackerA, 500)
	env.clock.Advance(100)
	env.ledger.failPushTo[testCreator] = true

	if _, err := env.engine.ClaimFunds(c.ID, testCreator); !errors.Is(err, ErrPayoutFailed) {
		t.Fatalf("got %v, want ErrPayoutFailed", err)
	}
	stored, _ := env.engine.Get(c.ID)
	if stored.FundsClaimed {
		t.Fatal("FundsClaimed must be rolled back after failed transfer")
	}
	env.ledger.failPushTo[testCreator] = false
	if _, err := env.engine.ClaimFunds(c.ID, testCreator); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
}

func TestReentrantCallbackRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, 500, nil)
	env.ledger.credit(testBackerA, 500)

	var reentrantErr error
	env.ledger.transferHook = func() {
		hook := env.ledger.transferHook
		env.ledger.transferHook = nil
		defer func() { env.ledger.transferHook = hook }()
		_, reentrantErr = env.engine.Pledge(c.ID, testBackerA, big.NewInt(1))
	}
	env.pledge(t, c.ID, testBackerA, 100)
	if !errors.Is(reentrantErr, ErrReentrantCall) {
		t.Fatalf("callback pledge: got %v, want ErrReentrantCall", reentrantErr)
	}
}

func TestGetUnknownCampaign(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Get(testCampaignID(42)); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("got %v, want ErrCampaignNotFound", err)
	}
}
