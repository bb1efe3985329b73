package campaign

import (
	"errors"
	"math/big"
	"sync"
	"testing"
)

var testAdmin = [20]byte{0xad}

type recordingProvisioner struct {
	env   *testEnv
	names map[string][20]byte
}

func (p *recordingProvisioner) Provision(name string, owner [20]byte) error {
	if p.names == nil {
		p.names = make(map[string][20]byte)
	}
	p.names[name] = owner
	p.env.issuers.issuers[name] = &mockIssuer{owner: owner}
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *testEnv, *recordingProvisioner) {
	t.Helper()
	env := newTestEnv(t)
	registry := NewRegistry(env.engine, testAdmin)
	provisioner := &recordingProvisioner{env: env}
	registry.SetProvisioner(provisioner)
	if err := registry.AllowAsset(testAdmin, "USD"); err != nil {
		t.Fatalf("allow asset: %v", err)
	}
	return registry, env, provisioner
}

func registryCreate(t *testing.T, registry *Registry, env *testEnv, goal int64) *Campaign {
	t.Helper()
	created, err := registry.CreateCampaign(CreateParams{
		Creator:  testCreator,
		Asset:    "USD",
		Goal:     big.NewInt(goal),
		Deadline: env.clock.now + 100,
		Salt:     testCampaignID(7),
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return created
}

// registrySucceed pledges the full goal and pokes the campaign past its
// deadline so sale configuration is allowed.
func registrySucceed(t *testing.T, registry *Registry, env *testEnv, c *Campaign) {
	t.Helper()
	goal := c.Goal.Int64()
	env.ledger.credit(testBackerA, goal)
	if _, err := registry.Pledge(c.ID, testBackerA, big.NewInt(goal)); err != nil {
		t.Fatalf("pledge to goal: %v", err)
	}
	env.clock.Advance(100)
	state, err := registry.CheckStatus(c.ID)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if state != StateSuccessful {
		t.Fatalf("state = %v, want successful", state)
	}
}

func TestAllowAssetAdminOnly(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	if err := registry.AllowAsset(testCreator, "EUR"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("got %v, want ErrNotAdmin", err)
	}
}

func TestCreateCampaignRequiresAllowedAsset(t *testing.T) {
	registry, env, _ := newTestRegistry(t)
	_, err := registry.CreateCampaign(CreateParams{
		Creator:  testCreator,
		Asset:    "EUR",
		Goal:     big.NewInt(100),
		Deadline: env.clock.now + 100,
	})
	if !errors.Is(err, ErrAssetNotAllowed) {
		t.Fatalf("got %v, want ErrAssetNotAllowed", err)
	}
}

func TestCreateCampaignProvisionsVaultOwnedIssuers(t *testing.T) {
	registry, env, provisioner := newTestRegistry(t)
	created := registryCreate(t, registry, env, 1_000)

	if created.InvestorIssuer != InvestorIssuerName(created.ID) {
		t.Fatalf("investor issuer = %q", created.InvestorIssuer)
	}
	if created.CourseIssuer != CourseIssuerName(created.ID) {
		t.Fatalf("course issuer = %q", created.CourseIssuer)
	}
	for _, name := range []string{created.InvestorIssuer, created.CourseIssuer} {
		owner, ok := provisioner.names[name]
		if !ok {
			t.Fatalf("issuer %q not provisioned", name)
		}
		if owner != created.Vault {
			t.Fatalf("issuer %q owned by %x, want vault %x", name, owner, created.Vault)
		}
	}
}

func TestDeriveIDDeterministic(t *testing.T) {
	saltA := testCampaignID(1)
	saltB := testCampaignID(2)
	if DeriveID(testCreator, "USD", saltA) != DeriveID(testCreator, "USD", saltA) {
		t.Fatal("same inputs must derive the same id")
	}
	if DeriveID(testCreator, "USD", saltA) == DeriveID(testCreator, "USD", saltB) {
		t.Fatal("different salts must derive different ids")
	}
	if DeriveID(testCreator, "USD", saltA) == DeriveID(testBackerA, "USD", saltA) {
		t.Fatal("different creators must derive different ids")
	}
	// Asset symbols are canonicalised before hashing.
	if DeriveID(testCreator, "usd ", saltA) != DeriveID(testCreator, "USD", saltA) {
		t.Fatal("asset canonicalisation must not change the id")
	}
}

func TestSetCourseSaleSubstitutesDefaultPlatformWallet(t *testing.T) {
	registry, env, _ := newTestRegistry(t)
	if err := registry.SetPlatformWallet(testAdmin, testPlatform); err != nil {
		t.Fatalf("set platform wallet: %v", err)
	}
	created := registryCreate(t, registry, env, 1_000)
	registrySucceed(t, registry, env, created)

	sale := defaultSale(100)
	sale.PlatformWallet = [20]byte{}
	if err := registry.SetCourseSale(created.ID, testCreator, sale); err != nil {
		t.Fatalf("set course sale: %v", err)
	}
	stored, err := registry.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Sale.PlatformWallet != testPlatform {
		t.Fatalf("platform wallet = %x, want registry default", stored.Sale.PlatformWallet)
	}
}

func TestSetPlatformWalletAdminOnly(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	if err := registry.SetPlatformWallet(testCreator, testPlatform); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("got %v, want ErrNotAdmin", err)
	}
	if err := registry.SetPlatformWallet(testAdmin, [20]byte{}); err == nil {
		t.Fatal("zero wallet must be rejected")
	}
}

func TestSetPlatformShareAdminOnly(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	if err := registry.SetPlatformShare(testCreator, 500); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("got %v, want ErrNotAdmin", err)
	}
	if err := registry.SetPlatformShare(testAdmin, 10_001); err == nil {
		t.Fatal("share above 10000 bps must be rejected")
	}
	if err := registry.SetPlatformShare(testAdmin, 2_500); err != nil {
		t.Fatalf("set platform share: %v", err)
	}
	if got := registry.PlatformShare(); got != 2_500 {
		t.Fatalf("platform share = %d, want 2500", got)
	}
}

func TestSetCourseSaleEnforcesMinimumPlatformShare(t *testing.T) {
	registry, env, _ := newTestRegistry(t)
	if err := registry.SetPlatformShare(testAdmin, 2_500); err != nil {
		t.Fatalf("set platform share: %v", err)
	}
	created := registryCreate(t, registry, env, 1_000)
	registrySucceed(t, registry, env, created)

	sale := defaultSale(100) // 2000 bps platform share
	if err := registry.SetCourseSale(created.ID, testCreator, sale); !errors.Is(err, ErrPlatformShareTooLow) {
		t.Fatalf("got %v, want ErrPlatformShareTooLow", err)
	}

	sale = defaultSale(100)
	sale.CreatorShareBps = 4_500
	sale.PlatformShareBps = 2_500
	if err := registry.SetCourseSale(created.ID, testCreator, sale); err != nil {
		t.Fatalf("set course sale at minimum: %v", err)
	}
}

func TestConcurrentPledgesSerialized(t *testing.T) {
	registry, env, _ := newTestRegistry(t)
	created := registryCreate(t, registry, env, 100_000)

	const workers = 8
	const perWorker = 10
	for i := 0; i < workers; i++ {
		var backer [20]byte
		backer[19] = byte(i + 1)
		env.ledger.credit(backer, perWorker*10)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			var backer [20]byte
			backer[19] = byte(worker + 1)
			for j := 0; j < perWorker; j++ {
				if _, err := registry.Pledge(created.ID, backer, big.NewInt(10)); err != nil {
					t.Errorf("worker %d pledge: %v", worker, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	stored, err := registry.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := big.NewInt(workers * perWorker * 10)
	if stored.TotalPledged.Cmp(want) != 0 {
		t.Fatalf("total pledged = %s, want %s", stored.TotalPledged, want)
	}
}
