package campaign

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrNotAdmin rejects platform-admin operations from other callers.
	ErrNotAdmin = errors.New("campaign: caller is not the platform admin")
	// ErrAssetNotAllowed rejects campaigns over assets outside the allow list.
	ErrAssetNotAllowed = errors.New("campaign: asset not allow-listed")
	// ErrPlatformShareTooLow rejects sale splits granting the platform less
	// than the admin-mandated share.
	ErrPlatformShareTooLow = errors.New("campaign: platform share below required minimum")
)

// IssuerProvisioner creates a receipt issuer owned by the supplied address.
// The registry provisions two issuers per campaign before the first pledge so
// only the campaign vault can ever mint.
type IssuerProvisioner interface {
	Provision(name string, owner [20]byte) error
}

// CreateParams carries the caller-supplied campaign definition. Milestones
// need only description and payout; governance fields are engine-initialised.
type CreateParams struct {
	Creator    [20]byte
	Asset      string
	Goal       *big.Int
	Deadline   int64
	Milestones []*Milestone
	Salt       [32]byte
}

// Registry is the externally callable orchestrator over an arena of
// independent campaign instances. It owns parameter validation, the asset
// allow list, platform administration and the per-campaign exclusive lock
// that serializes operations against one instance.
type Registry struct {
	engine      *Engine
	provisioner IssuerProvisioner

	mu               sync.Mutex
	locks            map[[32]byte]*sync.Mutex
	allowedAssets    map[string]bool
	platformAdmin    [20]byte
	platformWallet   [20]byte
	platformShareBps uint32
}

// NewRegistry constructs a registry around the supplied engine.
func NewRegistry(engine *Engine, platformAdmin [20]byte) *Registry {
	return &Registry{
		engine:        engine,
		locks:         make(map[[32]byte]*sync.Mutex),
		allowedAssets: make(map[string]bool),
		platformAdmin: platformAdmin,
	}
}

// SetProvisioner configures the receipt issuer factory.
func (r *Registry) SetProvisioner(p IssuerProvisioner) { r.provisioner = p }

func (r *Registry) lockFor(id [32]byte) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

// AllowAsset adds an asset symbol to the allow list. Admin only.
func (r *Registry) AllowAsset(caller [20]byte, symbol string) error {
	if caller != r.platformAdmin {
		return ErrNotAdmin
	}
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return errors.New("campaign: asset symbol required")
	}
	r.mu.Lock()
	r.allowedAssets[trimmed] = true
	r.mu.Unlock()
	return nil
}

// SetPlatformWallet replaces the default platform fee wallet. Admin only.
func (r *Registry) SetPlatformWallet(caller [20]byte, wallet [20]byte) error {
	if caller != r.platformAdmin {
		return ErrNotAdmin
	}
	if wallet == ([20]byte{}) {
		return errors.New("campaign: platform wallet must not be zero")
	}
	r.mu.Lock()
	r.platformWallet = wallet
	r.mu.Unlock()
	return nil
}

// SetPlatformShare sets the minimum platform share every sale split must
// grant. Admin only.
func (r *Registry) SetPlatformShare(caller [20]byte, bps uint32) error {
	if caller != r.platformAdmin {
		return ErrNotAdmin
	}
	if bps > bpsDenominator {
		return fmt.Errorf("campaign: platform share %d exceeds %d bps", bps, bpsDenominator)
	}
	r.mu.Lock()
	r.platformShareBps = bps
	r.mu.Unlock()
	return nil
}

// PlatformShare returns the admin-mandated minimum platform share.
func (r *Registry) PlatformShare() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.platformShareBps
}

// PlatformWallet returns the configured default platform fee wallet.
func (r *Registry) PlatformWallet() [20]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.platformWallet
}

func (r *Registry) assetAllowed(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allowedAssets[strings.ToUpper(strings.TrimSpace(symbol))]
}

// DeriveID computes the deterministic campaign identifier from the creator,
// asset and caller-supplied salt.
func DeriveID(creator [20]byte, asset string, salt [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash(creator[:], []byte(strings.ToUpper(strings.TrimSpace(asset))), salt[:])
}

// deriveVault maps a campaign identifier onto the vault address holding its
// funds, the campaign's own identity toward the asset gateway.
func deriveVault(id [32]byte) [20]byte {
	digest := ethcrypto.Keccak256(id[:], []byte("vault"))
	var vault [20]byte
	copy(vault[:], digest[12:])
	return vault
}

// InvestorIssuerName returns the canonical investor receipt issuer name.
func InvestorIssuerName(id [32]byte) string { return hexID(id) + "/investor" }

// CourseIssuerName returns the canonical course receipt issuer name.
func CourseIssuerName(id [32]byte) string { return hexID(id) + "/course" }

// CreateCampaign validates the definition, provisions the two receipt issuers
// owned by the derived vault, and instantiates the campaign.
func (r *Registry) CreateCampaign(params CreateParams) (*Campaign, error) {
	if r == nil || r.engine == nil {
		return nil, errNilState
	}
	symbol := strings.ToUpper(strings.TrimSpace(params.Asset))
	if !r.assetAllowed(symbol) {
		return nil, ErrAssetNotAllowed
	}
	id := DeriveID(params.Creator, symbol, params.Salt)
	vault := deriveVault(id)
	definition := &Campaign{
		ID:             id,
		Creator:        params.Creator,
		Asset:          symbol,
		Vault:          vault,
		Goal:           cloneBigInt(params.Goal),
		Deadline:       params.Deadline,
		InvestorIssuer: InvestorIssuerName(id),
		CourseIssuer:   CourseIssuerName(id),
		TotalPledged:   big.NewInt(0),
		Milestones:     params.Milestones,
		Pool: RevenuePool{
			TotalBackerPool: big.NewInt(0),
			BackerPaidOut:   big.NewInt(0),
		},
	}
	if _, err := SanitizeCampaign(definition); err != nil {
		return nil, err
	}
	if r.provisioner != nil {
		if err := r.provisioner.Provision(definition.InvestorIssuer, vault); err != nil {
			return nil, fmt.Errorf("campaign: provision investor issuer: %w", err)
		}
		if err := r.provisioner.Provision(definition.CourseIssuer, vault); err != nil {
			return nil, fmt.Errorf("campaign: provision course issuer: %w", err)
		}
	}
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.Create(definition)
}

// Pledge runs the pledge operation under the campaign's exclusive lock.
func (r *Registry) Pledge(id [32]byte, backer [20]byte, amount *big.Int) (*big.Int, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.Pledge(id, backer, amount)
}

// Vote runs the milestone vote under the campaign's exclusive lock.
func (r *Registry) Vote(id [32]byte, voter [20]byte, index int) (*big.Int, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.Vote(id, voter, index)
}

// Release runs the milestone release under the campaign's exclusive lock.
func (r *Registry) Release(id [32]byte, caller [20]byte, index int) (*big.Int, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.Release(id, caller, index)
}

// ClaimFunds runs the creator claim under the campaign's exclusive lock.
func (r *Registry) ClaimFunds(id [32]byte, caller [20]byte) (*big.Int, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.ClaimFunds(id, caller)
}

// ClaimRefund runs the backer refund under the campaign's exclusive lock.
func (r *Registry) ClaimRefund(id [32]byte, caller [20]byte) (*big.Int, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.ClaimRefund(id, caller)
}

// SetCourseSale configures the sale split under the campaign's exclusive
// lock, substituting the registry's default platform wallet when the caller
// left it unset.
func (r *Registry) SetCourseSale(id [32]byte, caller [20]byte, sale *SaleParams) error {
	if sale != nil && sale.PlatformShareBps < r.PlatformShare() {
		return ErrPlatformShareTooLow
	}
	if sale != nil && sale.PlatformWallet == ([20]byte{}) && sale.PlatformShareBps > 0 {
		sale = sale.Clone()
		sale.PlatformWallet = r.PlatformWallet()
	}
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.SetCourseSale(id, caller, sale)
}

// Purchase runs a course purchase under the campaign's exclusive lock.
func (r *Registry) Purchase(id [32]byte, buyer [20]byte) (uint64, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.Purchase(id, buyer)
}

// WithdrawBackerRevenue runs the proportional withdrawal under the campaign's
// exclusive lock.
func (r *Registry) WithdrawBackerRevenue(id [32]byte, caller [20]byte) (*big.Int, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.WithdrawBackerRevenue(id, caller)
}

// CheckStatus pokes the lazy outcome transition under the campaign's lock.
func (r *Registry) CheckStatus(id [32]byte) (State, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return r.engine.CheckStatus(id)
}

// Get returns a copy of the stored campaign.
func (r *Registry) Get(id [32]byte) (*Campaign, error) {
	return r.engine.Get(id)
}

// Contribution returns a backer's accounted contribution.
func (r *Registry) Contribution(id [32]byte, backer [20]byte) (*big.Int, error) {
	return r.engine.Contribution(id, backer)
}

// Withdrawn returns a backer's cumulative revenue payouts.
func (r *Registry) Withdrawn(id [32]byte, backer [20]byte) (*big.Int, error) {
	return r.engine.Withdrawn(id, backer)
}
