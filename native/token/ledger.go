package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"fundvault/native/campaign"
)

var (
	errNilState = errors.New("token: state not configured")

	// ErrAssetNotFound is returned when no asset matches the symbol.
	ErrAssetNotFound = errors.New("token: asset not found")
	// ErrAssetExists rejects duplicate asset registration.
	ErrAssetExists = errors.New("token: asset already exists")
	// ErrInsufficientBalance rejects transfers beyond the sender's funds.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance rejects pulls beyond the approved amount.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrNotOwner rejects owner-gated operations from other callers.
	ErrNotOwner = errors.New("token: caller is not the owner")
)

const feeDenominator = 10_000

// Asset describes a registered fungible asset. A non-zero FeeBps burns that
// share of every transfer on the wire, so recipients observe a smaller balance
// delta than the nominal amount.
type Asset struct {
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Owner       [20]byte `json:"owner"`
	FeeBps      uint32   `json:"feeBps"`
	TotalSupply *big.Int `json:"totalSupply"`
}

// Clone returns a deep copy of the asset definition.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	if a.TotalSupply != nil {
		clone.TotalSupply = new(big.Int).Set(a.TotalSupply)
	}
	return &clone
}

type ledgerState interface {
	AssetPut(*Asset) error
	AssetGet(symbol string) (*Asset, bool, error)
	BalancePut(symbol string, addr [20]byte, amount *big.Int) error
	BalanceGet(symbol string, addr [20]byte) (*big.Int, error)
	AllowancePut(symbol string, owner, spender [20]byte, amount *big.Int) error
	AllowanceGet(symbol string, owner, spender [20]byte) (*big.Int, error)
	IssuerPut(*Issuer) error
	IssuerGet(name string) (*Issuer, bool, error)
	ReceiptPut(issuer string, id uint64, to [20]byte) error
	ReceiptHas(issuer string, id uint64) (bool, error)
}

// Registry hosts the in-process asset ledgers and receipt issuers backing the
// campaign engine's external collaborator interfaces.
type Registry struct {
	state ledgerState
}

// NewRegistry constructs a token registry over the supplied state backend.
func NewRegistry(state ledgerState) *Registry {
	return &Registry{state: state}
}

// NormalizeSymbol canonicalises an asset symbol.
func NormalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", errors.New("token: symbol required")
	}
	return trimmed, nil
}

// CreateAsset registers a new fungible asset with the supplied minting owner.
func (r *Registry) CreateAsset(asset *Asset) (*Asset, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if asset == nil {
		return nil, errors.New("token: asset required")
	}
	symbol, err := NormalizeSymbol(asset.Symbol)
	if err != nil {
		return nil, err
	}
	if asset.Owner == ([20]byte{}) {
		return nil, errors.New("token: owner required")
	}
	if asset.FeeBps >= feeDenominator {
		return nil, fmt.Errorf("token: fee bps out of range: %d", asset.FeeBps)
	}
	if _, ok, err := r.state.AssetGet(symbol); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAssetExists
	}
	stored := asset.Clone()
	stored.Symbol = symbol
	stored.TotalSupply = big.NewInt(0)
	if err := r.state.AssetPut(stored); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// GetAsset resolves a registered asset definition.
func (r *Registry) GetAsset(symbol string) (*Asset, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	asset, ok, err := r.state.AssetGet(normalized)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

// Mint credits freshly issued tokens to the recipient. Owner only.
func (r *Registry) Mint(caller [20]byte, symbol string, to [20]byte, amount *big.Int) error {
	asset, err := r.GetAsset(symbol)
	if err != nil {
		return err
	}
	if caller != asset.Owner {
		return ErrNotOwner
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("token: mint amount must be positive")
	}
	balance, err := r.state.BalanceGet(asset.Symbol, to)
	if err != nil {
		return err
	}
	balance = new(big.Int).Add(cloneBigInt(balance), amount)
	if err := r.state.BalancePut(asset.Symbol, to, balance); err != nil {
		return err
	}
	asset.TotalSupply = new(big.Int).Add(cloneBigInt(asset.TotalSupply), amount)
	return r.state.AssetPut(asset)
}

// Approve grants the spender a pull allowance over the owner's balance.
func (r *Registry) Approve(owner [20]byte, symbol string, spender [20]byte, amount *big.Int) error {
	asset, err := r.GetAsset(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errors.New("token: allowance must be non-negative")
	}
	return r.state.AllowancePut(asset.Symbol, owner, spender, new(big.Int).Set(amount))
}

// Asset implements campaign.AssetResolver by binding a gateway to the symbol.
func (r *Registry) Asset(symbol string) (campaign.AssetGateway, error) {
	asset, err := r.GetAsset(symbol)
	if err != nil {
		return nil, err
	}
	return &Ledger{registry: r, symbol: asset.Symbol}, nil
}

// Ledger adapts one registered asset to the campaign engine's gateway
// boundary.
type Ledger struct {
	registry *Registry
	symbol   string
}

// BalanceOf reports the current balance of the address.
func (l *Ledger) BalanceOf(owner [20]byte) (*big.Int, error) {
	balance, err := l.registry.state.BalanceGet(l.symbol, owner)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(balance), nil
}

// Transfer moves tokens directly from the holder. The transfer fee, if any,
// is burned on the wire.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	return l.registry.move(l.symbol, from, to, amount)
}

// TransferFrom pulls tokens from the owner against the spender's allowance.
func (l *Ledger) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("token: transfer amount must be positive")
	}
	allowance, err := l.registry.state.AllowanceGet(l.symbol, owner, spender)
	if err != nil {
		return err
	}
	allowance = cloneBigInt(allowance)
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.registry.move(l.symbol, owner, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return l.registry.state.AllowancePut(l.symbol, owner, spender, allowance)
}

func (r *Registry) move(symbol string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("token: transfer amount must be positive")
	}
	asset, err := r.GetAsset(symbol)
	if err != nil {
		return err
	}
	fromBal, err := r.state.BalanceGet(symbol, from)
	if err != nil {
		return err
	}
	fromBal = cloneBigInt(fromBal)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(asset.FeeBps)))
	fee.Div(fee, big.NewInt(feeDenominator))
	delivered := new(big.Int).Sub(amount, fee)
	toBal, err := r.state.BalanceGet(symbol, to)
	if err != nil {
		return err
	}
	toBal = new(big.Int).Add(cloneBigInt(toBal), delivered)
	fromBal.Sub(fromBal, amount)
	if err := r.state.BalancePut(symbol, from, fromBal); err != nil {
		return err
	}
	if err := r.state.BalancePut(symbol, to, toBal); err != nil {
		return err
	}
	if fee.Sign() > 0 {
		asset.TotalSupply = new(big.Int).Sub(cloneBigInt(asset.TotalSupply), fee)
		return r.state.AssetPut(asset)
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
