package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"fundvault/native/campaign"
	"fundvault/native/token"
	"fundvault/storage"
)

// Manager persists the campaign and token state over a key-value database.
// Values are JSON-encoded; amounts round-trip as arbitrary precision numbers.
type Manager struct {
	db storage.Database
}

// NewManager constructs a state manager over the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

const (
	prefixCampaign     = "campaign/"
	prefixContribution = "contribution/"
	prefixWithdrawn    = "withdrawn/"
	prefixVote         = "vote/"
	prefixAsset        = "asset/"
	prefixBalance      = "balance/"
	prefixAllowance    = "allowance/"
	prefixIssuer       = "issuer/"
	prefixReceipt      = "receipt/"
	keyCampaignIndex   = "campaigns"
)

func campaignKey(id [32]byte) []byte {
	return []byte(prefixCampaign + hex.EncodeToString(id[:]))
}

func contributionKey(id [32]byte, backer [20]byte) []byte {
	return []byte(prefixContribution + hex.EncodeToString(id[:]) + "/" + hex.EncodeToString(backer[:]))
}

func withdrawnKey(id [32]byte, backer [20]byte) []byte {
	return []byte(prefixWithdrawn + hex.EncodeToString(id[:]) + "/" + hex.EncodeToString(backer[:]))
}

func voteKey(id [32]byte, index int, voter [20]byte) []byte {
	return []byte(prefixVote + hex.EncodeToString(id[:]) + "/" + strconv.Itoa(index) + "/" + hex.EncodeToString(voter[:]))
}

func assetKey(symbol string) []byte {
	return []byte(prefixAsset + strings.ToUpper(symbol))
}

func balanceKey(symbol string, addr [20]byte) []byte {
	return []byte(prefixBalance + strings.ToUpper(symbol) + "/" + hex.EncodeToString(addr[:]))
}

func allowanceKey(symbol string, owner, spender [20]byte) []byte {
	return []byte(prefixAllowance + strings.ToUpper(symbol) + "/" + hex.EncodeToString(owner[:]) + "/" + hex.EncodeToString(spender[:]))
}

func issuerKey(name string) []byte {
	return []byte(prefixIssuer + name)
}

func receiptKey(name string, id uint64) []byte {
	return []byte(prefixReceipt + name + "/" + strconv.FormatUint(id, 10))
}

func (m *Manager) putJSON(key []byte, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", string(key), err)
	}
	return m.db.Put(key, encoded)
}

func (m *Manager) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", string(key), err)
	}
	return true, nil
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.getJSON(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// CampaignPut stores the campaign and maintains the identifier index.
func (m *Manager) CampaignPut(c *campaign.Campaign) error {
	if c == nil {
		return errors.New("state: nil campaign")
	}
	index, err := m.CampaignList()
	if err != nil {
		return err
	}
	known := false
	for _, id := range index {
		if id == c.ID {
			known = true
			break
		}
	}
	if !known {
		index = append(index, c.ID)
		encoded := make([]string, len(index))
		for i, id := range index {
			encoded[i] = hex.EncodeToString(id[:])
		}
		if err := m.putJSON([]byte(keyCampaignIndex), encoded); err != nil {
			return err
		}
	}
	return m.putJSON(campaignKey(c.ID), c)
}

// CampaignGet loads a stored campaign.
func (m *Manager) CampaignGet(id [32]byte) (*campaign.Campaign, bool, error) {
	c := &campaign.Campaign{}
	ok, err := m.getJSON(campaignKey(id), c)
	if err != nil || !ok {
		return nil, false, err
	}
	return c, true, nil
}

// CampaignList returns the identifiers of every stored campaign.
func (m *Manager) CampaignList() ([][32]byte, error) {
	var encoded []string
	if _, err := m.getJSON([]byte(keyCampaignIndex), &encoded); err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(encoded))
	for _, entry := range encoded {
		raw, err := hex.DecodeString(entry)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("state: corrupt campaign index entry %q", entry)
		}
		var id [32]byte
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, nil
}

// ContributionGet returns the accounted contribution, zero when absent.
func (m *Manager) ContributionGet(id [32]byte, backer [20]byte) (*big.Int, error) {
	return m.getAmount(contributionKey(id, backer))
}

// ContributionPut stores the accounted contribution.
func (m *Manager) ContributionPut(id [32]byte, backer [20]byte, amount *big.Int) error {
	return m.putJSON(contributionKey(id, backer), amount)
}

// WithdrawnGet returns the cumulative revenue paid out, zero when absent.
func (m *Manager) WithdrawnGet(id [32]byte, backer [20]byte) (*big.Int, error) {
	return m.getAmount(withdrawnKey(id, backer))
}

// WithdrawnPut stores the cumulative revenue paid out.
func (m *Manager) WithdrawnPut(id [32]byte, backer [20]byte, amount *big.Int) error {
	return m.putJSON(withdrawnKey(id, backer), amount)
}

// VoteHas reports whether the voter already voted on the milestone.
func (m *Manager) VoteHas(id [32]byte, index int, voter [20]byte) (bool, error) {
	var marker bool
	return m.getJSON(voteKey(id, index, voter), &marker)
}

// VotePut records the voter's milestone approval.
func (m *Manager) VotePut(id [32]byte, index int, voter [20]byte) error {
	return m.putJSON(voteKey(id, index, voter), true)
}

// AssetPut stores an asset definition.
func (m *Manager) AssetPut(asset *token.Asset) error {
	if asset == nil {
		return errors.New("state: nil asset")
	}
	return m.putJSON(assetKey(asset.Symbol), asset)
}

// AssetGet loads an asset definition.
func (m *Manager) AssetGet(symbol string) (*token.Asset, bool, error) {
	asset := &token.Asset{}
	ok, err := m.getJSON(assetKey(symbol), asset)
	if err != nil || !ok {
		return nil, false, err
	}
	return asset, true, nil
}

// BalancePut stores an address balance.
func (m *Manager) BalancePut(symbol string, addr [20]byte, amount *big.Int) error {
	return m.putJSON(balanceKey(symbol, addr), amount)
}

// BalanceGet returns an address balance, zero when absent.
func (m *Manager) BalanceGet(symbol string, addr [20]byte) (*big.Int, error) {
	return m.getAmount(balanceKey(symbol, addr))
}

// AllowancePut stores a pull allowance.
func (m *Manager) AllowancePut(symbol string, owner, spender [20]byte, amount *big.Int) error {
	return m.putJSON(allowanceKey(symbol, owner, spender), amount)
}

// AllowanceGet returns a pull allowance, zero when absent.
func (m *Manager) AllowanceGet(symbol string, owner, spender [20]byte) (*big.Int, error) {
	return m.getAmount(allowanceKey(symbol, owner, spender))
}

// IssuerPut stores a receipt issuer.
func (m *Manager) IssuerPut(issuer *token.Issuer) error {
	if issuer == nil {
		return errors.New("state: nil issuer")
	}
	return m.putJSON(issuerKey(issuer.Name), issuer)
}

// IssuerGet loads a receipt issuer.
func (m *Manager) IssuerGet(name string) (*token.Issuer, bool, error) {
	issuer := &token.Issuer{}
	ok, err := m.getJSON(issuerKey(name), issuer)
	if err != nil || !ok {
		return nil, false, err
	}
	return issuer, true, nil
}

// ReceiptPut records a minted receipt.
func (m *Manager) ReceiptPut(issuer string, id uint64, to [20]byte) error {
	return m.putJSON(receiptKey(issuer, id), hex.EncodeToString(to[:]))
}

// ReceiptHas reports whether the receipt id was already minted.
func (m *Manager) ReceiptHas(issuer string, id uint64) (bool, error) {
	var holder string
	return m.getJSON(receiptKey(issuer, id), &holder)
}
