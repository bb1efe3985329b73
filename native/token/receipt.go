package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"fundvault/native/campaign"
)

var (
	// ErrIssuerNotFound is returned when no issuer matches the name.
	ErrIssuerNotFound = errors.New("token: receipt issuer not found")
	// ErrIssuerExists rejects duplicate issuer provisioning.
	ErrIssuerExists = errors.New("token: receipt issuer already exists")
	// ErrReceiptExists rejects minting a receipt id twice.
	ErrReceiptExists = errors.New("token: receipt id already minted")
	// ErrIssuerDisowned rejects mints after ownership left the controller the
	// issuer was provisioned for.
	ErrIssuerDisowned = errors.New("token: issuer ownership transferred away")
)

// Issuer is a numbered-receipt mint. Controller is the identity the issuer
// was provisioned for and never changes; Owner starts equal to it and can be
// transferred. Mints are honoured only while Owner equals Controller, keeping
// the issuer gated to the campaign vault it was created for.
type Issuer struct {
	Name       string   `json:"name"`
	Controller [20]byte `json:"controller"`
	Owner      [20]byte `json:"owner"`
	Minted     uint64   `json:"minted"`
}

// Clone returns a copy safe for modification.
func (i *Issuer) Clone() *Issuer {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}

// Provision implements campaign.IssuerProvisioner by creating an issuer owned
// and controlled by the supplied address.
func (r *Registry) Provision(name string, owner [20]byte) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("token: issuer name required")
	}
	if owner == ([20]byte{}) {
		return errors.New("token: issuer owner required")
	}
	if _, ok, err := r.state.IssuerGet(trimmed); err != nil {
		return err
	} else if ok {
		return ErrIssuerExists
	}
	return r.state.IssuerPut(&Issuer{Name: trimmed, Controller: owner, Owner: owner})
}

// TransferIssuerOwnership moves issuer ownership. Owner only. Mints stop
// honouring requests once ownership leaves the provisioned controller.
func (r *Registry) TransferIssuerOwnership(caller [20]byte, name string, newOwner [20]byte) error {
	issuer, err := r.getIssuer(name)
	if err != nil {
		return err
	}
	if caller != issuer.Owner {
		return ErrNotOwner
	}
	if newOwner == ([20]byte{}) {
		return errors.New("token: new owner required")
	}
	issuer.Owner = newOwner
	return r.state.IssuerPut(issuer)
}

func (r *Registry) getIssuer(name string) (*Issuer, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	issuer, ok, err := r.state.IssuerGet(strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrIssuerNotFound
	}
	return issuer, nil
}

// Issuer implements campaign.ReceiptResolver.
func (r *Registry) Issuer(name string) (campaign.ReceiptIssuer, error) {
	if _, err := r.getIssuer(name); err != nil {
		return nil, err
	}
	return &receiptHandle{registry: r, name: name}, nil
}

type receiptHandle struct {
	registry *Registry
	name     string
}

// Owner reports the current issuer owner.
func (h *receiptHandle) Owner() ([20]byte, error) {
	issuer, err := h.registry.getIssuer(h.name)
	if err != nil {
		return [20]byte{}, err
	}
	return issuer.Owner, nil
}

// Mint issues the numbered receipt to the recipient. Duplicate ids are
// rejected so the audit trail stays unambiguous.
func (h *receiptHandle) Mint(to [20]byte, id uint64) error {
	issuer, err := h.registry.getIssuer(h.name)
	if err != nil {
		return err
	}
	if issuer.Owner != issuer.Controller {
		return ErrIssuerDisowned
	}
	exists, err := h.registry.state.ReceiptHas(h.name, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s #%s", ErrReceiptExists, h.name, new(big.Int).SetUint64(id).String())
	}
	if err := h.registry.state.ReceiptPut(h.name, id, to); err != nil {
		return err
	}
	issuer.Minted++
	return h.registry.state.IssuerPut(issuer)
}
