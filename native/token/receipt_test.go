package token_test

import (
	"errors"
	"testing"

	"fundvault/native/token"
)

var vault = [20]byte{0xff}

func TestProvisionRejectsDuplicates(t *testing.T) {
	registry := newTestRegistry(t)
	if err := registry.Provision("campaign/investor", vault); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := registry.Provision("campaign/investor", vault); !errors.Is(err, token.ErrIssuerExists) {
		t.Fatalf("got %v, want ErrIssuerExists", err)
	}
}

func TestMintNumbersReceipts(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Provision("campaign/course", vault)
	issuer, err := registry.Issuer("campaign/course")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	if err := issuer.Mint(alice, 0); err != nil {
		t.Fatalf("mint 0: %v", err)
	}
	if err := issuer.Mint(bob, 1); err != nil {
		t.Fatalf("mint 1: %v", err)
	}
	if err := issuer.Mint(bob, 0); !errors.Is(err, token.ErrReceiptExists) {
		t.Fatalf("duplicate id: got %v, want ErrReceiptExists", err)
	}
}

func TestMintStopsAfterOwnershipTransfer(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Provision("campaign/course", vault)
	issuer, _ := registry.Issuer("campaign/course")

	if err := registry.TransferIssuerOwnership(alice, "campaign/course", alice); !errors.Is(err, token.ErrNotOwner) {
		t.Fatalf("non-owner transfer: got %v, want ErrNotOwner", err)
	}
	if err := registry.TransferIssuerOwnership(vault, "campaign/course", alice); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, err := issuer.Owner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if owner != alice {
		t.Fatalf("owner = %x, want transferred", owner)
	}
	if err := issuer.Mint(bob, 0); !errors.Is(err, token.ErrIssuerDisowned) {
		t.Fatalf("mint after transfer: got %v, want ErrIssuerDisowned", err)
	}
}

func TestIssuerUnknownName(t *testing.T) {
	registry := newTestRegistry(t)
	if _, err := registry.Issuer("nope"); !errors.Is(err, token.ErrIssuerNotFound) {
		t.Fatalf("got %v, want ErrIssuerNotFound", err)
	}
}
