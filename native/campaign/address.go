package campaign

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseAddress decodes a 0x-prefixed 20-byte hex identity.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("campaign: invalid address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("campaign: invalid address length %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// FormatAddress renders an identity as 0x-prefixed hex.
func FormatAddress(addr [20]byte) string { return hexAddr(addr) }

// ParseID decodes a 0x-prefixed 32-byte campaign identifier.
func ParseID(s string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("campaign: invalid campaign id %q: %w", s, err)
	}
	if len(raw) != 32 {
		return id, fmt.Errorf("campaign: invalid campaign id length %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// FormatID renders a campaign identifier as 0x-prefixed hex.
func FormatID(id [32]byte) string { return hexID(id) }
