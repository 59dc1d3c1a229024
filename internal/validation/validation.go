// Package validation provides input validation for pns-indexer.
package validation

import (
	"errors"
	"regexp"
	"strings"
)

// Label validation
// Simple labels: lowercase alphanumeric with hyphens, 2-64 chars
var labelRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}[a-z0-9]$`)

// Base58 alphabet used by Solana addresses and mints.
var base58Regex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// ValidateLabel validates a domain label
func ValidateLabel(label string) error {
	if len(label) < 2 {
		return errors.New("label too short (min 2 chars)")
	}
	if len(label) > 64 {
		return errors.New("label too long (max 64 chars)")
	}
	if !labelRegex.MatchString(label) {
		return errors.New("invalid label: must be lowercase alphanumeric with hyphens")
	}
	if strings.Contains(label, "--") {
		return errors.New("invalid characters in label")
	}
	return nil
}

// ValidateNameHash validates a 32-byte hash in 0x-prefixed hex form
func ValidateNameHash(h string) error {
	return validateHash(h, 64, "name hash")
}

// ValidateKeyHash validates a record key hash
func ValidateKeyHash(h string) error {
	return validateHash(h, 64, "key hash")
}

func validateHash(h string, hexLen int, what string) error {
	if !strings.HasPrefix(h, "0x") {
		return errors.New("invalid " + what + ": must start with 0x")
	}
	body := h[2:]
	if len(body) != hexLen {
		return errors.New("invalid " + what + " length")
	}
	if !isHex(body) {
		return errors.New("invalid " + what + ": contains non-hex characters")
	}
	return nil
}

// NormalizeHash lowercases a 0x-prefixed hash for storage lookups
func NormalizeHash(h string) string {
	return strings.ToLower(h)
}

// IsNameHash reports whether s looks like a name hash rather than a label
func IsNameHash(s string) bool {
	return ValidateNameHash(s) == nil
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	if !isHex(addr[2:]) {
		return errors.New("invalid address: contains non-hex characters")
	}
	return nil
}

// ValidateSolanaAddress validates a base58 Solana public key
func ValidateSolanaAddress(addr string) error {
	if len(addr) < 32 || len(addr) > 44 {
		return errors.New("invalid solana address length")
	}
	if !base58Regex.MatchString(addr) {
		return errors.New("invalid solana address: contains non-base58 characters")
	}
	return nil
}

// ValidateOwner accepts either chain's address form
func ValidateOwner(addr string) error {
	if strings.HasPrefix(addr, "0x") {
		return ValidateAddress(addr)
	}
	return ValidateSolanaAddress(addr)
}

func isHex(s string) bool {
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return len(s) > 0
}
