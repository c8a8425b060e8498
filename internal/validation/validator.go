package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
)

// MaxDisplayNameLength caps wallet display names
const MaxDisplayNameLength = 64

// MaxMessageLength caps personal messages accepted for signing (64KB)
const MaxMessageLength = 64 * 1024

// ValidateEthereumAddress validates an Ethereum address format
func ValidateEthereumAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid Ethereum address format: must be 0x followed by 40 hex characters")
	}

	return nil
}

// ValidateOrigin validates a caller origin. Origins are http(s) URLs with
// a host and no path, the form browsers put in the Origin header.
func ValidateOrigin(origin string) error {
	if origin == "" {
		return fmt.Errorf("origin cannot be empty")
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("origin must include a host")
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("origin must not include a path")
	}

	return nil
}

// ValidateDisplayName validates a wallet display name
func ValidateDisplayName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("display name cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxDisplayNameLength {
		return fmt.Errorf("display name too long: maximum %d characters", MaxDisplayNameLength)
	}
	return nil
}

// ValidateSignableMessage validates a personal message submitted for signing
func ValidateSignableMessage(message string) error {
	if message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if len(message) > MaxMessageLength {
		return fmt.Errorf("message too large: %d bytes > %d bytes max", len(message), MaxMessageLength)
	}
	return nil
}

// ValidatePassword checks that the password field was supplied. Strength
// scoring is advisory and handled separately.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	return nil
}
