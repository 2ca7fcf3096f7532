package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// AppIDRegex validates app ID format
	AppIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// PinRegex validates the user-entered pairing PIN
	PinRegex = regexp.MustCompile(`^[0-9]{4}$`)

	// PairSecretRegex validates the pair secret format
	PairSecretRegex = regexp.MustCompile(`^[a-f0-9]{32}$`)
)

// ValidateAppEntry validates the structural fields of a config app entry
func ValidateAppEntry(id, title, runnerType string) error {
	if err := ValidateAppID(id); err != nil {
		return err
	}
	if err := ValidateAppTitle(title); err != nil {
		return err
	}
	if strings.TrimSpace(runnerType) == "" {
		return fmt.Errorf("app runner type is required")
	}
	return nil
}

// ValidateAppID validates app ID
func ValidateAppID(appID string) error {
	if appID == "" {
		return fmt.Errorf("app ID is required")
	}
	if len(appID) > 100 {
		return fmt.Errorf("app ID is too long (max 100 characters)")
	}
	if !AppIDRegex.MatchString(appID) {
		return fmt.Errorf("invalid app ID format")
	}
	return nil
}

// ValidateAppTitle validates app title
func ValidateAppTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("app title is required")
	}
	if len(title) > 100 {
		return fmt.Errorf("app title is too long (max 100 characters)")
	}
	// Check for valid UTF-8
	if !utf8.ValidString(title) {
		return fmt.Errorf("app title contains invalid characters")
	}
	return nil
}

// ValidateClientName validates a paired client's display name
func ValidateClientName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) > 100 {
		return fmt.Errorf("client name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("client name contains invalid characters")
	}
	return nil
}

// ValidatePin validates the user-entered pairing PIN
func ValidatePin(pin string) error {
	if pin == "" {
		return fmt.Errorf("pin is required")
	}
	if !PinRegex.MatchString(pin) {
		return fmt.Errorf("pin must be exactly 4 digits")
	}
	return nil
}

// ValidatePairSecret validates the pair secret of a pairing attempt
func ValidatePairSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("pair secret is required")
	}
	if !PairSecretRegex.MatchString(secret) {
		return fmt.Errorf("invalid pair secret format")
	}
	return nil
}

// ValidateCertPEM performs a cheap structural check on a PEM certificate
func ValidateCertPEM(certPEM string) error {
	certPEM = strings.TrimSpace(certPEM)
	if certPEM == "" {
		return fmt.Errorf("certificate is required")
	}
	if !strings.HasPrefix(certPEM, "-----BEGIN CERTIFICATE-----") {
		return fmt.Errorf("certificate is not PEM encoded")
	}
	if !strings.HasSuffix(certPEM, "-----END CERTIFICATE-----") {
		return fmt.Errorf("certificate PEM block is not terminated")
	}
	return nil
}
