package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Widths of the corresponding columns in the directory and log tables.
const (
	MaxDeviceIDLen  = 255
	MaxEventTypeLen = 64
	MaxMSISDNLen    = 32
	MaxCallIDLen    = 255
	MaxTargetLen    = 64

	MaxSubscriberIDLen = 255
	MaxVendorLen       = 128
	MaxEndpointLen     = 512
)

// CheckField rejects values the store cannot hold: longer than max characters,
// not valid UTF-8, or carrying control characters.
func CheckField(name, value string, max int) error {
	switch {
	case !utf8.ValidString(value):
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidInput, name)
	case utf8.RuneCountInString(value) > max:
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidInput, name, max)
	case strings.ContainsFunc(value, unicode.IsControl):
		return fmt.Errorf("%w: %s contains control characters", ErrInvalidInput, name)
	}
	return nil
}

// StripNUL drops NUL bytes. Postgres refuses them in text and JSONB values.
func StripNUL(s string) string {
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}
