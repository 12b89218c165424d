package memory

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxSessionIDLen = 128
	maxMetadataKeys = 32
)

// ValidateSessionID rejects empty, oversized or non-printable session IDs.
// Session IDs become storage keys, so the character set is kept tight.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if len(id) > maxSessionIDLen {
		return fmt.Errorf("%w: session_id exceeds %d characters", ErrValidation, maxSessionIDLen)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return fmt.Errorf("%w: session_id contains invalid character %q", ErrValidation, r)
		}
	}
	return nil
}

// ValidateContent rejects empty or invalid-UTF8 content.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrValidation)
	}
	return nil
}

// ValidateMetadata enforces the scalar value union. JSON numbers decode as
// float64, so that is the only numeric type accepted here.
func ValidateMetadata(md Metadata) error {
	if len(md) > maxMetadataKeys {
		return fmt.Errorf("%w: metadata exceeds %d keys", ErrValidation, maxMetadataKeys)
	}
	for k, v := range md {
		if k == "" {
			return fmt.Errorf("%w: metadata key must not be empty", ErrValidation)
		}
		switch v.(type) {
		case string, float64, bool:
		default:
			return fmt.Errorf("%w: metadata value for %q must be a string, number or boolean", ErrValidation, k)
		}
	}
	return nil
}
