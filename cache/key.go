package cache

import (
	"fmt"
	"unicode/utf8"
)

// MaxKeyLength is the longest key, in characters (runes), accepted by
// ValidateKey.
const MaxKeyLength = 256

// ValidateKey rejects keys that are empty, not valid UTF-8, or longer than
// MaxKeyLength characters. The returned error wraps ErrInvalidKey.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidKey)
	}
	if n := utf8.RuneCountInString(key); n > MaxKeyLength {
		return fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidKey, n, MaxKeyLength)
	}
	return nil
}
