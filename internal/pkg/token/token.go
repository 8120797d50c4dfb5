package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewClientID generates a random page identifier. It is stamped on every
// mutation a page causes so the page can recognise its own echoes.
func NewClientID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate client id: %w", err)
	}
	return "page-" + hex.EncodeToString(b), nil
}
