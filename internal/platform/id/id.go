// Package id generates URL-safe identifiers.
//
// Identifiers are UUIDv4 bytes encoded as unpadded base32 (RFC 4648),
// lowercased. The result is 26 characters and safe for URLs and file paths.
package id

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// New returns a fresh 26-character identifier.
func New() string {
	u := uuid.New()
	return strings.ToLower(encoding.EncodeToString(u[:]))
}
