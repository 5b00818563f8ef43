// Package fingerprint derives stable content hashes for chunks and documents.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Of returns the hex SHA-256 of the normalized text. Texts that differ only
// in line endings or runs of whitespace share a fingerprint.
func Of(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Document fingerprints a whole extracted document.
func Document(text string) string {
	return Of(text)
}

// Normalize converts CRLF to LF, collapses whitespace runs to a single space
// and trims the ends.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Join(strings.Fields(text), " ")
}
