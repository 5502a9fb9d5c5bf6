// Package fingerprint hashes note and card content so the importer can
// tell whether a file changed since the last sync.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize lowercases, trims and unifies line endings of each part, then
// joins them with newlines so "ab"+"c" and "a"+"bc" stay distinct.
func Normalize(parts ...string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		p = strings.ToLower(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		out[i] = strings.TrimSpace(p)
	}
	return strings.Join(out, "\n")
}

// Card returns the hex SHA-256 of a card's normalized front and back.
func Card(front, back string) string {
	return sum(Normalize(front, back))
}

// Note returns the hex SHA-256 of a note's normalized title and content.
func Note(title, content string) string {
	return sum(Normalize(title, content))
}

func sum(s string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}
