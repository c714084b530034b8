package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CanonicalParticipants trims, de-duplicates and sorts ids so that equal sets
// compare equal regardless of input order. Blank ids are dropped.
func CanonicalParticipants(ids []string) []string {
	out := UniqueParticipants(ids)
	sort.Strings(out)
	return out
}

// UniqueParticipants trims and de-duplicates ids, keeping first occurrences
// in input order. Blank ids are dropped.
func UniqueParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// DirectKey returns the hex SHA-256 of the canonical participant set.
func DirectKey(ids []string) string {
	sum := sha256.Sum256([]byte(strings.Join(CanonicalParticipants(ids), ",")))
	return hex.EncodeToString(sum[:])
}

// UsernameKey folds a username for case-insensitive uniqueness. A Caser
// carries state, so one is built per call.
func UsernameKey(username string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(username))
}
