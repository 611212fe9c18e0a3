package models

import (
	"errors"
	"regexp"
	"strings"
)

// VerificationStatus classifies a content hash against the registry.
type VerificationStatus string

const (
	// StatusVerified means the registry has a positive match with no revocation flag.
	StatusVerified VerificationStatus = "verified"
	// StatusUnknown means no registry entry matches the hash.
	StatusUnknown VerificationStatus = "unknown"
	// StatusRevoked means the registry explicitly flags the file as unsafe.
	StatusRevoked VerificationStatus = "revoked"
)

// Source identifies which subsystem answered a lookup.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCached Source = "cached"
	SourceMixed  Source = "mixed"
)

// PluginRecord describes the plugin a hash belongs to.
type PluginRecord struct {
	Name     string `json:"name"`
	NexusID  int    `json:"nexusId"`
	Filename string `json:"filename,omitempty"`
	Author   string `json:"author,omitempty"`
}

// VerificationEntry is the verification result for a single queried hash.
type VerificationEntry struct {
	Hash   string             `json:"hash"`
	Status VerificationStatus `json:"status"`
	Plugin *PluginRecord      `json:"plugin,omitempty"`
	Source Source             `json:"source"`
}

// BatchResult aggregates the entries of one verification call.
// Verified+Unknown+Revoked always equals Scanned, and Scanned equals the
// length of the requested hash list (duplicates included).
type BatchResult struct {
	Scanned  int                 `json:"scanned"`
	Verified int                 `json:"verified"`
	Unknown  int                 `json:"unknown"`
	Revoked  int                 `json:"revoked"`
	Entries  []VerificationEntry `json:"entries"`
	Source   Source              `json:"source"`
}

// ErrEmptyBatch is returned when a caller submits an empty hash list.
var ErrEmptyBatch = errors.New("hashes list cannot be empty")

var sha256Pattern = regexp.MustCompile("^[a-fA-F0-9]{64}$")

// NormalizeHash lowercases a hash so lookups and storage agree on identity.
func NormalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// NormalizeHashes normalizes every hash in a list, preserving order and
// duplicates.
func NormalizeHashes(hashes []string) []string {
	normalized := make([]string, len(hashes))
	for i, h := range hashes {
		normalized[i] = NormalizeHash(h)
	}
	return normalized
}

// ValidateHash checks that a hash is a well-formed SHA-256 hex digest.
func ValidateHash(hash string) error {
	if !sha256Pattern.MatchString(hash) {
		return errors.New("hash must be a 64-character hexadecimal SHA-256 digest")
	}
	return nil
}
