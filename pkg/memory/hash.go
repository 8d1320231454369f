package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ComputeHash derives a deterministic digest over an observation's key
// facts: source, date, scope, and the amount rounded to two decimals. Free
// text is deliberately excluded so near-identical phrasings of the same
// fact still collide. The pairs are sorted before hashing, so the digest is
// independent of field ordering.
func ComputeHash(obs Observation) string {
	amount := math.Round(obs.Amount*100) / 100

	pairs := []string{
		"amount=" + fmt.Sprintf("%.2f", amount),
		"date=" + obs.Date,
		"scope=" + obs.Scope,
		"source=" + obs.Source,
	}

	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(sum[:])
}

// CanonicalText builds the text representation of an observation's key
// facts used by the semantic duplicate layer.
func CanonicalText(obs Observation) string {
	parts := []string{obs.Source}

	if obs.Date != "" {
		parts = append(parts, "on "+obs.Date)
	}

	if obs.Amount != 0 {
		parts = append(parts, fmt.Sprintf("for %.2f", obs.Amount))
	}

	if obs.Scope != "" {
		parts = append(parts, "("+obs.Scope+")")
	}

	if obs.Content != "" {
		parts = append(parts, "- "+obs.Content)
	}

	return strings.Join(parts, " ")
}

// DeterministicID derives a stable UUID from content plus metadata, so a
// retried save upserts the same point instead of creating a sibling.
// json.Marshal sorts map keys, which makes the input canonical.
func DeterministicID(content string, metadata map[string]any) string {
	canonical, err := json.Marshal(metadata)

	if err != nil {
		canonical = []byte("{}")
	}

	data := append([]byte(content), 0)
	data = append(data, canonical...)

	return uuid.NewSHA1(uuid.NameSpaceOID, data).String()
}

// HashText is the embedding-cache key function: a digest over the exact
// bytes of the text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
