package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeHashIgnoresPhrasing(t *testing.T) {
	first := Observation{
		Content: "Train ticket from Acme Rail, EUR 22.70",
		Source:  "acme-rail",
		Date:    "2026-03-14",
		Scope:   "travel",
		Amount:  22.70,
	}
	second := first
	second.Content = "22,70 paid to ACME for the 14/03 train"

	assert.Equal(t, ComputeHash(first), ComputeHash(second))
}

func TestComputeHashRoundsAmount(t *testing.T) {
	first := Observation{Source: "acme", Date: "2026-01-02", Amount: 10.004}
	second := Observation{Source: "acme", Date: "2026-01-02", Amount: 10.0041}
	third := Observation{Source: "acme", Date: "2026-01-02", Amount: 10.01}

	assert.Equal(t, ComputeHash(first), ComputeHash(second))
	assert.NotEqual(t, ComputeHash(first), ComputeHash(third))
}

func TestComputeHashDistinguishesKeyFacts(t *testing.T) {
	base := Observation{Source: "acme", Date: "2026-01-02", Scope: "travel", Amount: 10}

	changed := base
	changed.Date = "2026-01-03"
	assert.NotEqual(t, ComputeHash(base), ComputeHash(changed))

	changed = base
	changed.Source = "other"
	assert.NotEqual(t, ComputeHash(base), ComputeHash(changed))

	changed = base
	changed.Scope = "meals"
	assert.NotEqual(t, ComputeHash(base), ComputeHash(changed))
}

func TestDeterministicIDStable(t *testing.T) {
	metadata := map[string]any{"vendor": "acme", "amount": 22.70}

	first := DeterministicID("train ticket", metadata)
	second := DeterministicID("train ticket", map[string]any{"amount": 22.70, "vendor": "acme"})

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, DeterministicID("bus ticket", metadata))
	assert.NotEqual(t, first, DeterministicID("train ticket", map[string]any{"vendor": "acme"}))
}

func TestDeterministicIDIsUUID(t *testing.T) {
	id := DeterministicID("anything", nil)
	assert.Len(t, id, 36)
}

func TestCanonicalTextSkipsEmptyFacts(t *testing.T) {
	full := Observation{
		Content: "train ticket",
		Source:  "acme-rail",
		Date:    "2026-03-14",
		Scope:   "travel",
		Amount:  22.70,
	}
	assert.Equal(t, "acme-rail on 2026-03-14 for 22.70 (travel) - train ticket", CanonicalText(full))

	sparse := Observation{Source: "acme-rail", Content: "train ticket"}
	assert.Equal(t, "acme-rail - train ticket", CanonicalText(sparse))
}

func TestHashTextExactBytes(t *testing.T) {
	assert.Equal(t, HashText("abc"), HashText("abc"))
	assert.NotEqual(t, HashText("abc"), HashText("abc "))
}
