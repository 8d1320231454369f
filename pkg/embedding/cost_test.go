package embedding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	t.Run("counts tokens from characters", func(t *testing.T) {
		estimate := EstimateCost([]string{strings.Repeat("x", 4000)}, "text-embedding-3-small")
		assert.Equal(t, 1000, estimate.Tokens)
		assert.InDelta(t, 0.00002, estimate.USD, 1e-9)
	})

	t.Run("rounds partial tokens up", func(t *testing.T) {
		estimate := EstimateCost([]string{"abcde"}, "text-embedding-3-small")
		assert.Equal(t, 2, estimate.Tokens)
	})

	t.Run("sums across texts", func(t *testing.T) {
		estimate := EstimateCost([]string{"abcd", "efgh"}, "text-embedding-3-small")
		assert.Equal(t, 2, estimate.Tokens)
	})

	t.Run("prices unknown models as ada", func(t *testing.T) {
		known := EstimateCost([]string{strings.Repeat("x", 4000)}, "text-embedding-ada-002")
		unknown := EstimateCost([]string{strings.Repeat("x", 4000)}, "some-future-model")
		assert.Equal(t, known.USD, unknown.USD)
	})

	t.Run("empty input costs nothing", func(t *testing.T) {
		estimate := EstimateCost(nil, "text-embedding-3-small")
		assert.Equal(t, 0, estimate.Tokens)
		assert.Equal(t, 0.0, estimate.USD)
	})
}
