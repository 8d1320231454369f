package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/mnemo/pkg/errors"
)

func testSchemas() []CollectionSchema {
	return []CollectionSchema{
		{
			Name:      "invoices",
			VectorDim: 4,
			Fields: []Field{
				{Name: "vendor", Type: FieldString, Required: true},
				{Name: "amount", Type: FieldFloat},
			},
		},
		{Name: "captions", VectorDim: 4},
	}
}

func TestNewRegistryValidation(t *testing.T) {
	t.Run("accepts valid schemas", func(t *testing.T) {
		reg, err := NewRegistry(testSchemas()...)
		assert.NoError(t, err)
		assert.Equal(t, []string{"captions", "invoices"}, reg.Names())
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewRegistry(CollectionSchema{VectorDim: 4})
		var cfgErr *errors.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("rejects non-positive dimension", func(t *testing.T) {
		_, err := NewRegistry(CollectionSchema{Name: "bad", VectorDim: 0})
		assert.Error(t, err)
	})

	t.Run("rejects duplicate declarations", func(t *testing.T) {
		_, err := NewRegistry(
			CollectionSchema{Name: "twice", VectorDim: 4},
			CollectionSchema{Name: "twice", VectorDim: 4},
		)
		assert.Error(t, err)
	})

	t.Run("defaults distance to cosine", func(t *testing.T) {
		reg, err := NewRegistry(CollectionSchema{Name: "plain", VectorDim: 4})
		assert.NoError(t, err)

		schema, err := reg.Get("plain")
		assert.NoError(t, err)
		assert.Equal(t, "Cosine", schema.Distance)
	})
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(testSchemas()...)
	assert.NoError(t, err)

	assert.True(t, reg.Has("invoices"))
	assert.False(t, reg.Has("unknown"))

	_, err = reg.Get("unknown")
	assert.Error(t, err)
}

func TestRegistryValidateMetadata(t *testing.T) {
	reg, err := NewRegistry(testSchemas()...)
	assert.NoError(t, err)

	t.Run("passes with required fields present", func(t *testing.T) {
		assert.NoError(t, reg.Validate("invoices", map[string]any{"vendor": "acme"}))
	})

	t.Run("fails on missing required field", func(t *testing.T) {
		err := reg.Validate("invoices", map[string]any{"amount": 22.70})
		assert.Error(t, err)
	})

	t.Run("allows unknown keys", func(t *testing.T) {
		assert.NoError(t, reg.Validate("invoices", map[string]any{
			"vendor": "acme",
			"extra":  true,
		}))
	})

	t.Run("fails on unknown collection", func(t *testing.T) {
		assert.Error(t, reg.Validate("unknown", nil))
	})
}

func TestRegistryNamesCopy(t *testing.T) {
	reg, err := NewRegistry(testSchemas()...)
	assert.NoError(t, err)

	names := reg.Names()
	names[0] = "mutated"

	assert.Equal(t, []string{"captions", "invoices"}, reg.Names())
}
