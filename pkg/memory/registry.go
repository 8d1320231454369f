package memory

import (
	"fmt"
	"sort"

	"github.com/theapemachine/mnemo/pkg/errors"
)

// FieldType enumerates the metadata field types a schema can declare.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldFloat  FieldType = "float"
	FieldInt    FieldType = "int"
	FieldBool   FieldType = "bool"
)

// Field declares one metadata field of a collection schema.
type Field struct {
	Name     string    `mapstructure:"name"`
	Type     FieldType `mapstructure:"type"`
	Required bool      `mapstructure:"required"`
}

// CollectionSchema declares a named partition of the vector index: its
// dimensionality, distance metric, and metadata shape.
type CollectionSchema struct {
	Name      string  `mapstructure:"name"`
	VectorDim int     `mapstructure:"dimension"`
	Distance  string  `mapstructure:"distance"`
	Fields    []Field `mapstructure:"fields"`
}

// Registry is the process-wide set of collection declarations. It is built
// once at startup and read-only afterwards; components receive it by
// injection rather than through a global.
type Registry struct {
	schemas map[string]CollectionSchema
	names   []string
}

// NewRegistry validates and freezes a set of collection schemas.
func NewRegistry(schemas ...CollectionSchema) (*Registry, error) {
	reg := &Registry{schemas: make(map[string]CollectionSchema, len(schemas))}

	for _, schema := range schemas {
		if schema.Name == "" {
			return nil, &errors.ConfigurationError{Field: "collection.name", Msg: "must not be empty"}
		}

		if schema.VectorDim <= 0 {
			return nil, &errors.ConfigurationError{
				Field: schema.Name + ".dimension",
				Msg:   fmt.Sprintf("must be positive, got %d", schema.VectorDim),
			}
		}

		if _, dup := reg.schemas[schema.Name]; dup {
			return nil, &errors.ConfigurationError{
				Field: schema.Name,
				Msg:   "collection declared twice",
			}
		}

		if schema.Distance == "" {
			schema.Distance = "Cosine"
		}

		reg.schemas[schema.Name] = schema
		reg.names = append(reg.names, schema.Name)
	}

	sort.Strings(reg.names)
	return reg, nil
}

// Get looks up one schema by collection name.
func (reg *Registry) Get(name string) (CollectionSchema, error) {
	schema, ok := reg.schemas[name]

	if !ok {
		return CollectionSchema{}, &errors.ConfigurationError{
			Field: name,
			Msg:   "unknown collection",
		}
	}

	return schema, nil
}

// Has reports whether a collection is declared.
func (reg *Registry) Has(name string) bool {
	_, ok := reg.schemas[name]
	return ok
}

// Names returns the declared collection names in sorted order.
func (reg *Registry) Names() []string {
	out := make([]string, len(reg.names))
	copy(out, reg.names)
	return out
}

// Validate checks metadata against a collection's declared fields. Unknown
// keys are allowed; missing required fields are not.
func (reg *Registry) Validate(name string, metadata map[string]any) error {
	schema, err := reg.Get(name)

	if err != nil {
		return err
	}

	for _, field := range schema.Fields {
		if !field.Required {
			continue
		}

		if _, ok := metadata[field.Name]; !ok {
			return &errors.ConfigurationError{
				Field: name + "." + field.Name,
				Msg:   "required metadata field missing",
			}
		}
	}

	return nil
}
