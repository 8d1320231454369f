package errors

import "fmt"

// EmbeddingError indicates the embedding provider was unreachable, returned
// a malformed response, or exhausted its retry budget.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: %s: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexError indicates the vector index service failed: unreachable,
// collection missing, or a malformed query.
type IndexError struct {
	Op         string
	Collection string
	Err        error
}

func (e *IndexError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("index: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index: %s: collection %q: %v", e.Op, e.Collection, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// CacheError is recorded when the working cache misbehaves. It is always
// recovered locally and never surfaces past the cache layer.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache: %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ConfigurationError covers missing credentials, unknown collection names
// and invalid schema declarations. Fatal at startup.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

// ConnectionError is raised by Manager.Initialize when the vector index is
// unhealthy and fallback is disabled.
type ConnectionError struct {
	Service string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection: %s unavailable: %v", e.Service, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DuplicateCheckError records a single detector layer whose collaborator
// failed. It never blocks the remaining layers.
type DuplicateCheckError struct {
	Layer string
	Err   error
}

func (e *DuplicateCheckError) Error() string {
	return fmt.Sprintf("duplicate check: layer %s: %v", e.Layer, e.Err)
}

func (e *DuplicateCheckError) Unwrap() error { return e.Err }
