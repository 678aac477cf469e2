// Package scripting evaluates small JavaScript snippets that librarians attach
// to restricted documents, for instance to open every odd page of a preview.
package scripting

import "context"

// Engine represents a scripting engine (e.g., JavaScript).
type Engine interface {
	// Execute runs script and returns its exported completion value.
	Execute(ctx context.Context, script string) (interface{}, error)
	// Set binds a global visible to later scripts.
	Set(name string, value interface{}) error
}
