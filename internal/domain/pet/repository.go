package pet

import "context"

// Registry answers questions about pets owned by the pet registry.
type Registry interface {
	// Exists reports whether an active pet with the code is registered.
	Exists(ctx context.Context, petCode string) (bool, error)
	// FindByCodes returns the known active pets among codes, keyed by pet code.
	FindByCodes(ctx context.Context, petCodes []string) (map[string]*Pet, error)
}

// Projection is the write side of the local registry copy, fed by pet events.
type Projection interface {
	Registry
	Upsert(ctx context.Context, pet *Pet) error
	MarkRemoved(ctx context.Context, petCode string) error
}
