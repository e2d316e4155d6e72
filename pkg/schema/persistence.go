package schema

import "context"

// SnapshotStore persists flat value documents keyed by a definition's
// qualified path and a slot. It stands in for the remote backend the engine
// synchronizes with: Load feeds ApplyValue, Save records the flattened
// current tree as the new applied baseline.
type SnapshotStore interface {
	// Save upserts the flat value document for a definition and slot.
	Save(ctx context.Context, definitionPath string, slot SlotKey, value map[string]any) error
	// Load returns the stored document, reporting presence explicitly.
	Load(ctx context.Context, definitionPath string, slot SlotKey) (map[string]any, bool, error)
	// Delete removes the document; deleting an absent document is not an error.
	Delete(ctx context.Context, definitionPath string, slot SlotKey) error
	// Slots lists the stored slots for a definition, sorted by id then version.
	Slots(ctx context.Context, definitionPath string) ([]SlotKey, error)
	// Close releases any underlying resources.
	Close() error
}
