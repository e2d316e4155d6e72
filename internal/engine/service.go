package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"itemcore/internal/blob"
	"itemcore/pkg/schema"
)

// Service ties a compiled runtime to a snapshot store and a blob store. It
// covers the slot lifecycle: load a stored document into engine state, save
// the current state back, and manage file payloads for files properties.
type Service struct {
	rt     *Runtime
	store  SnapshotStore
	blobs  blob.Store
	logger *slog.Logger
}

// NewService constructs a service around an existing runtime. Store and blobs
// may be nil when the corresponding operations are not used.
func NewService(rt *Runtime, store SnapshotStore, blobs blob.Store) *Service {
	return &Service{rt: rt, store: store, blobs: blobs, logger: rt.logger}
}

// Runtime returns the underlying runtime.
func (s *Service) Runtime() *Runtime { return s.rt }

func (s *Service) definition(qualifiedPath string) (*ItemDefinition, error) {
	def, ok := s.rt.ItemDefinition(qualifiedPath)
	if !ok {
		return nil, &schema.ErrNotFound{Kind: "item definition", Name: qualifiedPath}
	}
	return def, nil
}

// SaveSlot validates the definition's current state for the slot (external
// checks included), persists the flattened document, and marks it as the new
// applied baseline.
func (s *Service) SaveSlot(ctx context.Context, definitionPath string, slot schema.SlotKey) (map[string]any, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}
	def, err := s.definition(definitionPath)
	if err != nil {
		return nil, err
	}
	value := def.ValueExternal(ctx, slot, ValueOptions{})
	flat := value.Flatten()
	if err := s.store.Save(ctx, definitionPath, slot, flat); err != nil {
		return nil, fmt.Errorf("save slot %s: %w", slot, err)
	}
	def.ApplyValue(slot, flat, ApplyOptions{})
	s.logger.Debug("slot saved", "definition", definitionPath, "slot", slot.String())
	return flat, nil
}

// LoadSlot fetches the stored document for the slot and applies it to the
// definition's state, resetting modification flags.
func (s *Service) LoadSlot(ctx context.Context, definitionPath string, slot schema.SlotKey) error {
	if s.store == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	def, err := s.definition(definitionPath)
	if err != nil {
		return err
	}
	flat, ok, err := s.store.Load(ctx, definitionPath, slot)
	if err != nil {
		return fmt.Errorf("load slot %s: %w", slot, err)
	}
	if !ok {
		return &schema.ErrNotFound{Kind: "snapshot", Name: definitionPath + " " + slot.String()}
	}
	def.ApplyValue(slot, flat, ApplyOptions{})
	s.logger.Debug("slot loaded", "definition", definitionPath, "slot", slot.String())
	return nil
}

// DeleteSlot removes the stored document and purges the slot's engine state.
func (s *Service) DeleteSlot(ctx context.Context, definitionPath string, slot schema.SlotKey) error {
	if s.store == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	def, err := s.definition(definitionPath)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, definitionPath, slot); err != nil {
		return fmt.Errorf("delete slot %s: %w", slot, err)
	}
	def.CleanValue(slot)
	return nil
}

// Slots lists the stored slots for a definition.
func (s *Service) Slots(ctx context.Context, definitionPath string) ([]schema.SlotKey, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}
	if _, err := s.definition(definitionPath); err != nil {
		return nil, err
	}
	return s.store.Slots(ctx, definitionPath)
}

// AttachFile uploads content to the blob store and appends a file entry to
// the files property's current value for the slot. The returned entry uses
// the wire shape the files validator expects.
func (s *Service) AttachFile(ctx context.Context, definitionPath, propertyID string, slot schema.SlotKey, name, contentType string, content io.Reader) (map[string]any, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("no blob store configured")
	}
	def, err := s.definition(definitionPath)
	if err != nil {
		return nil, err
	}
	prop, ok := def.Property(propertyID)
	if !ok {
		return nil, &schema.ErrNotFound{Kind: "property", Name: propertyID}
	}
	if prop.Definition().Type != schema.TypeFiles {
		return nil, fmt.Errorf("property %s is not a files property", propertyID)
	}
	id := uuid.NewString()
	key := id + "/" + name
	info, err := s.blobs.Put(ctx, key, content, blob.PutOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("store file %s: %w", name, err)
	}
	url := info.URL
	if signed, err := s.blobs.PresignURL(ctx, key, blob.SignedURLOptions{}); err == nil && signed != "" {
		url = signed
	}
	entry := map[string]any{
		"id":   id,
		"name": name,
		"type": contentType,
		"url":  url,
		"size": float64(info.Size),
	}
	current, _ := prop.Value(slot).([]any)
	next := append(append([]any{}, current...), entry)
	if err := prop.SetCurrentValue(slot, next, nil); err != nil {
		_, _ = s.blobs.Delete(ctx, key)
		return nil, err
	}
	s.logger.Debug("file attached", "definition", definitionPath, "property", propertyID, "slot", slot.String(), "file", name)
	return entry, nil
}

// DetachFile removes the entry with the given file id from the files
// property's current value and deletes its blob.
func (s *Service) DetachFile(ctx context.Context, definitionPath, propertyID string, slot schema.SlotKey, fileID string) error {
	if s.blobs == nil {
		return fmt.Errorf("no blob store configured")
	}
	def, err := s.definition(definitionPath)
	if err != nil {
		return err
	}
	prop, ok := def.Property(propertyID)
	if !ok {
		return &schema.ErrNotFound{Kind: "property", Name: propertyID}
	}
	current, _ := prop.Value(slot).([]any)
	var next []any
	var removed map[string]any
	for _, raw := range current {
		entry, ok := raw.(map[string]any)
		if ok && entry["id"] == fileID {
			removed = entry
			continue
		}
		next = append(next, raw)
	}
	if removed == nil {
		return &schema.ErrNotFound{Kind: "file", Name: fileID}
	}
	var value any
	if len(next) > 0 {
		value = next
	}
	if err := prop.SetCurrentValue(slot, value, nil); err != nil {
		return err
	}
	if name, ok := removed["name"].(string); ok {
		if _, err := s.blobs.Delete(ctx, fileID+"/"+name); err != nil {
			s.logger.Warn("delete file blob", "file", fileID, "error", err)
		}
	}
	return nil
}

// FileContent streams a stored file payload by its id and name.
func (s *Service) FileContent(ctx context.Context, fileID, name string) (blob.Info, io.ReadCloser, error) {
	if s.blobs == nil {
		return blob.Info{}, nil, fmt.Errorf("no blob store configured")
	}
	return s.blobs.Get(ctx, fileID+"/"+name)
}

// Close releases the snapshot store.
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
