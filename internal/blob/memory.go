package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	info Info
	data []byte
}

// Memory implements Store backed by process memory. Intended for tests.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memoryEntry
}

// NewMemory returns an in-memory blob store.
func NewMemory() *Memory { return &Memory{objs: make(map[string]memoryEntry)} }

// Driver returns the blob driver identifier.
func (s *Memory) Driver() Driver { return DriverMemory }

// Put stores a new blob; errors if key exists.
func (s *Memory) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return Info{}, fmt.Errorf("blob %s already exists", key)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	now := time.Now().UTC()
	info := Info{Key: key, Size: int64(len(b)), ContentType: opts.ContentType, Metadata: cloneMetadata(opts.Metadata), LastModified: now, URL: memoryURL(key)}
	s.objs[key] = memoryEntry{info: info, data: b}
	return info, nil
}

// Get returns blob metadata and a read closer to its content.
func (s *Memory) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, nil, fmt.Errorf("blob %s not found", key)
	}
	dataCopy := make([]byte, len(obj.data))
	copy(dataCopy, obj.data)
	infoCopy := obj.info
	infoCopy.Metadata = cloneMetadata(infoCopy.Metadata)
	return infoCopy, io.NopCloser(bytes.NewReader(dataCopy)), nil
}

// Head returns blob metadata only.
func (s *Memory) Head(_ context.Context, key string) (Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return Info{}, fmt.Errorf("blob %s not found", key)
	}
	infoCopy := obj.info
	infoCopy.Metadata = cloneMetadata(infoCopy.Metadata)
	return infoCopy, nil
}

// Delete removes the blob returning true if it existed.
func (s *Memory) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	if ok {
		delete(s.objs, key)
	}
	return ok, nil
}

// List returns all blobs matching prefix, sorted by key.
func (s *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.objs))
	for k, v := range s.objs {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			inf := v.info
			inf.Metadata = cloneMetadata(inf.Metadata)
			out = append(out, inf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL returns a pseudo URL; the memory driver has no signing.
func (s *Memory) PresignURL(_ context.Context, key string, opts SignedURLOptions) (string, error) {
	if opts.Method != "" && strings.ToUpper(opts.Method) != "GET" {
		return "", ErrUnsupported
	}
	return memoryURL(key), nil
}

func memoryURL(key string) string { return "memory://" + key }
