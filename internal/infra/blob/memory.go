package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stackfolio/stackfolio/internal/domain/profile"
)

var _ profile.ReportStore = (*MemoryStore)(nil)

type memoryObject struct {
	data         []byte
	lastModified time.Time
}

// MemoryStore is an in-memory object store with the same key semantics as
// the MinIO store. Payloads are held decompressed; the .gzip suffix only
// marks intent.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) GetObject(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("fetching %s: object not found", key)
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (s *MemoryStore) PutObject(_ context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make([]byte, len(body))
	copy(data, body)
	s.objects[key] = memoryObject{data: data, lastModified: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) CopyObject(_ context.Context, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.objects[srcKey]
	if !ok {
		return fmt.Errorf("copying %s: object not found", srcKey)
	}
	data := make([]byte, len(src.data))
	copy(data, src.data)
	s.objects[dstKey] = memoryObject{data: data, lastModified: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) ListReports(_ context.Context, ownerID string) ([]profile.ReportObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := OwnerReportsPrefix(ownerID)
	var out []profile.ReportObject
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) && IsLatestReportKey(key) {
			out = append(out, profile.ReportObject{Key: key, LastModified: obj.lastModified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) GetReport(ctx context.Context, key string) ([]byte, error) {
	return s.GetObject(ctx, key)
}

func (s *MemoryStore) PutProfile(ctx context.Context, ownerID string, body []byte) error {
	return s.PutObject(ctx, ProfileKey(ownerID), body)
}

// Keys returns all object keys, sorted. Test helper.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
