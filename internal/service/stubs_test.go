package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/snapshot"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

// memoryStore keeps deep copies of records, keyed by type and id.
type memoryStore struct {
	mu        sync.Mutex
	codec     *snapshot.Codec
	records   map[models.EntityType]map[string]snapshot.Snapshot
	putErr    error
	deleteErr error
	getErr    error
	puts      int
	deletes   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		codec:   snapshot.NewCodec(),
		records: make(map[models.EntityType]map[string]snapshot.Snapshot),
	}
}

func (m *memoryStore) Get(ctx context.Context, entityType models.EntityType, id string) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	snap, ok := m.records[entityType][id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "not found")
	}
	return m.codec.Restore(entityType, snap)
}

func (m *memoryStore) Put(ctx context.Context, entityType models.EntityType, id string, rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	rec.SetRecordID(id)
	snap, err := m.codec.Capture(entityType, rec)
	if err != nil {
		return err
	}
	if m.records[entityType] == nil {
		m.records[entityType] = make(map[string]snapshot.Snapshot)
	}
	m.records[entityType][id] = snap
	m.puts++
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, entityType models.EntityType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.records[entityType][id]; !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "not found")
	}
	delete(m.records[entityType], id)
	m.deletes++
	return nil
}

func (m *memoryStore) List(ctx context.Context, entityType models.EntityType) ([]models.Record, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.records[entityType]))
	for id := range m.records[entityType] {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := m.Get(ctx, entityType, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// dump renders the whole store as canonical JSON per record.
func (m *memoryStore) dump(t *testing.T) map[string]string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for entityType, byID := range m.records {
		for id, snap := range byID {
			raw, err := snap.MarshalJSON()
			require.NoError(t, err)
			out[string(entityType)+"/"+id] = string(raw)
		}
	}
	return out
}

// memorySink is an in-memory audit sink with gap-free sequence numbers.
type memorySink struct {
	mu        sync.Mutex
	entries   []models.AuditLogEntry
	appendErr error
	listErr   error
	lists     int
}

func (s *memorySink) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	entry.Seq = int64(len(s.entries)) + 1
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memorySink) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	// same ceiling as the SQL sink
	limit := filter.Limit
	if limit > models.MaxAuditPageSize {
		limit = models.MaxAuditPageSize
	}
	out := make([]models.AuditLogEntry, 0)
	for _, e := range s.entries {
		if e.Seq <= filter.AfterSeq {
			continue
		}
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.Timestamp.Before(*filter.To) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memorySink) MaxSeq(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

func (s *memorySink) all() []models.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLogEntry(nil), s.entries...)
}

type allowAll bool

func (a allowAll) IsAuthorized(ctx context.Context, actor string) bool { return bool(a) }

var errDisk = errors.New("disk I/O error")

type engine struct {
	store    *memoryStore
	sink     *memorySink
	recorder *ChangeRecorder
	exec     *CommandExecutor
	history  *History
}

func newEngine() *engine {
	store := newMemoryStore()
	sink := &memorySink{}
	recorder := NewChangeRecorder(sink, 2, nil)
	exec := NewCommandExecutor(store, nil, nil)
	return &engine{
		store:    store,
		sink:     sink,
		recorder: recorder,
		exec:     exec,
		history:  NewHistory(exec, recorder, nil),
	}
}

func newStudent(id, first, grade string) *models.Student {
	return &models.Student{
		ID:         id,
		FirstName:  first,
		LastName:   "Lopez",
		DOB:        time.Date(2012, 4, 9, 0, 0, 0, 0, time.UTC),
		GradeLevel: grade,
		Status:     "Active",
	}
}
