package storage

import (
	"context"
	"sort"
	"sync"
)

// tables is the in-memory document set shared by the memory and file drivers.
// Callers hold the owning store's lock.
type tables map[string]map[string]Doc // table -> identity -> doc

func (t tables) find(table string, filter Filter, limit int) []Doc {
	docs := t[table]
	ids := make([]string, 0, len(docs))
	for id, d := range docs {
		if filter.Match(d) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Doc, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneDoc(docs[id]))
	}
	return out
}

func (t tables) put(table, id string, d Doc) {
	if t[table] == nil {
		t[table] = map[string]Doc{}
	}
	t[table][id] = d
}

func (t tables) remove(table string, filter Filter) []string {
	var ids []string
	for id, d := range t[table] {
		if filter.Match(d) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		delete(t[table], id)
	}
	return ids
}

type memoryStore struct {
	mu     sync.Mutex
	tables tables
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{tables: tables{}}
}

func (s *memoryStore) Find(ctx context.Context, table string, filter Filter) ([]Doc, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables.find(table, filter, 0), nil
}

func (s *memoryStore) FindOne(ctx context.Context, table string, filter Filter) (Doc, bool, error) {
	if err := checkTable(table); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.tables.find(table, filter, 1)
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

func (s *memoryStore) Upsert(ctx context.Context, table string, filter Filter, fields Doc) error {
	if err := checkTable(table); err != nil {
		return err
	}
	id := filter.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := applyUpsert(s.tables[table][id], filter, fields)
	if err != nil {
		return err
	}
	s.tables.put(table, id, next)
	return nil
}

func (s *memoryStore) Increment(ctx context.Context, table string, filter Filter, deltas map[string]float64) error {
	if err := checkTable(table); err != nil {
		return err
	}
	id := filter.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := applyIncrement(s.tables[table][id], filter, deltas)
	if err != nil {
		return err
	}
	s.tables.put(table, id, next)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, table string, filter Filter) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables.remove(table, filter)), nil
}

func (s *memoryStore) Close() error { return nil }
