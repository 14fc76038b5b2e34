package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "bigbrother/pkg/logx"
)

const fileCompactEvery = 1000

// fileStore keeps every table in memory and persists it as:
//   - <prefix>.snapshot.json (all tables, rewritten on compaction)
//   - <prefix>.journal.jsonl (append-only puts/deletes since the snapshot)
//
// The journal is compacted into the snapshot on open and every fileCompactEvery writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	tables       tables
	snapshotPath string
	journal      *os.File
	writes       int
}

type journalRecord struct {
	Op    string `json:"op"` // "put" | "del"
	Table string `json:"table"`
	ID    string `json:"id"`
	Doc   Doc    `json:"doc,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	prefix := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		tables:       tables{},
		snapshotPath: prefix + ".snapshot.json",
	}
	if err := loadSnapshot(s.snapshotPath, s.tables); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	journalPath := prefix + ".journal.jsonl"
	if n, err := replayJournal(journalPath, s.tables); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	} else if n > 0 {
		log.Debug("storage journal replayed", logx.Int("records", n))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	if err := s.compactLocked(); err != nil {
		_ = jf.Close()
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) Find(ctx context.Context, table string, filter Filter) ([]Doc, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables.find(table, filter, 0), nil
}

func (s *fileStore) FindOne(ctx context.Context, table string, filter Filter) (Doc, bool, error) {
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

func (s *fileStore) Upsert(ctx context.Context, table string, filter Filter, fields Doc) error {
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
	return s.putLocked(table, id, next)
}

func (s *fileStore) Increment(ctx context.Context, table string, filter Filter, deltas map[string]float64) error {
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
	return s.putLocked(table, id, next)
}

func (s *fileStore) Delete(ctx context.Context, table string, filter Filter) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, errors.New("storage closed")
	}
	ids := s.tables.remove(table, filter)
	for _, id := range ids {
		if err := s.appendLocked(journalRecord{Op: "del", Table: table, ID: id}); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// putLocked journals the write before applying it in memory.
func (s *fileStore) putLocked(table, id string, d Doc) error {
	if s.journal == nil {
		return errors.New("storage closed")
	}
	if err := s.appendLocked(journalRecord{Op: "put", Table: table, ID: id, Doc: d}); err != nil {
		return err
	}
	s.tables.put(table, id, d)
	return nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%fileCompactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("storage compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.tables); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out tables) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var t tables
	if err := json.NewDecoder(f).Decode(&t); err != nil {
		return err
	}
	for name, docs := range t {
		for id, d := range docs {
			out.put(name, id, d)
		}
	}
	return nil
}

// replayJournal applies journal records on top of out. Torn trailing lines are skipped.
func replayJournal(path string, out tables) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Table == "" {
			continue
		}
		switch r.Op {
		case "put":
			out.put(r.Table, r.ID, r.Doc)
		case "del":
			delete(out[r.Table], r.ID)
		default:
			continue
		}
		n++
	}
	return n, sc.Err()
}
