package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	logx "bigbrother/pkg/logx"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name      string
	schema    string
	forUpdate string
	// placeholder returns the n-th (1-based) bind parameter.
	placeholder func(n int) string
	// fieldEquals renders "top-level string field equals bind parameter".
	fieldEquals func(field, ph string) string
}

// sqlStore stores every table in one "documents" relation keyed by (tbl, id).
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, log logx.Logger) (*sqlStore, error) {
	s := &sqlStore{db: db, d: d, log: log}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		return nil, fmt.Errorf("%s: migrate: %w", d.name, err)
	}
	return s, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// where renders the selection for table+filter, with placeholders starting at 1.
func (s *sqlStore) where(table string, filter Filter) (string, []any, error) {
	args := []any{table}
	clauses := []string{"tbl = " + s.d.placeholder(1)}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fieldNameRe.MatchString(k) {
			return "", nil, fmt.Errorf("storage: invalid filter field %q", k)
		}
		args = append(args, filter[k])
		clauses = append(clauses, s.d.fieldEquals(k, s.d.placeholder(len(args))))
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (s *sqlStore) query(ctx context.Context, table string, filter Filter, limit int) ([]Doc, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	where, args, err := s.where(table, filter)
	if err != nil {
		return nil, err
	}
	q := "SELECT body FROM documents WHERE " + where + " ORDER BY id"
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Doc
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var d Doc
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, fmt.Errorf("storage: corrupt document in %s: %w", table, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqlStore) Find(ctx context.Context, table string, filter Filter) ([]Doc, error) {
	docs, err := s.query(ctx, table, filter, 0)
	if docs == nil && err == nil {
		docs = []Doc{}
	}
	return docs, err
}

func (s *sqlStore) FindOne(ctx context.Context, table string, filter Filter) (Doc, bool, error) {
	docs, err := s.query(ctx, table, filter, 1)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

func (s *sqlStore) Upsert(ctx context.Context, table string, filter Filter, fields Doc) error {
	return s.update(ctx, table, filter, func(cur Doc) (Doc, error) {
		return applyUpsert(cur, filter, fields)
	})
}

func (s *sqlStore) Increment(ctx context.Context, table string, filter Filter, deltas map[string]float64) error {
	return s.update(ctx, table, filter, func(cur Doc) (Doc, error) {
		return applyIncrement(cur, filter, deltas)
	})
}

// update runs a read-modify-write on the document identified by filter.
// The row is created first so concurrent writers serialize on its lock.
func (s *sqlStore) update(ctx context.Context, table string, filter Filter, fn func(cur Doc) (Doc, error)) (err error) {
	if err := checkTable(table); err != nil {
		return err
	}
	id := filter.String()
	ph := s.d.placeholder

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	seed, err := applyUpsert(nil, filter, nil)
	if err != nil {
		return err
	}
	seedJSON, err := json.Marshal(seed)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	if _, err = tx.ExecContext(ctx,
		"INSERT INTO documents(tbl, id, body, updated_at) VALUES("+ph(1)+", "+ph(2)+", "+ph(3)+", "+ph(4)+") ON CONFLICT (tbl, id) DO NOTHING",
		table, id, string(seedJSON), now,
	); err != nil {
		return err
	}

	var body []byte
	if err = tx.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE tbl = "+ph(1)+" AND id = "+ph(2)+s.d.forUpdate,
		table, id,
	).Scan(&body); err != nil {
		return err
	}
	var cur Doc
	if err = json.Unmarshal(body, &cur); err != nil {
		return fmt.Errorf("storage: corrupt document in %s: %w", table, err)
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		"UPDATE documents SET body = "+ph(1)+", updated_at = "+ph(2)+" WHERE tbl = "+ph(3)+" AND id = "+ph(4),
		string(nextJSON), now, table, id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) Delete(ctx context.Context, table string, filter Filter) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	where, args, err := s.where(table, filter)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE "+where, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
