package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	logx "bigbrother/pkg/logx"
)

var postgresDialect = dialect{
	name: "postgres",
	schema: `CREATE TABLE IF NOT EXISTS documents (
	tbl        TEXT   NOT NULL,
	id         TEXT   NOT NULL,
	body       JSONB  NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (tbl, id)
)`,
	forUpdate:   " FOR UPDATE",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	fieldEquals: func(field, ph string) string {
		return "(jsonb_typeof(body->'" + field + "') = 'string' AND body->>'" + field + "' = " + ph + ")"
	},
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	st, err := newSQLStore(ctx, db, postgresDialect, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}
