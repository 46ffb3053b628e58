package store

import (
	"context"
	"database/sql"
	"errors"

	_ "embed"
)

//go:embed schema.sql
var Schema string

// SqlKV stores values in the kv table of a sqlite or libsql database.
type SqlKV struct {
	db *sql.DB
}

// NewSqlKV creates the kv table if it does not exist yet.
func NewSqlKV(ctx context.Context, db *sql.DB) (SqlKV, error) {
	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return SqlKV{}, err
	}
	return SqlKV{db: db}, nil
}

func (s SqlKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "select value from kv where key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s SqlKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		"insert into kv (key, value) values (?, ?) on conflict (key) do update set value = excluded.value",
		key, value,
	)
	return err
}

func (s SqlKV) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "delete from kv where key = ?", key)
	return err
}

func (s SqlKV) Close() error {
	return s.db.Close()
}
