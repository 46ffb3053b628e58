package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// Config selects a backend, the first of redis, url and file that is set
// wins. An empty config keeps everything in memory.
type Config struct {
	File      string      `json:"file"`
	Url       string      `json:"url"`
	AuthToken string      `json:"auth_token"`
	Redis     RedisConfig `json:"redis"`
}

func (config Config) Open(ctx context.Context) (KV, error) {
	switch {
	case config.Redis.Addr != "":
		prefix := config.Redis.Prefix
		if prefix == "" {
			prefix = "gradespeed:"
		}
		return NewRedisKV(ctx, &redis.Options{
			Addr:        config.Redis.Addr,
			Password:    config.Redis.Password,
			DB:          config.Redis.DB,
			DialTimeout: 5 * time.Second,
		}, prefix)
	case config.Url != "":
		values := url.Values{}
		if config.AuthToken != "" {
			values.Add("authToken", config.AuthToken)
		}
		db, err := sql.Open("libsql", config.Url+"?"+values.Encode())
		if err != nil {
			return nil, err
		}
		return newSqlKVOrClose(ctx, db)
	case config.File != "":
		db, err := OpenSqlite(config.File)
		if err != nil {
			return nil, err
		}
		return newSqlKVOrClose(ctx, db)
	}
	return NewMemoryKV(), nil
}

// OpenSqlite opens a local sqlite database, path may be ":memory:".
func OpenSqlite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// every connection to ":memory:" is a different database
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = db.Exec("pragma journal_mode = wal")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	return db, nil
}

func newSqlKVOrClose(ctx context.Context, db *sql.DB) (KV, error) {
	kv, err := NewSqlKV(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}
