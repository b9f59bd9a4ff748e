package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned by Get when no live entry exists for a key
var ErrNotFound = errors.New("cache entry not found")

// Entry is a stored HTTP response
type Entry struct {
	Key        string
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the entry is dead at the given instant
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats summarizes the cache contents
type Stats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
	Bytes   int64 `json:"bytes"`
}

// Store handles cache persistence
type Store struct {
	db *sql.DB
}

// New opens (or creates) the cache database at dbPath
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Key derives the canonical cache key for a request.
// Parameter order, both across keys and within a key, does not affect the result.
func Key(method, rawURL string, params url.Values) string {
	canon := make(url.Values, len(params))
	for k, vs := range params {
		sorted := append([]string(nil), vs...)
		sort.Strings(sorted)
		canon[k] = sorted
	}

	var sb strings.Builder
	sb.WriteString(strings.ToUpper(method))
	sb.WriteString(" ")
	sb.WriteString(rawURL)
	sb.WriteString("?")
	sb.WriteString(canon.Encode())

	h := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(h[:])
}

// Get returns the live entry stored under key.
// An expired entry is deleted and reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, key string, now time.Time) (*Entry, error) {
	var (
		e                  Entry
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT key, method, url, status_code, body, created_at, expires_at FROM responses WHERE key = ?",
		key,
	).Scan(&e.Key, &e.Method, &e.URL, &e.StatusCode, &e.Body, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}

	e.CreatedAt = time.Unix(0, created)
	e.ExpiresAt = time.Unix(0, expiresAt)

	if e.Expired(now) {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM responses WHERE key = ? AND expires_at = ?", key, expiresAt); err != nil {
			return nil, fmt.Errorf("evict entry: %w", err)
		}
		return nil, ErrNotFound
	}

	return &e, nil
}

// Put stores an entry, replacing any previous entry with the same key
func (s *Store) Put(ctx context.Context, e *Entry) error {
	body := e.Body
	if body == nil {
		body = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (key, method, url, status_code, body, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status_code = excluded.status_code,
			body = excluded.body,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, e.Key, e.Method, e.URL, e.StatusCode, body, e.CreatedAt.UnixNano(), e.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// Prune deletes every entry that is expired at now and returns how many were removed
func (s *Store) Prune(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM responses WHERE expires_at <= ?", now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	return n, nil
}

// Stats counts stored entries, how many of them are already dead, and their body size
func (s *Store) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(LENGTH(body)), 0)
		FROM responses
	`, now.UnixNano()).Scan(&st.Entries, &st.Expired, &st.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return st, nil
}
