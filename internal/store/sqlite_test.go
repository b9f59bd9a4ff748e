package store

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(key string, created time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Key:        key,
		Method:     "GET",
		URL:        "https://api.example.com/search",
		StatusCode: 200,
		Body:       []byte(`{"items":[]}`),
		CreatedAt:  created,
		ExpiresAt:  created.Add(ttl),
	}
}

func TestKey_OrderIndependent(t *testing.T) {
	a := url.Values{}
	a.Add("site", "stackoverflow")
	a.Add("pagesize", "5")
	a.Add("tagged", "python")

	b := url.Values{}
	b.Add("tagged", "python")
	b.Add("pagesize", "5")
	b.Add("site", "stackoverflow")

	assert.Equal(t, Key("GET", "https://x/search", a), Key("get", "https://x/search", b))

	multiA := url.Values{"tag": {"a", "b"}}
	multiB := url.Values{"tag": {"b", "a"}}
	assert.Equal(t, Key("GET", "u", multiA), Key("GET", "u", multiB))
}

func TestKey_Distinguishes(t *testing.T) {
	p := url.Values{"pagesize": {"5"}}
	base := Key("GET", "https://x/search", p)

	assert.NotEqual(t, base, Key("GET", "https://x/other", p))
	assert.NotEqual(t, base, Key("POST", "https://x/search", p))
	assert.NotEqual(t, base, Key("GET", "https://x/search", url.Values{"pagesize": {"6"}}))
	assert.Len(t, base, 64)
}

func TestPutAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Put(ctx, entry("k1", now, time.Hour)))

	got, err := s.Get(ctx, "k1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, `{"items":[]}`, string(got.Body))
	assert.Equal(t, now.UnixNano(), got.CreatedAt.UnixNano())
}

func TestGet_Missing(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(context.Background(), "nope", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_ExpiredIsEvicted(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Put(ctx, entry("k1", now, time.Hour)))

	_, err := s.Get(ctx, "k1", now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	st, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Entries)
}

func TestPut_Replaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Put(ctx, entry("k1", now, time.Hour)))

	e := entry("k1", now, 2*time.Hour)
	e.StatusCode = 400
	e.Body = []byte(`{"error_id":400}`)
	require.NoError(t, s.Put(ctx, e))

	got, err := s.Get(ctx, "k1", now.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 400, got.StatusCode)
	assert.Equal(t, `{"error_id":400}`, string(got.Body))
}

func TestPruneAndStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Put(ctx, entry("old", now.Add(-2*time.Hour), time.Hour)))
	require.NoError(t, s.Put(ctx, entry("fresh", now, time.Hour)))

	st, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Entries)
	assert.Equal(t, int64(1), st.Expired)
	assert.Equal(t, int64(2*len(`{"items":[]}`)), st.Bytes)

	n, err := s.Prune(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "fresh", now)
	assert.NoError(t, err)
}

func TestConcurrentAccess(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key("GET", "https://x", url.Values{"i": {string(rune('a' + i))}})
			assert.NoError(t, s.Put(ctx, entry(key, now, time.Hour)))
			_, err := s.Get(ctx, key, now)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(16), st.Entries)
}

func TestNewCreatesDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "deep", "cache.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	s.Close()

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}
