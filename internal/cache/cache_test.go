package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "elghella:cache:public:equipment", Key("", "equipment"))
	assert.Equal(t, "elghella:cache:user-1:land", Key("user-1", "land"))
	assert.Equal(t, "user-1", ScopeOf(Key("user-1", "land")))
	assert.Equal(t, "", ScopeOf("other:key"))
	assert.Equal(t, "elghella:cache:*:land", ResourcePattern("land"))
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'x'
	v, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
	v[1] = 'y'
	v, _, _ = c.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
}

func TestMemoryCacheDeletes(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	for _, k := range []string{Key("", "land"), Key("u1", "land"), Key("u1", "labor"), Key("u2", "land")} {
		require.NoError(t, c.Set(ctx, k, []byte("[]"), 0))
	}

	require.NoError(t, c.DeleteMatch(ctx, ResourcePattern("land")))
	assert.Equal(t, 1, c.Len())
	_, ok, _ := c.Get(ctx, Key("u1", "labor"))
	assert.True(t, ok)

	require.NoError(t, c.Set(ctx, Key("u2", "labor"), []byte("[]"), 0))
	require.NoError(t, c.DeletePrefix(ctx, ScopePrefix("u1")))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, Key("u2", "labor"), "missing"))
	assert.Zero(t, c.Len())

	assert.Error(t, c.DeleteMatch(ctx, "[bad"))
}

func TestMemoryCacheClosed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Close())
	_, _, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), ErrClosed)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	type row struct {
		ID    string  `json:"id"`
		Price float64 `json:"price"`
	}
	require.NoError(t, SetJSON(ctx, c, "rows", []row{{"a", 10}}, time.Minute))

	var out []row
	ok, err := GetJSON(ctx, c, "rows", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []row{{"a", 10}}, out)

	ok, err = GetJSON(ctx, c, "missing", &out)
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "junk", []byte("{"), 0))
	_, err = GetJSON(ctx, c, "junk", &out)
	assert.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?\[c\]`, escapeGlob("a*b?[c]"))
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache("http://localhost:6379")
	assert.Error(t, err)
}

func TestRedisCacheIntegration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(url)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	key := Key("it-"+time.Now().Format("150405.000"), "equipment")
	require.NoError(t, c.Set(ctx, key, []byte("[]"), time.Minute))
	v, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(v))

	require.NoError(t, c.DeleteMatch(ctx, ResourcePattern("equipment")))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
