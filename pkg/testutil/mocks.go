// Package testutil provides common testing utilities and fakes.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/supabase"
)

// QuietLogger returns a logger that discards its output.
func QuietLogger() *logging.Logger {
	return logging.NewWithOutput("test", "info", "json", io.Discard)
}

// MemoryBucket is an in-memory object bucket satisfying uploads.Storage.
type MemoryBucket struct {
	mu      sync.RWMutex
	base    string
	objects map[string][]byte
	types   map[string]string
}

// NewMemoryBucket creates an empty bucket whose public URLs start with base.
func NewMemoryBucket(base string) *MemoryBucket {
	return &MemoryBucket{
		base:    base,
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Upload stores data at path.
func (b *MemoryBucket) Upload(_ context.Context, path string, data []byte, contentType string, _ bool) (*supabase.UploadResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = append([]byte(nil), data...)
	b.types[path] = contentType
	return &supabase.UploadResult{Key: path, ID: uuid.NewString()}, nil
}

// Remove deletes paths. Missing objects are ignored.
func (b *MemoryBucket) Remove(_ context.Context, paths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		delete(b.objects, p)
		delete(b.types, p)
	}
	return nil
}

// PublicURL returns base + path.
func (b *MemoryBucket) PublicURL(path string) string {
	return b.base + path
}

// Has reports whether path is stored.
func (b *MemoryBucket) Has(path string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[path]
	return ok
}

// ContentType returns the content type path was stored with.
func (b *MemoryBucket) ContentType(path string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.types[path]
}

// Paths lists the stored paths in order.
func (b *MemoryBucket) Paths() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.objects))
	for p := range b.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PNG returns a small valid PNG image.
func PNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: 160, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
