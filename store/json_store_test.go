package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestJSONStore(t *testing.T) (*JSONStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewJSONStore(dir, zap.NewNop())
	require.NoError(t, err)
	return s, dir
}

func TestJSONStore_GetMissingReturnsNil(t *testing.T) {
	s, _ := newTestJSONStore(t)

	v, err := s.Get(context.Background(), "payments", "1-2")
	require.NoError(t, err)
	assert.Nil(t, v)

	all, err := s.GetAll(context.Background(), "payments")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestJSONStore_PutGetDelete(t *testing.T) {
	s, dir := newTestJSONStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "payments", "g-u", json.RawMessage(`{"status":"pending"}`)))
	require.NoError(t, s.Put(ctx, "payments", "g-v", json.RawMessage(`{"status":"completed"}`)))

	v, err := s.Get(ctx, "payments", "g-u")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"pending"}`, string(v))

	data, err := os.ReadFile(filepath.Join(dir, "payments.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"g-u\"")

	require.NoError(t, s.Delete(ctx, "payments", "g-u"))
	all, err := s.GetAll(ctx, "payments")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "g-v")
}

func TestJSONStore_CorruptDocumentReadsAsEmpty(t *testing.T) {
	s, dir := newTestJSONStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo_usage.json"), []byte("{not json"), 0o644))

	v, err := s.Get(context.Background(), "demo_usage", "g-u")
	require.NoError(t, err)
	assert.Nil(t, v)

	all, err := s.GetAll(context.Background(), "demo_usage")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestJSONStore_WriteOverCorruptDocumentKeepsIt(t *testing.T) {
	s, dir := newTestJSONStore(t)
	ctx := context.Background()
	path := filepath.Join(dir, "payments.json")
	original := []byte(`{"664-120":{"status":"completed"},"664-121":{"status":"completed"}},`)
	require.NoError(t, os.WriteFile(path, original, 0o644))

	err := s.Put(ctx, "payments", "664-122", json.RawMessage(`{"status":"pending"}`))
	require.ErrorIs(t, err, ErrCorruptCollection)

	err = s.Delete(ctx, "payments", "664-120")
	require.ErrorIs(t, err, ErrCorruptCollection)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, data)

	copies, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.NotEmpty(t, copies)
	saved, err := os.ReadFile(copies[0])
	require.NoError(t, err)
	assert.Equal(t, original, saved)
}

func TestJSONStore_UnreadableDocumentRefusesWrites(t *testing.T) {
	s, dir := newTestJSONStore(t)
	// A directory in place of the document makes every read fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "payments.json"), 0o755))

	err := s.Put(context.Background(), "payments", "g-u", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorruptCollection)

	v, err := s.Get(context.Background(), "payments", "g-u")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestJSONStore_ConcurrentWritersDifferentKeys(t *testing.T) {
	s, _ := newTestJSONStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "g-" + string(rune('a'+i))
			assert.NoError(t, s.Put(ctx, "payments", key, json.RawMessage(`{}`)))
		}(i)
	}
	wg.Wait()

	all, err := s.GetAll(ctx, "payments")
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
