package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingRebuilder struct {
	calls atomic.Int32
	err   error
	path  atomic.Value
}

func (c *countingRebuilder) RebuildFromFile(_ context.Context, path string) (IngestReport, error) {
	c.calls.Add(1)
	c.path.Store(path)
	if c.err != nil {
		return IngestReport{}, c.err
	}
	return IngestReport{Documents: 1, Chunks: 3}, nil
}

func TestRefresher_Refresh(t *testing.T) {
	rb := &countingRebuilder{}
	path := filepath.Join(t.TempDir(), "kb.txt")
	r := NewRefresher(rb, RefresherConfig{Path: path}, zaptest.NewLogger(t))

	report, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, path, rb.path.Load())
}

func TestRefresher_RefreshFailureIsReturned(t *testing.T) {
	rb := &countingRebuilder{err: errors.New("extract failed")}
	r := NewRefresher(rb, RefresherConfig{Path: "kb.pdf"}, nil)
	_, err := r.Refresh(context.Background())
	assert.Error(t, err)
}

func TestRefresher_InvalidSchedule(t *testing.T) {
	r := NewRefresher(&countingRebuilder{}, RefresherConfig{Path: "kb.pdf", Schedule: "every tuesday"}, nil)
	assert.Error(t, r.Start(context.Background()))
}

func TestRefresher_WatchTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	rb := &countingRebuilder{}
	r := NewRefresher(rb, RefresherConfig{Path: path, Watch: true, Debounce: 20 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))

	assert.Eventually(t, func() bool { return rb.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRefresher_ScheduleAndStop(t *testing.T) {
	r := NewRefresher(&countingRebuilder{}, RefresherConfig{Path: "kb.txt", Schedule: "@every 1h"}, nil)
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
	r.Stop()
}

func TestRefresher_Relevant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.pdf")
	r := NewRefresher(&countingRebuilder{}, RefresherConfig{Path: path}, nil)

	assert.True(t, r.relevant(fsnotify.Event{Name: path, Op: fsnotify.Write}))
	assert.True(t, r.relevant(fsnotify.Event{Name: path, Op: fsnotify.Create}))
	assert.True(t, r.relevant(fsnotify.Event{Name: path, Op: fsnotify.Write | fsnotify.Chmod}))
	assert.False(t, r.relevant(fsnotify.Event{Name: path, Op: fsnotify.Chmod}))
	assert.False(t, r.relevant(fsnotify.Event{Name: path, Op: fsnotify.Remove}))
	assert.False(t, r.relevant(fsnotify.Event{Name: path + ".swp", Op: fsnotify.Write}))
}
