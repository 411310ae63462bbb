package converge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault-sub002/pkg/poll"
	"github.com/robcohen/peervault-sub002/pkg/testutil"
)

var fastPoll = poll.Config{
	Timeout:     2 * time.Second,
	MinInterval: 5 * time.Millisecond,
	MaxInterval: 20 * time.Millisecond,
}

// scriptedVersions replays a fixed sequence of version strings, holding the
// final value once the script runs out.
type scriptedVersions struct {
	mu     sync.Mutex
	script []string
	calls  int
}

func (s *scriptedVersions) VersionVector(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i], nil
}

// fakeStore is an in-memory FileStore.
type fakeStore struct {
	mu    sync.Mutex
	files map[string]string
}

func newFakeStore(files map[string]string) *fakeStore {
	if files == nil {
		files = map[string]string{}
	}
	return &fakeStore{files: files}
}

func (s *fakeStore) set(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

func (s *fakeStore) remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

func (s *fakeStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok, nil
}

func (s *fakeStore) Read(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	if !ok {
		return "", errors.New("file not found")
	}
	return content, nil
}

func (s *fakeStore) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	return paths, nil
}

func TestVersionVectorConvergesOnlyOnSimultaneousMatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	// Peer A lags one round behind peer B. A transient half-updated pair
	// ("abc"/"xyz") must not count as convergence.
	a := &scriptedVersions{script: []string{"abc", "abc", "xyz"}}
	b := &scriptedVersions{script: []string{"xyz", "xyz", "xyz"}}

	vv, err := VersionVector(ctx, fastPoll, a, b)
	require.NoError(t, err)
	assert.Equal(t, "xyz", vv)
	assert.Equal(t, 3, a.calls)
	assert.Equal(t, 3, b.calls)
}

func TestVersionVectorDivergenceNamesBothSides(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	a := &scriptedVersions{script: []string{"abc"}}
	b := &scriptedVersions{script: []string{"xyz"}}

	cfg := fastPoll
	cfg.Timeout = 100 * time.Millisecond

	_, err := VersionVector(ctx, cfg, a, b)
	require.Error(t, err)
	assert.True(t, poll.IsTimeout(err))
	assert.Contains(t, err.Error(), `"abc"`)
	assert.Contains(t, err.Error(), `"xyz"`)
}

func TestFileExistsSeesLateArrival(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	store := newFakeStore(nil)
	go func() {
		time.Sleep(30 * time.Millisecond)
		store.set("notes/hello.md", "# hi")
	}()

	require.NoError(t, FileExists(ctx, fastPoll, store, "notes/hello.md"))
}

func TestFileAbsentSeesDeletion(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	store := newFakeStore(map[string]string{"doomed.md": "x"})
	go func() {
		time.Sleep(30 * time.Millisecond)
		store.remove("doomed.md")
	}()

	require.NoError(t, FileAbsent(ctx, fastPoll, store, "doomed.md"))
}

func TestFileContentToleratesMissingFileUntilItSyncs(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	a := newFakeStore(map[string]string{"n.md": "v2"})
	b := newFakeStore(nil) // file has not synced over yet; Read errors
	go func() {
		time.Sleep(30 * time.Millisecond)
		b.set("n.md", "v1")
		time.Sleep(30 * time.Millisecond)
		b.set("n.md", "v2")
	}()

	require.NoError(t, FileContent(ctx, fastPoll, a, b, "n.md"))
}

func TestFileSetsTimeoutNamesSymmetricDifference(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	a := newFakeStore(map[string]string{"common.md": "", "only-a.md": ""})
	b := newFakeStore(map[string]string{"common.md": "", "only-b1.md": "", "only-b2.md": ""})

	cfg := fastPoll
	cfg.Timeout = 100 * time.Millisecond

	err := FileSets(ctx, cfg, a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only-a.md")
	assert.Contains(t, err.Error(), "only-b1.md")
	assert.Contains(t, err.Error(), "only-b2.md")
	assert.NotContains(t, err.Error(), "common.md")
}

func TestFileSetsConverged(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	files := map[string]string{"a.md": "", "b/c.md": ""}
	require.NoError(t, FileSets(ctx, fastPoll, newFakeStore(files), newFakeStore(files)))
}

func TestSetDifference(t *testing.T) {
	t.Parallel()

	onlyA, onlyB := setDifference([]string{"x", "y", "z"}, []string{"y", "w"})
	assert.Equal(t, []string{"x", "z"}, onlyA)
	assert.Equal(t, []string{"w"}, onlyB)

	onlyA, onlyB = setDifference(nil, nil)
	assert.Empty(t, onlyA)
	assert.Empty(t, onlyB)
}
