package fixtures

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotePathsAreUniqueAndRooted(t *testing.T) {
	t.Parallel()

	g := New("e2e", 1)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p := g.NotePath("hint")
		assert.True(t, strings.HasPrefix(p, g.Root()+"/"), "path %q outside root", p)
		assert.True(t, strings.HasSuffix(p, ".md"))
		assert.False(t, seen[p], "duplicate path %q", p)
		seen[p] = true
	}
}

func TestDistinctRunsUseDistinctRoots(t *testing.T) {
	t.Parallel()

	a := New("e2e", 1)
	b := New("e2e", 1)
	assert.NotEqual(t, a.Root(), b.Root())
}

func TestBodyIsDeterministicPerSeed(t *testing.T) {
	t.Parallel()

	a := New("e2e", 7)
	b := New("e2e", 7)

	bodyA := a.Body("title", 60)
	bodyB := b.Body("title", 60)
	assert.Equal(t, bodyA, bodyB)

	require.True(t, strings.HasPrefix(bodyA, "# title\n\n"))
	words := strings.Fields(strings.TrimPrefix(bodyA, "# title\n\n"))
	assert.Len(t, words, 60)
}
