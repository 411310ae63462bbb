// Package fixtures generates test vault content. Files are written through
// the vault wrapper of a running instance, never to the host filesystem.
package fixtures

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/robcohen/peervault-sub002/internal/vault"
)

// Generator produces uniquely named markdown fixtures under a common root
// folder so concurrent test runs cannot collide.
type Generator struct {
	root string
	rng  *rand.Rand
}

// New creates a Generator rooted at the given vault folder. A random seed of
// 0 picks a unique run id based seed.
func New(root string, seed int64) *Generator {
	runID := uuid.NewString()
	if root == "" {
		root = "e2e"
	}
	root = strings.TrimSuffix(root, "/") + "/" + runID[:8]

	if seed == 0 {
		seed = int64(uuid.New().ID())
	}

	return &Generator{
		root: root,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Root returns the vault folder all fixtures of this run live under.
func (g *Generator) Root() string {
	return g.root
}

// NotePath returns a fresh unique note path under the fixture root.
func (g *Generator) NotePath(hint string) string {
	if hint == "" {
		hint = "note"
	}
	return fmt.Sprintf("%s/%s-%s.md", g.root, hint, uuid.NewString()[:8])
}

const loremWords = "vault sync peer relay merge note tag link graph daily index archive draft"

// Body produces a markdown body of roughly n words.
func (g *Generator) Body(title string, n int) string {
	words := strings.Fields(loremWords)
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	for i := 0; i < n; i++ {
		if i > 0 {
			if i%12 == 0 {
				sb.WriteString("\n")
			} else {
				sb.WriteString(" ")
			}
		}
		sb.WriteString(words[g.rng.Intn(len(words))])
	}
	sb.WriteString("\n")
	return sb.String()
}

// Note creates one fixture note in the vault and returns its path.
func (g *Generator) Note(ctx context.Context, v *vault.Vault, hint string, words int) (string, error) {
	path := g.NotePath(hint)
	if err := v.Create(ctx, path, g.Body(hint, words)); err != nil {
		return "", err
	}
	return path, nil
}

// Tree creates count notes spread across folders fan wide and returns their
// paths.
func (g *Generator) Tree(ctx context.Context, v *vault.Vault, count, fan int) ([]string, error) {
	if fan <= 0 {
		fan = 1
	}

	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		folder := fmt.Sprintf("%s/folder-%d", g.root, i%fan)
		if i < fan {
			if err := v.Mkdir(ctx, folder); err != nil {
				return paths, err
			}
		}
		path := fmt.Sprintf("%s/note-%d-%s.md", folder, i, uuid.NewString()[:8])
		if err := v.Create(ctx, path, g.Body(fmt.Sprintf("note %d", i), 40)); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
