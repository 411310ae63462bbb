// Package converge provides the "wait until distributed state settles"
// helpers used by the test suites. Every helper is a check/predicate pair
// handed to the adaptive poller; none reimplements the polling loop.
// Cross-peer helpers only read from the two clients involved.
package converge

import (
	"context"
	"fmt"
	"sort"

	"github.com/robcohen/peervault-sub002/pkg/poll"
)

// FileStore is the read-only slice of the vault API the helpers observe.
// *vault.Vault satisfies it.
type FileStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) (string, error)
	List(ctx context.Context) ([]string, error)
}

// VersionReporter reports a peer's version vector in canonical string form.
// *peersync.Controller satisfies it.
type VersionReporter interface {
	VersionVector(ctx context.Context) (string, error)
}

// FileExists waits until the vault reports the file as present.
func FileExists(ctx context.Context, cfg poll.Config, v FileStore, path string) error {
	err := poll.UntilTrue(ctx, cfg, func(ctx context.Context) (bool, error) {
		return v.Exists(ctx, path)
	})
	if err != nil {
		return fmt.Errorf("file %q never appeared: %w", path, err)
	}
	return nil
}

// FileAbsent waits until the vault reports the file as gone.
func FileAbsent(ctx context.Context, cfg poll.Config, v FileStore, path string) error {
	err := poll.UntilTrue(ctx, cfg, func(ctx context.Context) (bool, error) {
		exists, checkErr := v.Exists(ctx, path)
		return !exists, checkErr
	})
	if err != nil {
		return fmt.Errorf("file %q never disappeared: %w", path, err)
	}
	return nil
}

type contentPair struct {
	a, b string
}

// FileContent waits until both vaults report identical content for the file.
func FileContent(ctx context.Context, cfg poll.Config, a, b FileStore, path string) error {
	last, err := poll.Until(ctx, cfg,
		func(ctx context.Context) (contentPair, error) {
			contentA, errA := a.Read(ctx, path)
			if errA != nil {
				return contentPair{}, errA
			}
			contentB, errB := b.Read(ctx, path)
			if errB != nil {
				return contentPair{}, errB
			}
			return contentPair{a: contentA, b: contentB}, nil
		},
		func(p contentPair) bool { return p.a == p.b },
	)
	if err != nil {
		return fmt.Errorf("content of %q diverged: peer A has %d bytes, peer B has %d bytes: %w",
			path, len(last.a), len(last.b), err)
	}
	return nil
}

type versionPair struct {
	a, b string
}

// VersionVector waits until both sync plugins report the same version vector.
// It succeeds on the first observation where both sides match, never on a
// half-updated pair.
func VersionVector(ctx context.Context, cfg poll.Config, a, b VersionReporter) (string, error) {
	last, err := poll.Until(ctx, cfg,
		func(ctx context.Context) (versionPair, error) {
			vvA, errA := a.VersionVector(ctx)
			if errA != nil {
				return versionPair{}, errA
			}
			vvB, errB := b.VersionVector(ctx)
			if errB != nil {
				return versionPair{}, errB
			}
			return versionPair{a: vvA, b: vvB}, nil
		},
		func(p versionPair) bool { return p.a == p.b },
	)
	if err != nil {
		return "", fmt.Errorf("version vectors diverged: peer A reports %q, peer B reports %q: %w",
			last.a, last.b, err)
	}
	return last.a, nil
}

type fileSetPair struct {
	a, b []string
}

// FileSets waits until both vaults report the same set of file paths. On
// timeout the error names the symmetric difference between the two sets.
func FileSets(ctx context.Context, cfg poll.Config, a, b FileStore) error {
	last, err := poll.Until(ctx, cfg,
		func(ctx context.Context) (fileSetPair, error) {
			filesA, errA := a.List(ctx)
			if errA != nil {
				return fileSetPair{}, errA
			}
			filesB, errB := b.List(ctx)
			if errB != nil {
				return fileSetPair{}, errB
			}
			return fileSetPair{a: filesA, b: filesB}, nil
		},
		func(p fileSetPair) bool { return sameSet(p.a, p.b) },
	)
	if err != nil {
		onlyA, onlyB := setDifference(last.a, last.b)
		return fmt.Errorf("file sets diverged: only on peer A %v, only on peer B %v: %w", onlyA, onlyB, err)
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	onlyA, onlyB := setDifference(a, b)
	return len(onlyA) == 0 && len(onlyB) == 0
}

// setDifference returns the elements only in a and the elements only in b,
// both sorted.
func setDifference(a, b []string) (onlyA, onlyB []string) {
	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[s] = true
	}
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}

	for s := range inA {
		if !inB[s] {
			onlyA = append(onlyA, s)
		}
	}
	for s := range inB {
		if !inA[s] {
			onlyB = append(onlyB, s)
		}
	}

	sort.Strings(onlyA)
	sort.Strings(onlyB)
	return onlyA, onlyB
}
