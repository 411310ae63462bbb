package harness

import (
	"context"
	"fmt"

	"github.com/robcohen/peervault-sub002/internal/converge"
)

// convergenceSuite exercises replication between the two peers: every test
// mutates one side and waits for the other side to settle.
func convergenceSuite() Suite {
	return Suite{
		Name: "convergence",
		Tests: []Test{
			{Name: "create-propagates", Run: testCreatePropagates},
			{Name: "edit-propagates", Run: testEditPropagates},
			{Name: "delete-propagates", Run: testDeletePropagates},
			{Name: "tree-file-sets-converge", Run: testTreeFileSetsConverge},
			{Name: "version-vectors-converge", Run: testVersionVectorsConverge},
			{Name: "concurrent-writers-converge", Run: testConcurrentWritersConverge},
		},
	}
}

func testCreatePropagates(ctx context.Context, env *Env) error {
	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "propagate", 40)
	if createErr != nil {
		return createErr
	}

	if err := converge.FileExists(ctx, env.Poll, env.VaultB, path); err != nil {
		return err
	}
	return converge.FileContent(ctx, env.Poll, env.VaultA, env.VaultB, path)
}

func testEditPropagates(ctx context.Context, env *Env) error {
	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "edit", 20)
	if createErr != nil {
		return createErr
	}
	if err := converge.FileExists(ctx, env.Poll, env.VaultB, path); err != nil {
		return err
	}

	// Edit on B, the side that received the file.
	updated := env.Fixtures.Body("edited elsewhere", 30)
	if err := env.VaultB.Modify(ctx, path, updated); err != nil {
		return err
	}

	if err := converge.FileContent(ctx, env.Poll, env.VaultA, env.VaultB, path); err != nil {
		return err
	}

	got, readErr := env.VaultA.Read(ctx, path)
	if readErr != nil {
		return readErr
	}
	if got != updated {
		return fmt.Errorf("peer A converged to stale content of %q", path)
	}
	return nil
}

func testDeletePropagates(ctx context.Context, env *Env) error {
	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "doomed", 10)
	if createErr != nil {
		return createErr
	}
	if err := converge.FileExists(ctx, env.Poll, env.VaultB, path); err != nil {
		return err
	}

	if err := env.VaultA.Delete(ctx, path); err != nil {
		return err
	}
	return converge.FileAbsent(ctx, env.Poll, env.VaultB, path)
}

func testTreeFileSetsConverge(ctx context.Context, env *Env) error {
	if _, err := env.Fixtures.Tree(ctx, env.VaultA, 9, 3); err != nil {
		return err
	}
	return converge.FileSets(ctx, env.Poll, env.VaultA, env.VaultB)
}

func testVersionVectorsConverge(ctx context.Context, env *Env) error {
	if _, err := env.Fixtures.Note(ctx, env.VaultA, "vv", 15); err != nil {
		return err
	}

	vv, err := converge.VersionVector(ctx, env.Poll, env.SyncA, env.SyncB)
	if err != nil {
		return err
	}
	env.Log.V(1).Info("Version vectors converged", "versionVector", vv)
	return nil
}

// testConcurrentWritersConverge creates distinct files on both peers at the
// same time and requires both sides to end up with both files.
func testConcurrentWritersConverge(ctx context.Context, env *Env) error {
	pathA, errA := env.Fixtures.Note(ctx, env.VaultA, "from-a", 15)
	if errA != nil {
		return errA
	}
	pathB, errB := env.Fixtures.Note(ctx, env.VaultB, "from-b", 15)
	if errB != nil {
		return errB
	}

	if err := converge.FileExists(ctx, env.Poll, env.VaultB, pathA); err != nil {
		return err
	}
	if err := converge.FileExists(ctx, env.Poll, env.VaultA, pathB); err != nil {
		return err
	}
	if _, err := converge.VersionVector(ctx, env.Poll, env.SyncA, env.SyncB); err != nil {
		return err
	}
	return nil
}
