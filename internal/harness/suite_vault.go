package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/robcohen/peervault-sub002/pkg/devtool"
)

// vaultSuite exercises the single-peer vault operations on peer A.
func vaultSuite() Suite {
	return Suite{
		Name: "vault",
		Tests: []Test{
			{Name: "create-and-read", Run: testCreateAndRead},
			{Name: "modify", Run: testModify},
			{Name: "rename", Run: testRename},
			{Name: "delete", Run: testDelete},
			{Name: "read-missing-fails", Run: testReadMissingFails},
			{Name: "list-contains-created", Run: testListContainsCreated},
		},
	}
}

func testCreateAndRead(ctx context.Context, env *Env) error {
	body := env.Fixtures.Body("create and read", 30)
	path := env.Fixtures.NotePath("create")

	if err := env.VaultA.Create(ctx, path, body); err != nil {
		return err
	}

	got, readErr := env.VaultA.Read(ctx, path)
	if readErr != nil {
		return readErr
	}
	if got != body {
		return fmt.Errorf("read back %d bytes, wrote %d bytes", len(got), len(body))
	}
	return nil
}

func testModify(ctx context.Context, env *Env) error {
	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "modify", 20)
	if createErr != nil {
		return createErr
	}

	updated := env.Fixtures.Body("modified", 25)
	if err := env.VaultA.Modify(ctx, path, updated); err != nil {
		return err
	}

	got, readErr := env.VaultA.Read(ctx, path)
	if readErr != nil {
		return readErr
	}
	if got != updated {
		return errors.New("modified content did not stick")
	}
	return nil
}

func testRename(ctx context.Context, env *Env) error {
	oldPath, createErr := env.Fixtures.Note(ctx, env.VaultA, "rename", 10)
	if createErr != nil {
		return createErr
	}
	newPath := env.Fixtures.NotePath("renamed")

	if err := env.VaultA.Rename(ctx, oldPath, newPath); err != nil {
		return err
	}

	exists, statErr := env.VaultA.Exists(ctx, newPath)
	if statErr != nil {
		return statErr
	}
	if !exists {
		return fmt.Errorf("renamed file %q missing", newPath)
	}

	oldExists, oldStatErr := env.VaultA.Exists(ctx, oldPath)
	if oldStatErr != nil {
		return oldStatErr
	}
	if oldExists {
		return fmt.Errorf("old path %q still present after rename", oldPath)
	}
	return nil
}

func testDelete(ctx context.Context, env *Env) error {
	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "delete", 10)
	if createErr != nil {
		return createErr
	}

	if err := env.VaultA.Delete(ctx, path); err != nil {
		return err
	}

	exists, statErr := env.VaultA.Exists(ctx, path)
	if statErr != nil {
		return statErr
	}
	if exists {
		return fmt.Errorf("file %q still present after delete", path)
	}
	return nil
}

func testReadMissingFails(ctx context.Context, env *Env) error {
	_, err := env.VaultA.Read(ctx, env.Fixtures.NotePath("never-created"))
	if err == nil {
		return errors.New("reading a missing file must fail")
	}

	var remoteErr *devtool.RemoteError
	if !errors.As(err, &remoteErr) {
		return fmt.Errorf("expected a remote error, got: %w", err)
	}
	return nil
}

func testListContainsCreated(ctx context.Context, env *Env) error {
	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "listed", 10)
	if createErr != nil {
		return createErr
	}

	paths, listErr := env.VaultA.List(ctx)
	if listErr != nil {
		return listErr
	}
	for _, p := range paths {
		if p == path {
			return nil
		}
	}
	return fmt.Errorf("created file %q not in listing of %d files", path, len(paths))
}
