package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/robcohen/peervault-sub002/internal/converge"
	"github.com/robcohen/peervault-sub002/pkg/poll"
)

// reconnectSuite exercises recovery paths: app restarts and plugin reloads
// must leave the harness connection and the replicated state healthy.
func reconnectSuite() Suite {
	return Suite{
		Name: "reconnect",
		Tests: []Test{
			{Name: "survives-app-restart", Run: testSurvivesAppRestart},
			{Name: "sync-resumes-after-restart", Run: testSyncResumesAfterRestart},
			{Name: "plugin-reload-keeps-identity", Run: testPluginReloadKeepsIdentity},
			{Name: "sync-pause-and-resume", Run: testSyncPauseAndResume},
		},
	}
}

// waitCallable polls until plain calls against the peer flow again.
func waitCallable(ctx context.Context, env *Env, v interface {
	Exists(ctx context.Context, path string) (bool, error)
}) error {
	cfg := env.Poll
	// The app takes seconds to come back; no point in probing faster.
	cfg.MinInterval = 500 * time.Millisecond
	cfg.MaxInterval = 2 * time.Second
	return poll.UntilTrue(ctx, cfg, func(ctx context.Context) (bool, error) {
		_, err := v.Exists(ctx, "probe.md")
		return err == nil, nil
	})
}

func testSurvivesAppRestart(ctx context.Context, env *Env) error {
	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "pre-restart", 10)
	if createErr != nil {
		return createErr
	}

	if err := env.SyncA.RestartApp(ctx); err != nil {
		return err
	}
	if err := waitCallable(ctx, env, env.VaultA); err != nil {
		return fmt.Errorf("peer A never came back after restart: %w", err)
	}

	exists, statErr := env.VaultA.Exists(ctx, path)
	if statErr != nil {
		return statErr
	}
	if !exists {
		return fmt.Errorf("file %q lost across restart", path)
	}
	return nil
}

func testSyncResumesAfterRestart(ctx context.Context, env *Env) error {
	if err := env.SyncB.RestartApp(ctx); err != nil {
		return err
	}
	if err := waitCallable(ctx, env, env.VaultB); err != nil {
		return fmt.Errorf("peer B never came back after restart: %w", err)
	}

	// A change made while B was restarting must still arrive.
	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "post-restart", 15)
	if createErr != nil {
		return createErr
	}
	return converge.FileExists(ctx, env.Poll, env.VaultB, path)
}

func testPluginReloadKeepsIdentity(ctx context.Context, env *Env) error {
	before, idErr := env.SyncA.NodeID(ctx)
	if idErr != nil {
		return idErr
	}

	if err := env.SyncA.ReloadPlugin(ctx); err != nil {
		return err
	}

	after, idErr := env.SyncA.NodeID(ctx)
	if idErr != nil {
		return idErr
	}
	if after != before {
		return fmt.Errorf("node id changed across plugin reload: %s -> %s", before, after)
	}

	// The reloaded plugin must still replicate.
	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "post-reload", 10)
	if createErr != nil {
		return createErr
	}
	return converge.FileExists(ctx, env.Poll, env.VaultB, path)
}

func testSyncPauseAndResume(ctx context.Context, env *Env) error {
	if err := env.SyncB.SetSyncEnabled(ctx, false); err != nil {
		return err
	}
	// Always resume, even when the assertions below fail.
	defer func() { _ = env.SyncB.SetSyncEnabled(context.WithoutCancel(ctx), true) }()

	path, createErr := env.Fixtures.Note(ctx, env.VaultA, "while-paused", 10)
	if createErr != nil {
		return createErr
	}

	st, stErr := env.SyncB.Status(ctx)
	if stErr != nil {
		return stErr
	}
	if st.Enabled {
		return fmt.Errorf("peer B still reports sync enabled after pause")
	}

	if err := env.SyncB.SetSyncEnabled(ctx, true); err != nil {
		return err
	}
	return converge.FileExists(ctx, env.Poll, env.VaultB, path)
}
