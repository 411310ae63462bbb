package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/robcohen/peervault-sub002/internal/config"
	"github.com/robcohen/peervault-sub002/internal/fixtures"
	"github.com/robcohen/peervault-sub002/internal/peersync"
	"github.com/robcohen/peervault-sub002/internal/vault"
	"github.com/robcohen/peervault-sub002/pkg/devtool"
	"github.com/robcohen/peervault-sub002/pkg/poll"
)

// BuildEnvOptions tweaks environment preparation.
type BuildEnvOptions struct {
	// Restart reloads both application instances before the run.
	Restart bool

	// Fresh removes leftover fixture files from previous runs on both peers
	// and waits for the deletions to sync.
	Fresh bool
}

// NewEnvFactory returns an EnvFactory resolving and connecting both peers
// according to cfg.
func NewEnvFactory(cfg config.Config, log logr.Logger, opts BuildEnvOptions) EnvFactory {
	return func(ctx context.Context) (*Env, func(), error) {
		env, buildErr := BuildEnv(ctx, cfg, log, opts)
		if buildErr != nil {
			return nil, func() {}, buildErr
		}
		return env, env.Close, nil
	}
}

// BuildEnv discovers (or takes from overrides) both peer endpoints, connects
// a client to each, and prepares the wrappers the suites work with.
func BuildEnv(ctx context.Context, cfg config.Config, log logr.Logger, opts BuildEnvOptions) (*Env, error) {
	pollCfg := poll.Config{Timeout: cfg.ConvergeTimeout}

	clientA, errA := connectPeer(ctx, cfg, log, cfg.PeerAName, cfg.EndpointA, pollCfg)
	if errA != nil {
		return nil, fmt.Errorf("peer %s: %w", cfg.PeerAName, errA)
	}
	clientB, errB := connectPeer(ctx, cfg, log, cfg.PeerBName, cfg.EndpointB, pollCfg)
	if errB != nil {
		clientA.Close()
		return nil, fmt.Errorf("peer %s: %w", cfg.PeerBName, errB)
	}

	env := &Env{
		Config:   cfg,
		Log:      log,
		ClientA:  clientA,
		ClientB:  clientB,
		VaultA:   vault.New(clientA, log.WithValues("peer", cfg.PeerAName)),
		VaultB:   vault.New(clientB, log.WithValues("peer", cfg.PeerBName)),
		SyncA:    peersync.New(clientA, log.WithValues("peer", cfg.PeerAName)),
		SyncB:    peersync.New(clientB, log.WithValues("peer", cfg.PeerBName)),
		Fixtures: fixtures.New(cfg.FixtureRoot, 0),
		Poll:     pollCfg,
	}

	if opts.Restart {
		if err := restartPeers(ctx, env); err != nil {
			env.Close()
			return nil, err
		}
	}
	if opts.Fresh {
		if err := removeStaleFixtures(ctx, env); err != nil {
			env.Close()
			return nil, err
		}
	}

	return env, nil
}

func connectPeer(ctx context.Context, cfg config.Config, log logr.Logger, name, override string, pollCfg poll.Config) (*devtool.Client, error) {
	url := override
	if url == "" {
		ep, discoverErr := devtool.DiscoverOneWait(ctx, cfg.DiscoveryBaseURL(), name, devtool.DiscoveryOptions{}, pollCfg)
		if discoverErr != nil {
			return nil, discoverErr
		}
		log.V(1).Info("Discovered peer", "name", name, "url", ep.WebSocketURL, "title", ep.Title)
		url = ep.WebSocketURL
	}

	client := devtool.NewClient(devtool.Options{
		URL:         url,
		CallTimeout: cfg.CallTimeout,
		Logger:      log.WithValues("peer", name),
	})
	if connectErr := client.Connect(ctx); connectErr != nil {
		return nil, connectErr
	}
	if captureErr := client.EnableConsoleCapture(ctx); captureErr != nil {
		client.Close()
		return nil, captureErr
	}
	return client, nil
}

func restartPeers(ctx context.Context, env *Env) error {
	for _, sync := range []*peersync.Controller{env.SyncA, env.SyncB} {
		if err := sync.RestartApp(ctx); err != nil {
			return fmt.Errorf("failed to restart peer: %w", err)
		}
	}

	// Both clients reconnect on their own; wait until calls flow again.
	for _, client := range []*devtool.Client{env.ClientA, env.ClientB} {
		client := client
		waitCfg := env.Poll
		waitCfg.MinInterval = 500 * time.Millisecond
		waitCfg.MaxInterval = 2 * time.Second
		err := poll.UntilTrue(ctx, waitCfg, func(ctx context.Context) (bool, error) {
			_, callErr := client.Call(ctx, "Runtime.evaluate", map[string]any{"expression": "1"})
			return callErr == nil, nil
		})
		if err != nil {
			return fmt.Errorf("peer did not come back after restart: %w", err)
		}
	}
	return nil
}

// removeStaleFixtures deletes fixture folders left behind by earlier runs.
func removeStaleFixtures(ctx context.Context, env *Env) error {
	root := strings.TrimSuffix(env.Config.FixtureRoot, "/") + "/"

	for _, v := range []*vault.Vault{env.VaultA, env.VaultB} {
		paths, listErr := v.List(ctx)
		if listErr != nil {
			return listErr
		}
		for _, p := range paths {
			if !strings.HasPrefix(p, root) {
				continue
			}
			if deleteErr := v.Delete(ctx, p); deleteErr != nil {
				return deleteErr
			}
		}
	}
	return nil
}
