// Package harness defines the e2e test suites and the runner that executes
// them against a pair of live application instances.
package harness

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/robcohen/peervault-sub002/internal/config"
	"github.com/robcohen/peervault-sub002/internal/fixtures"
	"github.com/robcohen/peervault-sub002/internal/peersync"
	"github.com/robcohen/peervault-sub002/internal/vault"
	"github.com/robcohen/peervault-sub002/pkg/devtool"
	"github.com/robcohen/peervault-sub002/pkg/poll"
)

// Env is everything a test needs to drive the two instances under test.
// Peer A and peer B are fully independent clients; convergence helpers only
// ever read from both, they never wire one to the other.
type Env struct {
	Config config.Config
	Log    logr.Logger

	ClientA *devtool.Client
	ClientB *devtool.Client

	VaultA *vault.Vault
	VaultB *vault.Vault

	SyncA *peersync.Controller
	SyncB *peersync.Controller

	Fixtures *fixtures.Generator

	// Poll bounds every convergence wait in this run.
	Poll poll.Config
}

// Close releases both clients.
func (e *Env) Close() {
	if e.ClientA != nil {
		_ = e.ClientA.Close()
	}
	if e.ClientB != nil {
		_ = e.ClientB.Close()
	}
}

// Test is one named e2e test.
type Test struct {
	Name string
	Run  func(ctx context.Context, env *Env) error
}

// Suite is a named group of tests sharing a topic.
type Suite struct {
	Name  string
	Tests []Test
}

// AllSuites returns the built-in suites in execution order.
func AllSuites() []Suite {
	return []Suite{
		vaultSuite(),
		convergenceSuite(),
		reconnectSuite(),
		consoleSuite(),
	}
}
