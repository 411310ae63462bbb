// Package peersync controls the PeerVault sync plugin of one application
// instance: its Iroh endpoint identity, peer list, and version vector. The
// harness only observes sync state; it never implements sync semantics.
package peersync

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/robcohen/peervault-sub002/pkg/devtool"
)

// pluginID is the application-side identifier of the sync plugin.
const pluginID = "peervault-sync"

// handle is the ambient JS path to the loaded plugin instance.
const handle = `app.plugins.plugins["` + pluginID + `"]`

// Peer is one configured remote peer as reported by the plugin.
type Peer struct {
	NodeID    string `json:"nodeId"`
	Connected bool   `json:"connected"`
	Transport string `json:"transport"` // "relay" or "direct"
}

// Status is the plugin's view of its own sync progress.
type Status struct {
	Enabled    bool   `json:"enabled"`
	Connected  bool   `json:"connected"`
	PendingOps int    `json:"pendingOps"`
	LastError  string `json:"lastError,omitempty"`
}

// Controller drives the sync plugin of one application instance.
type Controller struct {
	client *devtool.Client
	log    logr.Logger
}

func New(client *devtool.Client, log logr.Logger) *Controller {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Controller{client: client, log: log}
}

// NodeID returns the Iroh endpoint identity of this instance.
func (c *Controller) NodeID(ctx context.Context) (string, error) {
	var id string
	if err := c.client.EvaluateInto(ctx, handle+`.endpoint.nodeId()`, &id); err != nil {
		return "", fmt.Errorf("failed to query node id: %w", err)
	}
	return id, nil
}

// RelayURL returns the relay server the endpoint is currently homed on, or
// an empty string when no relay is in use.
func (c *Controller) RelayURL(ctx context.Context) (string, error) {
	var url string
	if err := c.client.EvaluateInto(ctx, handle+`.endpoint.relayUrl() ?? ""`, &url); err != nil {
		return "", fmt.Errorf("failed to query relay url: %w", err)
	}
	return url, nil
}

// Peers lists the configured peers and their connection state.
func (c *Controller) Peers(ctx context.Context) ([]Peer, error) {
	var peers []Peer
	if err := c.client.EvaluateInto(ctx, handle+`.sync.listPeers()`, &peers); err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}
	return peers, nil
}

// AddPeer registers a peer by its endpoint address (node id plus optional
// relay hint) and starts syncing with it.
func (c *Controller) AddPeer(ctx context.Context, addr string) error {
	c.log.V(1).Info("Adding peer", "addr", addr)
	expr := fmt.Sprintf(handle+`.sync.addPeer(%s).then(() => true)`, strconv.Quote(addr))
	if _, err := c.client.Evaluate(ctx, expr); err != nil {
		return fmt.Errorf("failed to add peer %q: %w", addr, err)
	}
	return nil
}

// RemovePeer forgets a peer by node id.
func (c *Controller) RemovePeer(ctx context.Context, nodeID string) error {
	c.log.V(1).Info("Removing peer", "nodeId", nodeID)
	expr := fmt.Sprintf(handle+`.sync.removePeer(%s).then(() => true)`, strconv.Quote(nodeID))
	if _, err := c.client.Evaluate(ctx, expr); err != nil {
		return fmt.Errorf("failed to remove peer %q: %w", nodeID, err)
	}
	return nil
}

// SetSyncEnabled pauses or resumes syncing without dropping peers.
func (c *Controller) SetSyncEnabled(ctx context.Context, enabled bool) error {
	expr := fmt.Sprintf(handle+`.sync.setEnabled(%t).then(() => true)`, enabled)
	if _, err := c.client.Evaluate(ctx, expr); err != nil {
		return fmt.Errorf("failed to set sync enabled=%t: %w", enabled, err)
	}
	return nil
}

// Status returns the plugin's sync status.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := c.client.EvaluateInto(ctx, handle+`.sync.status()`, &st); err != nil {
		return Status{}, fmt.Errorf("failed to query sync status: %w", err)
	}
	return st, nil
}

// VersionVector returns the canonical string form of this instance's version
// vector. Two instances report equal strings exactly when their replicated
// state has converged.
func (c *Controller) VersionVector(ctx context.Context) (string, error) {
	var vv string
	if err := c.client.EvaluateInto(ctx, handle+`.sync.versionVector().toString()`, &vv); err != nil {
		return "", fmt.Errorf("failed to query version vector: %w", err)
	}
	return vv, nil
}

// EnablePlugin loads and enables the sync plugin.
func (c *Controller) EnablePlugin(ctx context.Context) error {
	expr := fmt.Sprintf(`app.plugins.enablePlugin(%q).then(() => true)`, pluginID)
	if _, err := c.client.Evaluate(ctx, expr); err != nil {
		return fmt.Errorf("failed to enable plugin: %w", err)
	}
	return nil
}

// DisablePlugin disables the sync plugin.
func (c *Controller) DisablePlugin(ctx context.Context) error {
	expr := fmt.Sprintf(`app.plugins.disablePlugin(%q).then(() => true)`, pluginID)
	if _, err := c.client.Evaluate(ctx, expr); err != nil {
		return fmt.Errorf("failed to disable plugin: %w", err)
	}
	return nil
}

// ReloadPlugin disables and re-enables the sync plugin, forcing it to rebuild
// its endpoint and reload persisted state.
func (c *Controller) ReloadPlugin(ctx context.Context) error {
	if err := c.DisablePlugin(ctx); err != nil {
		return err
	}
	return c.EnablePlugin(ctx)
}

// RestartApp asks the application to reload itself. The debugging connection
// drops and the client's reconnection supervisor recovers it.
func (c *Controller) RestartApp(ctx context.Context) error {
	c.log.Info("Requesting app restart")
	// The reply may never arrive; the window goes away mid-call.
	_, err := c.client.Evaluate(ctx, `app.commands.executeCommandById("app:reload")`)
	if err != nil && !devtool.IsConnectionError(err) && !errors.Is(err, devtool.ErrCallTimeout) {
		return fmt.Errorf("failed to restart app: %w", err)
	}
	return nil
}
