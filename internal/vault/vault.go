// Package vault wraps the remote application's file-vault API. Every
// operation is a remote evaluation against the running app; the harness never
// touches vault files on disk directly.
package vault

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/robcohen/peervault-sub002/pkg/devtool"
)

// Vault drives the file vault of one application instance.
type Vault struct {
	client *devtool.Client
	log    logr.Logger
}

func New(client *devtool.Client, log logr.Logger) *Vault {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Vault{client: client, log: log}
}

// Client returns the underlying protocol client.
func (v *Vault) Client() *devtool.Client {
	return v.client
}

// quote renders a vault path or content chunk as a JS string literal.
func quote(s string) string {
	return strconv.Quote(s)
}

// Create creates a new vault file with the given content. Fails if the file
// already exists.
func (v *Vault) Create(ctx context.Context, path, content string) error {
	v.log.V(1).Info("Creating vault file", "path", path)
	expr := fmt.Sprintf(`app.vault.create(%s, %s).then(() => true)`, quote(path), quote(content))
	_, err := v.client.Evaluate(ctx, expr)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	return nil
}

// Read returns the content of a vault file.
func (v *Vault) Read(ctx context.Context, path string) (string, error) {
	var content string
	expr := fmt.Sprintf(`app.vault.adapter.read(%s)`, quote(path))
	if err := v.client.EvaluateInto(ctx, expr, &content); err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}
	return content, nil
}

// Modify replaces the content of an existing vault file.
func (v *Vault) Modify(ctx context.Context, path, content string) error {
	v.log.V(1).Info("Modifying vault file", "path", path)
	expr := fmt.Sprintf(`app.vault.adapter.write(%s, %s).then(() => true)`, quote(path), quote(content))
	_, err := v.client.Evaluate(ctx, expr)
	if err != nil {
		return fmt.Errorf("failed to modify %q: %w", path, err)
	}
	return nil
}

// Delete removes a vault file.
func (v *Vault) Delete(ctx context.Context, path string) error {
	v.log.V(1).Info("Deleting vault file", "path", path)
	expr := fmt.Sprintf(`app.vault.adapter.remove(%s).then(() => true)`, quote(path))
	_, err := v.client.Evaluate(ctx, expr)
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", path, err)
	}
	return nil
}

// Rename moves a vault file to a new path.
func (v *Vault) Rename(ctx context.Context, oldPath, newPath string) error {
	v.log.V(1).Info("Renaming vault file", "from", oldPath, "to", newPath)
	expr := fmt.Sprintf(`app.vault.adapter.rename(%s, %s).then(() => true)`, quote(oldPath), quote(newPath))
	_, err := v.client.Evaluate(ctx, expr)
	if err != nil {
		return fmt.Errorf("failed to rename %q to %q: %w", oldPath, newPath, err)
	}
	return nil
}

// Exists reports whether a vault file is present.
func (v *Vault) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	expr := fmt.Sprintf(`app.vault.adapter.exists(%s)`, quote(path))
	if err := v.client.EvaluateInto(ctx, expr, &exists); err != nil {
		return false, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	return exists, nil
}

// Mkdir creates a vault folder, including missing parents.
func (v *Vault) Mkdir(ctx context.Context, path string) error {
	expr := fmt.Sprintf(`app.vault.adapter.mkdir(%s).then(() => true)`, quote(path))
	_, err := v.client.Evaluate(ctx, expr)
	if err != nil {
		return fmt.Errorf("failed to mkdir %q: %w", path, err)
	}
	return nil
}

// List returns the paths of all files in the vault, in no particular order.
func (v *Vault) List(ctx context.Context) ([]string, error) {
	var paths []string
	expr := `app.vault.getFiles().map(f => f.path)`
	if err := v.client.EvaluateInto(ctx, expr, &paths); err != nil {
		return nil, fmt.Errorf("failed to list vault files: %w", err)
	}
	return paths, nil
}
