package vault

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault-sub002/pkg/devtool"
	"github.com/robcohen/peervault-sub002/pkg/testutil"
)

// fakeVaultApp emulates the app side of the debugging protocol: it accepts
// Runtime.evaluate frames against the vault API and keeps files in a map.
type fakeVaultApp struct {
	mu    sync.Mutex
	files map[string]string
}

func newFakeVaultApp() *fakeVaultApp {
	return &fakeVaultApp{files: map[string]string{}}
}

// stringArgs extracts the quoted string literals of an expression, in order.
func stringArgs(t *testing.T, expr string) []string {
	t.Helper()

	var args []string
	for i := 0; i < len(expr); i++ {
		if expr[i] != '"' {
			continue
		}
		j := i + 1
		for j < len(expr) {
			if expr[j] == '\\' {
				j += 2
				continue
			}
			if expr[j] == '"' {
				break
			}
			j++
		}
		require.Less(t, j, len(expr), "unterminated string literal in %q", expr)
		arg, unquoteErr := strconv.Unquote(expr[i : j+1])
		require.NoError(t, unquoteErr)
		args = append(args, arg)
		i = j
	}
	return args
}

type evalEnvelope struct {
	Result           map[string]any `json:"result"`
	ExceptionDetails map[string]any `json:"exceptionDetails,omitempty"`
}

func remoteException(text string) evalEnvelope {
	return evalEnvelope{
		Result:           map[string]any{"type": "object"},
		ExceptionDetails: map[string]any{"text": text, "exception": map[string]any{"description": text}},
	}
}

func valueResult(v any) evalEnvelope {
	return evalEnvelope{Result: map[string]any{"type": "object", "value": v}}
}

func (a *fakeVaultApp) evaluate(t *testing.T, expr string) evalEnvelope {
	a.mu.Lock()
	defer a.mu.Unlock()

	args := stringArgs(t, expr)
	switch {
	case strings.HasPrefix(expr, "app.vault.create("):
		if _, exists := a.files[args[0]]; exists {
			return remoteException("Error: File already exists.")
		}
		a.files[args[0]] = args[1]
		return valueResult(true)

	case strings.HasPrefix(expr, "app.vault.adapter.read("):
		content, exists := a.files[args[0]]
		if !exists {
			return remoteException("Error: ENOENT: no such file")
		}
		return valueResult(content)

	case strings.HasPrefix(expr, "app.vault.adapter.write("):
		a.files[args[0]] = args[1]
		return valueResult(true)

	case strings.HasPrefix(expr, "app.vault.adapter.remove("):
		delete(a.files, args[0])
		return valueResult(true)

	case strings.HasPrefix(expr, "app.vault.adapter.rename("):
		content, exists := a.files[args[0]]
		if !exists {
			return remoteException("Error: ENOENT: no such file")
		}
		delete(a.files, args[0])
		a.files[args[1]] = content
		return valueResult(true)

	case strings.HasPrefix(expr, "app.vault.adapter.exists("):
		_, exists := a.files[args[0]]
		return valueResult(exists)

	case strings.HasPrefix(expr, "app.vault.adapter.mkdir("):
		return valueResult(true)

	case strings.HasPrefix(expr, "app.vault.getFiles()"):
		paths := make([]string, 0, len(a.files))
		for p := range a.files {
			paths = append(paths, p)
		}
		return valueResult(paths)

	default:
		return remoteException("Error: unsupported expression: " + expr)
	}
}

func (a *fakeVaultApp) serve(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, upgradeErr := upgrader.Upgrade(w, r, nil)
		if upgradeErr != nil {
			return
		}
		defer conn.Close()

		for {
			var req struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
				Params struct {
					Expression string `json:"expression"`
				} `json:"params"`
			}
			if readErr := conn.ReadJSON(&req); readErr != nil {
				return
			}
			resp := map[string]any{
				"id":     req.ID,
				"result": a.evaluate(t, req.Params.Expression),
			}
			if writeErr := conn.WriteJSON(resp); writeErr != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestVault(t *testing.T) (*Vault, *fakeVaultApp) {
	t.Helper()

	app := newFakeVaultApp()
	c := devtool.NewClient(devtool.Options{
		URL:    app.serve(t),
		Logger: testutil.NewLogForTesting("vault-test"),
	})
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	t.Cleanup(cancel)
	require.NoError(t, c.Connect(ctx))

	return New(c, testutil.NewLogForTesting("vault-test")), app
}

func TestCreateReadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	v, _ := newTestVault(t)

	content := "# note\n\nsome \"quoted\" text\nwith lines\n"
	require.NoError(t, v.Create(ctx, "e2e/note.md", content))

	got, readErr := v.Read(ctx, "e2e/note.md")
	require.NoError(t, readErr)
	assert.Equal(t, content, got)
}

func TestCreateExistingFileFails(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	v, _ := newTestVault(t)

	require.NoError(t, v.Create(ctx, "e2e/dup.md", "a"))
	err := v.Create(ctx, "e2e/dup.md", "b")
	require.Error(t, err)

	var remoteErr *devtool.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, "already exists")
}

func TestReadMissingFileFails(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	v, _ := newTestVault(t)

	_, err := v.Read(ctx, "e2e/missing.md")
	require.Error(t, err)

	var remoteErr *devtool.RemoteError
	assert.ErrorAs(t, err, &remoteErr)
}

func TestModifyDeleteExists(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	v, _ := newTestVault(t)

	require.NoError(t, v.Create(ctx, "e2e/life.md", "v1"))
	require.NoError(t, v.Modify(ctx, "e2e/life.md", "v2"))

	got, readErr := v.Read(ctx, "e2e/life.md")
	require.NoError(t, readErr)
	assert.Equal(t, "v2", got)

	exists, statErr := v.Exists(ctx, "e2e/life.md")
	require.NoError(t, statErr)
	assert.True(t, exists)

	require.NoError(t, v.Delete(ctx, "e2e/life.md"))

	exists, statErr = v.Exists(ctx, "e2e/life.md")
	require.NoError(t, statErr)
	assert.False(t, exists)
}

func TestRenameMovesContent(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	v, _ := newTestVault(t)

	require.NoError(t, v.Create(ctx, "e2e/old.md", "payload"))
	require.NoError(t, v.Rename(ctx, "e2e/old.md", "e2e/new.md"))

	got, readErr := v.Read(ctx, "e2e/new.md")
	require.NoError(t, readErr)
	assert.Equal(t, "payload", got)

	exists, statErr := v.Exists(ctx, "e2e/old.md")
	require.NoError(t, statErr)
	assert.False(t, exists)
}

func TestListReturnsAllFiles(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	v, _ := newTestVault(t)

	require.NoError(t, v.Create(ctx, "e2e/a.md", "a"))
	require.NoError(t, v.Create(ctx, "e2e/b.md", "b"))
	require.NoError(t, v.Mkdir(ctx, "e2e/sub"))
	require.NoError(t, v.Create(ctx, "e2e/sub/c.md", "c"))

	paths, listErr := v.List(ctx)
	require.NoError(t, listErr)
	assert.ElementsMatch(t, []string{"e2e/a.md", "e2e/b.md", "e2e/sub/c.md"}, paths)
}
