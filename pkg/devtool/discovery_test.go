package devtool

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault-sub002/pkg/poll"
	"github.com/robcohen/peervault-sub002/pkg/testutil"
)

const targetListing = `[
	{
		"id": "bg-1",
		"title": "Service Worker",
		"type": "service_worker",
		"url": "app://peervault/background.js",
		"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/worker/bg-1"
	},
	{
		"id": "page-1",
		"title": "Welcome.md - alpha - PeerVault v1.4.2",
		"type": "page",
		"url": "app://peervault/index.html",
		"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/page/page-1"
	},
	{
		"id": "page-2",
		"title": "Settings",
		"type": "page",
		"url": "chrome://settings",
		"webSocketDebuggerUrl": "ws://127.0.0.1:9222/devtools/page/page-2"
	}
]`

func newDiscoveryServer(t *testing.T, listing string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listing))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverFiltersToMatchingPageTargets(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	srv := newDiscoveryServer(t, targetListing)

	endpoints, err := Discover(ctx, srv.URL, DiscoveryOptions{})
	require.NoError(t, err)

	// Three targets listed; only one is a page belonging to the app.
	require.Len(t, endpoints, 1)
	assert.Equal(t, "alpha", endpoints[0].Name)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/page/page-1", endpoints[0].WebSocketURL)
	assert.Equal(t, "Welcome.md - alpha - PeerVault v1.4.2", endpoints[0].Title)
}

func TestDiscoverOneByName(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	srv := newDiscoveryServer(t, targetListing)

	ep, err := DiscoverOne(ctx, srv.URL, "alpha", DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "alpha", ep.Name)

	_, err = DiscoverOne(ctx, srv.URL, "beta", DiscoveryOptions{})
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestDiscoverOneWaitTimesOutWhenTargetNeverAppears(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	srv := newDiscoveryServer(t, `[]`)

	_, err := DiscoverOneWait(ctx, srv.URL, "alpha", DiscoveryOptions{}, poll.Config{
		Timeout:     200 * time.Millisecond,
		MinInterval: 20 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestLogicalNameFromTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title string
		want  string
	}{
		{"Welcome.md - alpha - PeerVault v1.4.2", "alpha"},
		{"beta - PeerVault v1.0.0", "beta"},
		{"Some Doc - With - Dashes - gamma - PeerVault v2.0.0", "gamma"},
		{"Untitled", "Untitled"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, logicalNameFromTitle(tc.title), "title %q", tc.title)
	}
}
