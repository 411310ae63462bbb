package devtool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robcohen/peervault-sub002/pkg/poll"
)

// Endpoint describes one discovered debugging target. It is immutable once
// resolved; discovery re-resolves from scratch on every run.
type Endpoint struct {
	// Name is the logical instance name extracted from the window title.
	Name string

	// WebSocketURL is the debugger channel address.
	WebSocketURL string

	// Title is the full window title the name was extracted from.
	Title string
}

// DiscoveryOptions configures target discovery.
type DiscoveryOptions struct {
	// URLContains filters targets to those whose page URL contains this
	// marker. Defaults to "peervault".
	URLContains string

	// HTTPClient is used for the listing request. Defaults to a client with
	// a 5 second timeout.
	HTTPClient *http.Client
}

func (o DiscoveryOptions) withDefaults() DiscoveryOptions {
	if o.URLContains == "" {
		o.URLContains = "peervault"
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	return o
}

// targetInfo is one entry of the /json listing.
type targetInfo struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Discover queries the debugging host's target listing and returns the
// endpoints of all page targets belonging to the application.
func Discover(ctx context.Context, baseURL string, opts DiscoveryOptions) ([]Endpoint, error) {
	opts = opts.withDefaults()

	listURL := strings.TrimSuffix(baseURL, "/") + "/json"
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", reqErr)
	}

	resp, httpErr := opts.HTTPClient.Do(req)
	if httpErr != nil {
		return nil, fmt.Errorf("discovery request failed: %w", httpErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery request returned %s", resp.Status)
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read discovery response: %w", readErr)
	}

	var targets []targetInfo
	if unmarshalErr := json.Unmarshal(body, &targets); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to decode discovery response: %w", unmarshalErr)
	}

	var endpoints []Endpoint
	for _, t := range targets {
		if t.Type != "page" || !strings.Contains(t.URL, opts.URLContains) {
			continue
		}
		endpoints = append(endpoints, Endpoint{
			Name:         logicalNameFromTitle(t.Title),
			WebSocketURL: t.WebSocketDebuggerURL,
			Title:        t.Title,
		})
	}

	return endpoints, nil
}

// DiscoverOne resolves a single named endpoint, failing with
// ErrTargetNotFound when no matching target is listed.
func DiscoverOne(ctx context.Context, baseURL, name string, opts DiscoveryOptions) (Endpoint, error) {
	endpoints, discoverErr := Discover(ctx, baseURL, opts)
	if discoverErr != nil {
		return Endpoint{}, discoverErr
	}

	for _, ep := range endpoints {
		if ep.Name == name {
			return ep, nil
		}
	}

	return Endpoint{}, fmt.Errorf("%w: no page target named %q at %s", ErrTargetNotFound, name, baseURL)
}

// DiscoverOneWait polls discovery until the named endpoint appears or the
// discovery timeout elapses. Applications that are still starting up list no
// targets for a while.
func DiscoverOneWait(ctx context.Context, baseURL, name string, opts DiscoveryOptions, pollCfg poll.Config) (Endpoint, error) {
	type lookup struct {
		ep    Endpoint
		found bool
	}

	res, pollErr := poll.Until(ctx, pollCfg,
		func(ctx context.Context) (lookup, error) {
			ep, err := DiscoverOne(ctx, baseURL, name, opts)
			if err != nil {
				return lookup{}, err
			}
			return lookup{ep: ep, found: true}, nil
		},
		func(l lookup) bool { return l.found },
	)
	if pollErr != nil {
		return Endpoint{}, fmt.Errorf("%w: target %q never appeared: %v", ErrTargetNotFound, name, pollErr)
	}
	return res.ep, nil
}

// logicalNameFromTitle extracts the instance name from a window title of the
// form "<document> - <name> - <product> vX". The document part is optional.
func logicalNameFromTitle(title string) string {
	parts := strings.Split(title, " - ")
	if len(parts) < 2 {
		return strings.TrimSpace(title)
	}
	return strings.TrimSpace(parts[len(parts)-2])
}
