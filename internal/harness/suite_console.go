package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/robcohen/peervault-sub002/pkg/devtool"
	"github.com/robcohen/peervault-sub002/pkg/poll"
)

// consoleSuite exercises console capture: log lines emitted inside the app
// must show up in the client's event buffer, and clearing must stick.
func consoleSuite() Suite {
	return Suite{
		Name: "console",
		Tests: []Test{
			{Name: "captures-log-lines", Run: testCapturesLogLines},
			{Name: "captures-errors", Run: testCapturesErrors},
			{Name: "clear-discards-events", Run: testClearDiscardsEvents},
		},
	}
}

// emitConsole runs a console call inside the app. The marker makes the line
// findable among the app's own chatter.
func emitConsole(ctx context.Context, client *devtool.Client, call, marker string) error {
	expr := fmt.Sprintf(`console.%s(%q)`, call, marker)
	_, err := client.Evaluate(ctx, expr)
	return err
}

// waitForConsoleLine polls the event buffer until a line containing marker
// shows up and returns it.
func waitForConsoleLine(ctx context.Context, env *Env, client *devtool.Client, marker string) (devtool.ConsoleEvent, error) {
	return poll.Until(ctx, env.Poll,
		func(ctx context.Context) (devtool.ConsoleEvent, error) {
			for _, ev := range client.ConsoleEvents() {
				if strings.Contains(ev.Text, marker) {
					return ev, nil
				}
			}
			return devtool.ConsoleEvent{}, nil
		},
		func(ev devtool.ConsoleEvent) bool { return ev.Text != "" },
	)
}

func testCapturesLogLines(ctx context.Context, env *Env) error {
	marker := "harness-marker-" + env.Fixtures.Root()
	if err := emitConsole(ctx, env.ClientA, "log", marker); err != nil {
		return err
	}

	ev, err := waitForConsoleLine(ctx, env, env.ClientA, marker)
	if err != nil {
		return fmt.Errorf("console line %q never captured: %w", marker, err)
	}
	if ev.Category != "log" {
		return fmt.Errorf("expected category log, got %q", ev.Category)
	}
	return nil
}

func testCapturesErrors(ctx context.Context, env *Env) error {
	marker := "harness-error-" + env.Fixtures.Root()
	if err := emitConsole(ctx, env.ClientA, "error", marker); err != nil {
		return err
	}

	ev, err := waitForConsoleLine(ctx, env, env.ClientA, marker)
	if err != nil {
		return fmt.Errorf("console error %q never captured: %w", marker, err)
	}
	if ev.Category != "error" {
		return fmt.Errorf("expected category error, got %q", ev.Category)
	}
	return nil
}

func testClearDiscardsEvents(ctx context.Context, env *Env) error {
	marker := "harness-cleared-" + env.Fixtures.Root()
	if err := emitConsole(ctx, env.ClientA, "log", marker); err != nil {
		return err
	}
	if _, err := waitForConsoleLine(ctx, env, env.ClientA, marker); err != nil {
		return err
	}

	env.ClientA.ClearConsoleEvents()

	for _, ev := range env.ClientA.ConsoleEvents() {
		if strings.Contains(ev.Text, marker) {
			return fmt.Errorf("marker line survived a buffer clear")
		}
	}
	return nil
}
