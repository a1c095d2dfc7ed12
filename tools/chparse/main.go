// Command chparse extracts citation-needed snippets from a Wikipedia dump.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/citationhunt/chparse/interrupt"
)

// level is shared by every logger so that it can change at runtime.
var level = new(slog.LevelVar)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	ctx, stop := interrupt.NotifyContext(context.Background(), slog.Default())
	err := rootCmd.ExecuteContext(ctx)
	interrupted := interrupt.Interrupted(ctx)
	stop()

	os.Exit(exitCode(err, interrupted))
}

// exitCode reports failures before interrupts: a canceled run is not an
// error, so an error here is a fatal cause even when a signal also came.
func exitCode(err error, interrupted bool) int {
	switch {
	case err != nil:
		return 1
	case interrupted:
		return interrupt.ExitCode
	}
	return 0
}
