package main

import (
	"log/slog"
	"os"

	"github.com/jamwil/terra/cmd/terra/commands"
	"github.com/jamwil/terra/lib/osutil"
	"github.com/jamwil/terra/lib/telemetry"
)

func main() {
	// Ctrl+C cancels the run cleanly between registry requests
	ctx := osutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "terra")
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("telemetry setup failed, continuing without", "err", err)
	}
	defer tel.Shutdown(ctx)

	telemetry.InstrumentPerfStats(ctx)
	telemetry.InitSlog(false)
	commands.ExecuteContext(ctx)
}
