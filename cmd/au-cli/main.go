package main

import (
	"context"

	"auattend-backend/cmd/au-cli/cmd"
	"auattend-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "au-cli")
	telemetry.InitSlog(true)
	cmd.Execute()
}
