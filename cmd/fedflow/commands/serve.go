package commands

import (
	"github.com/spf13/cobra"

	"fedflow/internal/app"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and WebSocket server",
	Long: `Start the HTTP API and WebSocket server.

Serves the runs, quality, and health endpoints under /api/v1, the event
stream on /ws, liveness on /healthz, and Prometheus metrics on /metrics.
When schedules are enabled in configuration the cron scheduler runs inside
the server process. Runs until interrupted; shutdown drains in-flight runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides configuration)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	return application.Run()
}
