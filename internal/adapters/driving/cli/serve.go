package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragkb/internal/adapters/driving/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the knowledge base over HTTP until interrupted.

Endpoints include POST /ask, POST /search, GET /stats, the /documents
resource, GET /health and Prometheus metrics on GET /metrics.

The listen address comes from --addr, then server.addr in the
configuration, then HTTP_ADDR.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (default from configuration, :8000)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if answerService == nil {
		return errors.New("answer service not configured")
	}

	server, err := api.NewServer(&api.Ports{
		Answer:    answerService,
		Ingestion: ingestionService,
		Search:    searchService,
		Stats:     statsService,
	}, api.WithVersion(version))
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" && settingsService != nil {
		addr = settingsService.Get().Server.Addr
	}
	if addr == "" {
		addr = ":8000"
	}

	if err := server.Run(cmd.Context(), addr); err != nil {
		return fmt.Errorf("serving HTTP: %w", err)
	}
	return nil
}
