package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragkb/internal/adapters/driving/mcp"
)

var mcpPort int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol integration",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the knowledge base to AI assistants",
	Long: `Serves the "ask" and "search" tools and the ragkb://documents resources
over the Model Context Protocol.

Stdio is used unless --port is given, in which case the streamable HTTP
transport listens on that port.

  ragkb mcp serve              # launched by a desktop assistant
  ragkb mcp serve --port 8080  # for an inspector or a remote client

A desktop assistant entry looks like:

  "ragkb": {"command": "/path/to/ragkb", "args": ["mcp", "serve"]}`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 serves stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if mcpPort < 0 || mcpPort > 65535 {
		return fmt.Errorf("invalid port %d", mcpPort)
	}
	if answerService == nil || searchService == nil {
		return errors.New("answer service not configured")
	}

	ports := &mcp.Ports{Answer: answerService, Search: searchService}
	if ingestionService != nil {
		ports.Documents = ingestionService
	}

	server, err := mcp.NewServer(ports, mcp.WithVersion(version))
	if err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}

	if mcpPort == 0 {
		// Stdout carries the protocol, so nothing else may be printed.
		return server.Run(cmd.Context())
	}

	addr := fmt.Sprintf(":%d", mcpPort)
	cmd.Printf("MCP server on http://localhost%s\n", addr)
	return server.RunHTTP(cmd.Context(), addr)
}
