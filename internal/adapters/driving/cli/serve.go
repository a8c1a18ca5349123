package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/lectern/internal/adapters/driving/api"
	"github.com/custodia-labs/lectern/internal/adapters/driving/mcp"
)

var (
	serveAddr    string
	serveMCP     bool
	serveMCPAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the HTTP API. Every request except /health must carry the
X-Lectern-User and X-Lectern-Tenant headers.

With --mcp the Model Context Protocol server runs over stdio instead,
acting as --user in --tenant. Use --mcp-addr to also serve MCP over
streamable HTTP alongside the API.

Examples:
  # HTTP API on the configured address
  lectern serve

  # MCP over stdio for an AI assistant
  lectern serve --mcp --user student-1 --tenant school-1`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from settings)")
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "serve MCP over stdio instead of the HTTP API")
	serveCmd.Flags().StringVar(&serveMCPAddr, "mcp-addr", "", "also serve MCP over HTTP on this address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	if serveMCP {
		server, err := newMCPServer()
		if err != nil {
			return err
		}
		return server.Run(cmd.Context())
	}

	addr, err := listenAddr()
	if err != nil {
		return err
	}

	handler := api.NewRouter(api.NewHandler(api.Services{
		Ingestion:    ingestionService,
		Retrieval:    retrievalService,
		Conversation: conversationService,
		Index:        indexService,
	}))

	var mcpServer *mcp.Server
	if serveMCPAddr != "" {
		if mcpServer, err = newMCPServer(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	cmd.Printf("HTTP API listening on %s\n", addr)
	g.Go(func() error {
		return api.Serve(ctx, addr, handler)
	})
	if mcpServer != nil {
		cmd.Printf("MCP server listening on http://%s\n", serveMCPAddr)
		g.Go(func() error {
			return mcpServer.RunHTTP(ctx, serveMCPAddr)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func listenAddr() (string, error) {
	if serveAddr != "" {
		return serveAddr, nil
	}
	if settingsService == nil {
		return "", errors.New("--addr is required when settings are not configured")
	}
	settings, err := settingsService.Get()
	if err != nil {
		return "", fmt.Errorf("failed to get settings: %w", err)
	}
	return settings.Server.Addr, nil
}

func newMCPServer() (*mcp.Server, error) {
	p, err := principal()
	if err != nil {
		return nil, err
	}
	return mcp.NewServer(&mcp.Ports{
		Principal:    p,
		Retrieval:    retrievalService,
		Conversation: conversationService,
		Ingestion:    ingestionService,
	})
}
