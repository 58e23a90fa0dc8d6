package commands

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appmcp "github.com/kailas-cloud/vecshop/internal/transport/mcp"
)

// NewMCPCommand serves the product search tools over MCP.
func NewMCPCommand(opts *Options) *cobra.Command {
	var (
		transport string
		address   string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run MCP server",
		Long:  "Run MCP server exposing product_search and product_image_search tools.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			s := appmcp.New(a.search, appmcp.Options{
				DefaultTopN: a.cfg.Search.DefaultTopN,
				Logger:      a.logger,
			})

			switch transport {
			case "stdio":
				// stdout carries the protocol; logs go to stderr.
				return server.ServeStdio(s)
			case "http":
				addr := address
				if addr == "" {
					addr = ":8081"
				}
				a.logger.Info("Starting MCP streamable HTTP server", zap.String("addr", addr))
				return server.NewStreamableHTTPServer(s).Start(addr)
			default:
				return fmt.Errorf("unsupported transport: %s (supported: stdio, http)", transport)
			}
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "stdio", "transport (stdio, http)")
	cmd.Flags().StringVarP(&address, "address", "a", "", "server address for http, e.g. :8081")
	return cmd
}
