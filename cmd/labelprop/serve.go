package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ironsheep/label-propagator/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the project to an MCP client over stdin/stdout",
	Long: `Serve the project over the Model Context Protocol.

The server reads JSON-RPC requests on stdin and writes responses on stdout, so it
is meant to be launched by an MCP client rather than run by hand. Labels are saved
when the client disconnects.

Environment variables:
  LABELPROP_LOG_LEVEL=debug    Enable debug logging`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	if os.Getenv("LABELPROP_LOG_LEVEL") == "debug" {
		log.Printf("labelprop MCP server v%s (built %s, commit %s) serving %s", Version, BuildTime, GitCommit, p.Dir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvErr := server.New(p, Version).Run(ctx)
	if err := p.Save(); err != nil {
		log.Printf("WARNING: failed to save project: %v", err)
	}
	return srvErr
}
