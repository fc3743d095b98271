package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/liminalcommons/chora-cvm/internal/config"
	"github.com/liminalcommons/chora-cvm/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP",
	Long: `Run the HTTP adapter. Routes:

  GET  /health            liveness and database path
  GET  /capabilities      invocable intents
  POST /invoke/:intent    dispatch (body = JSON inputs)
  GET  /entities/:id      entity with data
  GET  /search?q=&limit=  full-text search
  GET  /states/:id        protocol run snapshot
  GET  /metrics           prometheus metrics

The server shares dispatch semantics with the CLI and worker; a protocol
seeded while serving is invocable on the next request.`,
	Example: `  cvm serve
  cvm serve --addr :9000`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if !cmd.Flags().Changed("addr") {
			if configured := config.GetString("serve.addr"); configured != "" {
				addr = configured
			}
		}

		eng := newEngine()
		defer eng.Close()

		srv := httpapi.New(eng)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(addr)
		}()
		fmt.Printf("cvm serving on %s\n", addr)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				fail("%v", err)
			}
		case <-rootCtx.Done():
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Echo().Shutdown(shutCtx); err != nil {
				fail("shutdown: %v", err)
			}
			fmt.Println("cvm server stopped")
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8779", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
