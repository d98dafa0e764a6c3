package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/studyforge/studyforge/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the studyforge HTTP server",
	Long: `Starts the HTTP server exposing document indexing, question answering,
study question generation, similarity search, note enrichment, and
cache management, plus a websocket endpoint for interactive asking.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = st.cfg.Server.Port
		}

		srv := server.New(server.Config{
			Port:     port,
			AllowAll: st.cfg.Server.AllowAllOrigins,
		}, st.svc, st.cache)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			srv.Shutdown(context.Background())
		}()

		fmt.Fprintf(os.Stderr, "studyforge server v%s starting on port %d\n", Version, port)
		fmt.Fprintf(os.Stderr, "  Data dir: %s\n", st.cfg.DataDir)
		fmt.Fprintf(os.Stderr, "  Provider: %s (%s)\n", st.cfg.Provider, st.cfg.Model)

		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
