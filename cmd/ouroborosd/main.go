// Command ouroborosd runs the ouroboros HTTP/1.1 server.
package main

import (
	"fmt"
	"os"

	"github.com/arajko/ouroboros"
	"github.com/arajko/ouroboros/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagAddr        string
	flagRingEntries uint32
	flagBufferSize  int
	flagConfigPath  string
	flagLogLevel    string
	flagLogJSON     bool
)

func main() {
	root := &cobra.Command{
		Use:   "ouroborosd",
		Short: "an io_uring-native HTTP/1.1 server",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "start the server",
		RunE:  runServe,
	}
	serve.Flags().StringVar(&flagAddr, "addr", "", "address to listen on, e.g. :8080")
	serve.Flags().Uint32Var(&flagRingEntries, "ring-entries", 0, "submission queue size")
	serve.Flags().IntVar(&flagBufferSize, "buffer-size", 0, "per-session receive buffer size")
	serve.Flags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file")
	serve.Flags().StringVar(&flagLogLevel, "log-level", "", "debug|info|warn|error")
	serve.Flags().BoolVar(&flagLogJSON, "log-json", false, "emit structured JSON logs")

	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := ouroboros.DefaultConfig()

	if flagConfigPath != "" {
		loaded, err := ouroboros.LoadConfig(flagConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagRingEntries != 0 {
		cfg.RingEntries = flagRingEntries
	}
	if flagBufferSize != 0 {
		cfg.BufferSize = flagBufferSize
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logging.Configure(cfg.LogLevel, flagLogJSON)

	router := ouroboros.NewRouter()
	registerDemoRoutes(router)

	srv, err := ouroboros.NewServer(cfg, router)
	if err != nil {
		logging.Default().Error("setup failed", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	if err := srv.Run(); err != nil {
		logging.Default().Error("server exited", "error", err)
		os.Exit(1)
	}
	return nil
}

func registerDemoRoutes(r *ouroboros.Router) {
	r.HandleFunc("GET", "/", func(req *ouroboros.Request, w *ouroboros.ResponseWriter) {
		w.SetHeader("Content-Type", "text/plain")
		w.Write([]byte("Hello, io_uring!"))
	})
	r.HandleFunc("GET", "/healthz", func(req *ouroboros.Request, w *ouroboros.ResponseWriter) {
		w.SetHeader("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
}
