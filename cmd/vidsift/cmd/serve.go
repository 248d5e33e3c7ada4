package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lmejias/vidsift/pkg/api"
	"github.com/lmejias/vidsift/pkg/queue"
	"github.com/lmejias/vidsift/pkg/shutdown"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status API",
	Long: `Serves the polling HTTP API: job history, live job status, aggregate
progress, health and prometheus metrics. Job submission over HTTP requires
a reachable Redis queue.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, "serve")
	if err != nil {
		return err
	}
	defer logger.Close()

	jobStore, err := openStore(cfg)
	if err != nil {
		return err
	}

	// The queue is optional: without it the API is read-only
	var submitter api.Submitter
	if q, err := queue.New(cfg.Queue, logger); err == nil {
		submitter = q
	} else {
		logger.Warn("queue unreachable, POST /videos disabled", map[string]interface{}{
			"error": err.Error(),
		})
	}

	handler := api.NewHandler(jobStore, submitter, nil, logger)
	server := api.NewServer(serveAddr, handler)

	sd := shutdown.New(30 * time.Second)
	sd.Register(shutdown.StopHTTPServer(server, "status API"))
	sd.Register(shutdown.CloseResource(jobStore, "job store"))

	go func() {
		logger.Info("status API listening", map[string]interface{}{"addr": serveAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	return sd.WaitWithContext(context.Background())
}
