package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"callbot/internal/server"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Build the knowledge base from knowledge.path and serve the call API.

Endpoints: POST /transcribe_and_chat, POST /chat, POST /configure,
GET /first_message, GET|DELETE /sessions/{id}, GET /healthz.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			k, err := newKnowledge(cfg, logger)
			if err != nil {
				return err
			}
			defer k.Close()
			assistant, err := newAssistant(cfg, k.kb, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			refresher := newRefresher(cfg, k.kb, logger)
			initialBuild(ctx, refresher, cfg.Knowledge.Path, logger)
			if err := refresher.Start(ctx); err != nil {
				return err
			}
			defer refresher.Stop()

			srv := server.New(assistant, k.kb, server.Config{
				Host:            cfg.Server.Host,
				Port:            cfg.Server.Port,
				RateLimit:       cfg.Server.RateLimit,
				RateBurst:       cfg.Server.RateBurst,
				MaxUploadBytes:  int64(cfg.Server.MaxUploadMB) << 20,
				ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSecs) * time.Second,
			}, logger)
			logger.Info("callbot listening", zap.String("url", fmt.Sprintf("http://%s", srv.Addr())))
			return srv.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8000, "listen port (overrides server.port)")
	return cmd
}
