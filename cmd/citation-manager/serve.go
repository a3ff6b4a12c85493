// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP citation agent",
	Long: `Serve starts the HTTP agent. Requests arrive as task envelopes on
/process, /batch, /bibliography, /convert, /ltm/retrieve, and /upload/pdf;
/health, /csl_status, and /metrics report on the running agent.

Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :5006)")
	serveCmd.Flags().String("api-key", "", "require this value in the X-API-KEY header")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.api_key", serveCmd.Flags().Lookup("api-key"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if debug, _ := cmd.Flags().GetBool("debug"); !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := loadConfig(viper.GetViper())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d, m, err := build(cfg, logger, reg, buildOpts{})
	if err != nil {
		return err
	}
	defer d.Close()

	st := d.svc.RendererStatus()
	logger.Info("renderer ready",
		zap.String("engine", st.Engine),
		zap.Bool("engine_available", st.EngineAvailable),
		zap.Strings("style_dirs", st.StyleDirs),
		zap.String("store", d.store.Path()),
	)

	srv := server.New(d.svc, server.Options{
		Config:         cfg.Server,
		StyleDir:       cfg.Render.StyleDir,
		MaxUploadBytes: cfg.PDF.MaxUploadBytes,
		Registry:       reg,
		Metrics:        m,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
