package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"taskchain/internal/agent"
	"taskchain/internal/artifact"
	"taskchain/internal/chain"
	"taskchain/internal/config"
	"taskchain/internal/gateway"
	"taskchain/internal/server"
	"taskchain/internal/submit"
	"taskchain/internal/tools"
)

var (
	configPath string
	debug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskchain service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	workDir, err := tools.NewWorkDir(cfg.Tools.WorkDir)
	if err != nil {
		return err
	}

	chainCtx := chain.NewContext()
	store := artifact.NewStore()
	httpClient := &http.Client{Timeout: 60 * time.Second}

	registry := tools.NewRegistry()
	registry.MustRegister(
		tools.NewRenderPage(httpClient),
		tools.NewDownloadFile(httpClient, workDir),
		tools.NewEncodeFile(workDir, store),
		tools.NewOCRImage(workDir, cfg.Tools.TesseractBin),
		tools.NewTranscribeAudio(workDir, cfg.Tools.FFmpegBin, cfg.Tools.TranscribeURL, httpClient),
		tools.NewRunCode(workDir, cfg.Tools),
		tools.NewAddDependencies(workDir, cfg.Tools),
		tools.NewCSVRead(workDir),
		tools.NewCSVWrite(workDir),
		tools.NewCSVToJSON(workDir),
		tools.NewCSVStats(workDir),
		tools.NewPDFText(workDir, cfg.Tools),
		tools.NewPDFInfo(workDir, cfg.Tools),
		tools.NewPDFTables(workDir, cfg.Tools),
		tools.NewPDFImages(workDir, cfg.Tools),
		submit.New(chainCtx, store, httpClient, cfg.Limits, log),
	)

	provider := gateway.NewProvider(cfg.Provider)
	gw := gateway.New(provider, cfg.Provider, log)
	driver := agent.NewDriver(chainCtx, store, registry, gw, *cfg, log)
	srv := server.New(driver, cfg.ListenAddr, cfg.Identity.Secret, log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
