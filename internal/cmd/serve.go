package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/photoedit/internal/editor"
	"github.com/MeKo-Tech/photoedit/internal/preview"
	"github.com/MeKo-Tech/photoedit/internal/server"
	"github.com/MeKo-Tech/photoedit/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the edit session API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Int64("max-upload-mb", 20, "Maximum upload size in megabytes")
	serveCmd.Flags().String("archive", "", "SQLite file to persist session history in (empty disables)")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served snapshots")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Grace period for in-flight requests on shutdown")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.max_upload_mb", "max-upload-mb")
	mustBind("serve.archive", "archive")
	mustBind("serve.cache_control", "cache-control")
	mustBind("serve.shutdown_timeout", "shutdown-timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	archivePath := viper.GetString("serve.archive")
	shutdownTimeout := viper.GetDuration("serve.shutdown_timeout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ed editor.Editor
	client, err := newEditor(ctx)
	if err != nil {
		// Sessions still work for crop, masks and history without a service.
		logger.Warn("image service unavailable, edits will fail", "error", err)
	} else {
		ed = client
	}

	var archive *store.Store
	if archivePath != "" {
		archive, err = store.Open(archivePath)
		if err != nil {
			return err
		}
		defer archive.Close()
	}

	reg := preview.NewRegistry()
	opts, err := sessionOptions(ed, reg)
	if err != nil {
		return err
	}

	sessions := server.NewSessions(opts, archive, logger)
	defer sessions.Close()

	api := server.NewAPI(sessions, reg, opts.Presets, server.Config{
		CacheControl: viper.GetString("serve.cache_control"),
		MaxUploadMB:  viper.GetInt64("serve.max_upload_mb"),
		Compression:  opts.Compression,
	}, logger)

	srv := &http.Server{Addr: addr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}

	logger.Info("edit server listening",
		"addr", addr,
		"archive", archivePath,
		"locale", opts.Locale,
		"presets", len(opts.Presets),
		"editor", ed != nil,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
