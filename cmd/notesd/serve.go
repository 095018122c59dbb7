package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	notes "github.com/i5heu/ouroboros-notes"
	"github.com/i5heu/ouroboros-notes/pkg/apiServer"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		if listenAddr != "" {
			conf.Listen = listenAddr
		}
		return serve(conf)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address, overrides the config")
	rootCmd.AddCommand(serveCmd)
}

func serve(conf notes.Config) error {
	log := conf.Logger
	ctx, cancel := signalContext(log)
	defer cancel()

	svc, err := notes.New(conf)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           apiServer.New(svc, apiServer.WithLogger(log)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listenAddr", conf.Listen).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown")
	}
	if err := svc.Close(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}

	log.WithFields(logrus.Fields{"error": serveErr}).Info("notesd stopped")
	return serveErr
}
