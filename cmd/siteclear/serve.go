package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve event data through the cache plus the clear endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		cfg := s.svc.Config()
		addr := cfg.ListenAddr()
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}

		srv := &http.Server{
			Handler:           s.svc.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s.svc.Start()

		errCh := make(chan error, 1)
		go func() {
			s.log.Infof("siteclear listening on %s, events origin=%s", addr, cfg.Events.Origin)
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
				stop()
			}
		}()

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)

		select {
		case err := <-errCh:
			return fmt.Errorf("server: %w", err)
		default:
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
