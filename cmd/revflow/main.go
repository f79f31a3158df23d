// Command revflow runs the document review engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/revflow"
	"github.com/viant/revflow/internal/httpserver"
	"github.com/viant/revflow/service/registry"
)

var version = "0.1.0"

var configURL string

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "revflow",
	Short:   "Document review workflow engine",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configURL, "config", "c", "", "config URL (yaml)")
	rootCmd.AddCommand(serveCmd, validateCmd, tickCmd)
}

func load(ctx context.Context) (*revflow.Service, *revflow.Config, error) {
	cfg, err := revflow.LoadConfig(ctx, configURL)
	if err != nil {
		return nil, nil, err
	}
	srv, err := revflow.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return srv, cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run escalation ticks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		srv, cfg, err := load(ctx)
		if err != nil {
			return err
		}
		if err = srv.Start(ctx); err != nil {
			return err
		}
		server := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpserver.New(srv, cfg.HTTP.JWTSecret).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go tick(ctx, srv, cfg.Escalation.Interval)
		errs := make(chan error, 1)
		go func() {
			fmt.Fprintf(cmd.OutOrStdout(), "revflow listening on %s\n", cfg.HTTP.Addr)
			errs <- server.ListenAndServe()
		}()
		select {
		case err = <-errs:
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

func tick(ctx context.Context, srv *revflow.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_, _ = srv.Tick(ctx, now.UTC())
		}
	}
}

var validateCmd = &cobra.Command{
	Use:   "validate [workflow.yaml...]",
	Short: "Validate workflow definitions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := registry.New()
		invalid := 0
		for _, URL := range args {
			configs, err := reg.Download(cmd.Context(), URL)
			if err != nil {
				return err
			}
			for _, cfg := range configs {
				result := reg.Validate(cfg)
				if result.IsValid {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s ok\n", URL, cfg.ID)
					continue
				}
				invalid++
				for _, issue := range result.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s: %s\n", URL, cfg.ID, issue)
				}
			}
		}
		if invalid > 0 {
			return fmt.Errorf("%d invalid workflow(s)", invalid)
		}
		return nil
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one escalation pass over the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		srv, _, err := load(ctx)
		if err != nil {
			return err
		}
		if err = srv.Start(ctx); err != nil {
			return err
		}
		tick, tickErr := srv.Tick(ctx, time.Now().UTC())
		shutdownErr := srv.Shutdown(ctx)
		if tickErr != nil {
			return tickErr
		}
		snapshot := tick.Snapshot()
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(map[string]int{
			"sessions":   snapshot.Sessions,
			"reminders":  snapshot.Reminders,
			"actions":    snapshot.Actions,
			"suppressed": snapshot.Suppressed,
			"failed":     snapshot.Failed,
		}); err != nil {
			return err
		}
		return shutdownErr
	},
}
