package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BartekS5/caregap/internal/api"
	"github.com/BartekS5/caregap/internal/config"
	"github.com/BartekS5/caregap/pkg/logger"
)

func newSystemsCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "systems",
		Short: "List the configured source systems",
		RunE: func(c *cobra.Command, args []string) error {
			registry, err := config.LoadSystems(path)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tMEASURE COLUMNS\tREQUEST TYPES")
			for _, id := range registry.IDs() {
				s, _ := registry.Get(id)
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", s.ID, s.Name, len(s.MeasureColumns), len(s.RequestTypes))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "configs/systems", "System config file or directory")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the import preview/execute HTTP API",
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			a.cache.Start(ctx)
			defer a.cache.Stop()

			server := api.NewServer(api.NewHandlers(a.systems, a.pipeline, a.executor, a.cache))
			httpServer := &http.Server{
				Addr:         a.cfg.HTTPAddr,
				Handler:      server.Router(),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("caregap API listening on %s", a.cfg.HTTPAddr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("Shutting down caregap API...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}
