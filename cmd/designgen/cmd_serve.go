package main

import (
	"context"
	"os"
	"time"

	"github.com/signifo/designgen/internal/api"
	"github.com/signifo/designgen/internal/config"
	"github.com/signifo/designgen/internal/logging"
	"github.com/signifo/designgen/internal/watcher"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generation API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := api.NewServer(cfg, nil)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			if !noWatch {
				if _, errStat := os.Stat(configPath); errStat == nil {
					w, errWatch := watcher.New(configPath, watcher.DefaultDebounce, func(next *config.Config) {
						applyFlagOverrides(next)
						if errLog := logging.ApplyConfig(next); errLog != nil {
							log.Warnf("failed to apply logging config: %v", errLog)
						}
						if errReload := srv.Reload(next); errReload != nil {
							log.Errorf("%v", errReload)
						}
					})
					if errWatch != nil {
						return errWatch
					}
					if errWatch = w.Start(ctx); errWatch != nil {
						return errWatch
					}
					defer w.Stop()
				}
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err = <-errCh:
				return err
			case <-ctx.Done():
			}
			log.Info("shutting down API server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err = srv.Stop(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the configuration file on change")
	return cmd
}
