package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the 'run' command, the long-lived scheduler
// daemon.
func NewRunCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the rotation scheduler daemon",
		Long: `Run the scheduler until interrupted. Due schedules are picked up on
every scan tick and rotated concurrently, bounded by
rotation.max_concurrent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()

			if err := app.Dispatcher.Start(ctx); err != nil {
				return err
			}
			app.Logger.Info("scheduler running, scan cadence %s", app.Config.Rotation.ScanSpec)

			var metricsSrv *http.Server
			if app.Config.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsSrv = &http.Server{Addr: app.Config.Metrics.Listen, Handler: mux}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						app.Logger.Error("metrics listener: %v", err)
					}
				}()
				app.Logger.Info("metrics on %s/metrics", app.Config.Metrics.Listen)
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			app.Logger.Info("shutting down")
			cancel()
			app.Dispatcher.Stop()
			if metricsSrv != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
	return cmd
}
