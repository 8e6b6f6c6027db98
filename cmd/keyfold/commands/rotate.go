package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/store"
)

// NewRotateCommand creates the 'rotate' command for manually triggering
// a scheduled rotation.
func NewRotateCommand(app *App) *cobra.Command {
	var (
		scheduleID string
		value      string
	)

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Run one rotation now",
		Long: `Trigger a rotation for a schedule outside its regular cadence.

For schedules using the manual method, pass the replacement value with
--value. Auto-generate and webhook schedules obtain the value themselves.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Engine.Rotate(ctx, scheduleID, value, app.Actor)
			if err != nil {
				return err
			}

			if res.Status == store.RotationSuccess {
				app.Logger.Info("rotated %s to version %s in %s",
					res.SecretKey, res.NewVersion, res.Duration.Round(time.Millisecond))
				return nil
			}
			app.Logger.Error("rotation of %s failed: %v", res.SecretKey, res.Err)
			return nil
		},
	}

	cmd.Flags().StringVar(&scheduleID, "schedule", "", "Schedule id (required)")
	cmd.Flags().StringVar(&value, "value", "", "Replacement value for manual rotations")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}
