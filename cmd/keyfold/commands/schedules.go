package commands

import (
	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/rotation"
)

// NewSchedulesCommand creates the parent 'schedules' command.
func NewSchedulesCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Manage rotation schedules",
		Long: `Attach rotation schedules to secrets and inspect their run history.

Examples:
  keyfold schedules create --secret 4f7c... --frequency weekly --method auto-generate
  keyfold schedules pause --id a1b2...
  keyfold schedules logs --id a1b2... --limit 10`,
	}

	cmd.AddCommand(
		newSchedulesCreateCommand(app),
		newSchedulesListCommand(app),
		newSchedulesPauseCommand(app),
		newSchedulesResumeCommand(app),
		newSchedulesDeleteCommand(app),
		newSchedulesLogsCommand(app),
	)
	return cmd
}

func newSchedulesCreateCommand(app *App) *cobra.Command {
	var (
		secretID   string
		frequency  string
		customDays int
		method     string
		webhookURL string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Attach a rotation schedule to a secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			rec, err := app.Schedules.Create(ctx, rotation.CreateInput{
				SecretID:   secretID,
				Frequency:  rotation.Frequency(frequency),
				CustomDays: customDays,
				Method:     rotation.Method(method),
				WebhookURL: webhookURL,
			}, app.Actor)
			if err != nil {
				return err
			}
			app.Logger.Info("schedule %s created, next rotation %s",
				rec.ID, rec.NextRotation.Format("2006-01-02 15:04"))
			return nil
		},
	}

	cmd.Flags().StringVar(&secretID, "secret", "", "Secret id (required)")
	cmd.Flags().StringVar(&frequency, "frequency", "", "daily|weekly|monthly|quarterly|custom (required)")
	cmd.Flags().IntVar(&customDays, "custom-days", 0, "Interval in days for the custom frequency")
	cmd.Flags().StringVar(&method, "method", "", "auto-generate|manual|webhook (required)")
	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Endpoint for the webhook method")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("frequency")
	_ = cmd.MarkFlagRequired("method")
	return cmd
}

func newSchedulesListCommand(app *App) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's rotation schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			recs, err := app.Schedules.List(ctx, projectID, app.Actor)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				app.Logger.Info("no schedules found")
				return nil
			}
			for _, rec := range recs {
				last := "never"
				if rec.LastRotation != nil {
					last = rec.LastRotation.Format("2006-01-02 15:04")
				}
				app.Logger.Info("%s  secret=%s  %s/%s  %s  next=%s last=%s",
					rec.ID, rec.SecretID, rec.Frequency, rec.Method, rec.Status,
					rec.NextRotation.Format("2006-01-02 15:04"), last)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id (required)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newSchedulesPauseCommand(app *App) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Stop a schedule from firing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			if err := app.Schedules.Pause(ctx, id, app.Actor); err != nil {
				return err
			}
			app.Logger.Info("schedule %s paused", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Schedule id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSchedulesResumeCommand(app *App) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Reactivate a paused schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			if err := app.Schedules.Resume(ctx, id, app.Actor); err != nil {
				return err
			}
			app.Logger.Info("schedule %s resumed", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Schedule id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSchedulesDeleteCommand(app *App) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			if err := app.Schedules.Delete(ctx, id, app.Actor); err != nil {
				return err
			}
			app.Logger.Info("schedule %s deleted", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Schedule id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSchedulesLogsCommand(app *App) *cobra.Command {
	var (
		id    string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show a schedule's rotation attempts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			logs, err := app.Schedules.Logs(ctx, id, app.Actor, limit)
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				app.Logger.Info("no rotations recorded")
				return nil
			}
			for _, entry := range logs {
				completed := "-"
				if entry.CompletedAt != nil {
					completed = entry.CompletedAt.Format("2006-01-02 15:04:05")
				}
				line := "%s  %s  started=%s completed=%s"
				if entry.Error != "" {
					app.Logger.Warn(line+"  error=%s", entry.ID, entry.Status,
						entry.StartedAt.Format("2006-01-02 15:04:05"), completed, entry.Error)
					continue
				}
				app.Logger.Info(line, entry.ID, entry.Status,
					entry.StartedAt.Format("2006-01-02 15:04:05"), completed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Schedule id (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
