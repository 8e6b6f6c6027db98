package commands

import (
	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/secrets"
)

// NewSecretsCommand creates the parent 'secrets' command.
func NewSecretsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage encrypted secrets",
		Long: `Create, read, update, and delete encrypted secrets.

Every write bumps the secret's version and records a history entry.

Examples:
  keyfold secrets set --project proj-1 --key DATABASE_URL --value postgres://...
  keyfold secrets list --project proj-1 --environment production
  keyfold secrets history --id 4f7c...`,
	}

	cmd.AddCommand(
		newSecretsSetCommand(app),
		newSecretsGetCommand(app),
		newSecretsListCommand(app),
		newSecretsDeleteCommand(app),
		newSecretsHistoryCommand(app),
	)
	return cmd
}

func newSecretsSetCommand(app *App) *cobra.Command {
	var (
		projectID   string
		branchID    string
		key         string
		value       string
		description string
		environment string
		secretType  string
		id          string
		reason      string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create a secret or update an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()

			if id != "" {
				patch := secrets.UpdateInput{ChangeReason: reason}
				if value != "" {
					patch.Value = &value
				}
				if description != "" {
					patch.Description = &description
				}
				if environment != "" {
					patch.Environment = &environment
				}
				if secretType != "" {
					patch.Type = &secretType
				}
				sec, err := app.Secrets.Update(ctx, id, patch, app.Actor)
				if err != nil {
					return err
				}
				app.Logger.Info("updated %s to version %s", sec.Key, sec.Version)
				return nil
			}

			in := secrets.CreateInput{
				Key:         key,
				Value:       value,
				Description: description,
				Environment: environment,
				Type:        secretType,
				ProjectID:   projectID,
			}
			if branchID != "" {
				in.BranchID = &branchID
			}
			sec, err := app.Secrets.Create(ctx, in, app.Actor)
			if err != nil {
				return err
			}
			app.Logger.Info("created %s (id %s, version %s)", sec.Key, sec.ID, sec.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id (required for create)")
	cmd.Flags().StringVar(&branchID, "branch", "", "Branch id (omit for project-global)")
	cmd.Flags().StringVar(&key, "key", "", "Secret key")
	cmd.Flags().StringVar(&value, "value", "", "Secret value")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&environment, "environment", "", "Environment (development|staging|production)")
	cmd.Flags().StringVar(&secretType, "type", "", "Secret type (api-key, password, ...)")
	cmd.Flags().StringVar(&id, "id", "", "Existing secret id (update instead of create)")
	cmd.Flags().StringVar(&reason, "reason", "", "Change reason recorded in history (updates only)")
	return cmd
}

func newSecretsGetCommand(app *App) *cobra.Command {
	var (
		id     string
		reveal bool
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			sec, err := app.Secrets.Get(ctx, id, app.Actor)
			if err != nil {
				return err
			}
			printSecret(app, sec, reveal)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Secret id (required)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the decrypted value")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSecretsListCommand(app *App) *cobra.Command {
	var (
		projectID    string
		branchID     string
		branchGlobal bool
		environment  string
		reveal       bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			got, err := app.Secrets.List(ctx, secrets.Filter{
				ProjectID:    projectID,
				BranchID:     branchID,
				BranchGlobal: branchGlobal,
				Environment:  environment,
			}, app.Actor)
			if err != nil {
				return err
			}
			if len(got) == 0 {
				app.Logger.Info("no secrets found")
				return nil
			}
			for _, sec := range got {
				printSecret(app, sec, reveal)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id (required)")
	cmd.Flags().StringVar(&branchID, "branch", "", "Limit to one branch")
	cmd.Flags().BoolVar(&branchGlobal, "branch-global", false, "Limit to project-global secrets")
	cmd.Flags().StringVar(&environment, "environment", "", "Limit to one environment")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print decrypted values")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newSecretsDeleteCommand(app *App) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Hard-delete a secret and its history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			if err := app.Secrets.Delete(ctx, id, app.Actor); err != nil {
				return err
			}
			app.Logger.Info("deleted secret %s", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Secret id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSecretsHistoryCommand(app *App) *cobra.Command {
	var (
		id     string
		reveal bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a secret's version history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			entries, err := app.Secrets.History(ctx, id, app.Actor)
			if err != nil {
				return err
			}
			for _, e := range entries {
				value := logging.Secret(e.Value).String()
				if reveal {
					value = e.Value
				}
				reason := e.ChangeReason
				if reason == "" {
					reason = "edit"
				}
				app.Logger.Info("v%s  %s  by %s  (%s)  %s",
					e.Version, e.UpdatedAt.Format("2006-01-02 15:04:05"), e.UpdatedBy, reason, value)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Secret id (required)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print historical values")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func printSecret(app *App, sec *secrets.Secret, reveal bool) {
	value := logging.Secret(sec.Value).String()
	if reveal {
		value = sec.Value
	}
	branch := "global"
	if sec.BranchID != nil {
		branch = *sec.BranchID
	}
	app.Logger.Info("%s  v%s  [%s/%s]  %s", sec.Key, sec.Version, sec.Environment, branch, value)
	if sec.Description != "" {
		app.Logger.Debug("  %s", sec.Description)
	}
}
