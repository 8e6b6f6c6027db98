package commands

import (
	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/access"
)

// NewMembersCommand creates the parent 'members' command.
func NewMembersCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Manage team membership",
	}

	cmd.AddCommand(
		newMembersSetRoleCommand(app),
		newMembersRemoveCommand(app),
	)
	return cmd
}

func newMembersSetRoleCommand(app *App) *cobra.Command {
	var (
		teamID string
		userID string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change a member's role",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			parsed, err := access.ParseRole(role)
			if err != nil {
				return err
			}
			if err := app.Members.ChangeMemberRole(ctx, teamID, userID, parsed, app.Actor); err != nil {
				return err
			}
			app.Logger.Info("member %s on team %s is now %s", userID, teamID, parsed)
			return nil
		},
	}

	cmd.Flags().StringVar(&teamID, "team", "", "Team id (required)")
	cmd.Flags().StringVar(&userID, "user", "", "User id (required)")
	cmd.Flags().StringVar(&role, "role", "", "owner|admin|developer|viewer (required)")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newMembersRemoveCommand(app *App) *cobra.Command {
	var (
		teamID string
		userID string
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a member from a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Build(ctx); err != nil {
				return err
			}
			defer app.Close()
			if err := app.Members.RemoveMember(ctx, teamID, userID, app.Actor); err != nil {
				return err
			}
			app.Logger.Info("member %s removed from team %s", userID, teamID)
			return nil
		},
	}

	cmd.Flags().StringVar(&teamID, "team", "", "Team id (required)")
	cmd.Flags().StringVar(&userID, "user", "", "User id (required)")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
