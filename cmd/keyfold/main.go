package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/cmd/keyfold/commands"
	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		actor      string
		noColor    bool
		debug      bool
	)

	app := &commands.App{}

	rootCmd := &cobra.Command{
		Use:   "keyfold",
		Short: "Secret lifecycle engine - encrypted storage, rotation, and access control",
		Long: `keyfold stores encrypted, versioned secrets, rotates them on a
schedule, and gates every operation on team roles.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(debug, noColor)

			app.ConfigPath = configFile
			app.Actor = actor
			app.Logger = logger
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Acting user id (defaults to KEYFOLD_ACTOR)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewSecretsCommand(app),
		commands.NewSchedulesCommand(app),
		commands.NewRotateCommand(app),
		commands.NewMembersCommand(app),
		commands.NewRunCommand(app),
	)

	return rootCmd.Execute()
}
