package main

import (
	"github.com/spf13/cobra"

	"github.com/chris/helpem/internal/service"
)

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the launchd agent that runs helpem serve (macOS)",
	}

	actions := []struct {
		use, short string
		run        func(*service.Launchd) error
	}{
		{"install", "Install the binary and load the agent", (*service.Launchd).Install},
		{"uninstall", "Unload the agent and remove the binary", (*service.Launchd).Uninstall},
		{"start", "Start the agent", (*service.Launchd).Start},
		{"stop", "Stop the agent", (*service.Launchd).Stop},
		{"restart", "Restart the agent", (*service.Launchd).Restart},
		{"status", "Show whether the agent is loaded", (*service.Launchd).Status},
		{"logs", "Follow the agent's logs", (*service.Launchd).Logs},
	}
	for _, a := range actions {
		run := a.run
		cmd.AddCommand(&cobra.Command{
			Use:   a.use,
			Short: a.short,
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return run(service.New(c.OutOrStdout()))
			},
		})
	}
	return cmd
}
