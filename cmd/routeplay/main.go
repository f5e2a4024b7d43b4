package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	remoteFlags := &RemoteFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createPlayCommand(globalFlags, &PlayFlags{}),
		createSimulateCommand(&SimulateFlags{}),
		createInspectCommand(&InspectFlags{}),
		createServeCommand(globalFlags),
		createStatusCommand(remoteFlags),
		createLoadCommand(remoteFlags),
		createResumeCommand(remoteFlags),
		createPauseCommand(remoteFlags),
		createStopCommand(remoteFlags),
		createSeekCommand(remoteFlags),
		createSpeedCommand(remoteFlags),
		createWatchCommand(remoteFlags),
		createHistoryCommand(remoteFlags),
		createTokenCommand(globalFlags, &TokenFlags{}),
		createTemplateCommand(&TemplateCreateFlags{}),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "routeplay",
		Short: "Narrative timeline playback scheduler",
		Long: `Routeplay plays back timed narrative timelines (lines drawn between
subjects, ripples, captions) locally or through a daemon with an HTTP API.

Examples:
  routeplay play tour.json --speed=1.5
  routeplay simulate tour.json --step=100ms
  routeplay serve config.toml
  routeplay status --api-url=http://remote:8080/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "warn", "log level for local commands (debug, info, warn, error)")
	return root
}
