package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/routeplay/internal/server"
	"github.com/loykin/routeplay/internal/timeline"
	"github.com/loykin/routeplay/pkg/client"
)

const defaultAPIUrl = "http://localhost:8080/api"

func addRemoteFlags(cmd *cobra.Command, flags *RemoteFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", defaultAPIUrl, "daemon API base URL")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().StringVar(&flags.Token, "token", os.Getenv("ROUTEPLAY_TOKEN"), "bearer token (default $ROUTEPLAY_TOKEN)")
}

func newAPIClient(flags *RemoteFlags) *client.Client {
	return client.New(client.Config{
		BaseURL: flags.APIUrl,
		Timeout: flags.APITimeout,
		Token:   flags.Token,
		Logger:  cliLogger("error"),
	})
}

// remoteStatusCommand builds a command that performs op and prints the
// resulting status.
func remoteStatusCommand(use, short string, flags *RemoteFlags, op func(context.Context, *client.Client) (client.Status, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := op(cmd.Context(), newAPIClient(flags))
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), st)
			return nil
		},
	}
	addRemoteFlags(cmd, flags)
	return cmd
}

func createStatusCommand(flags *RemoteFlags) *cobra.Command {
	return remoteStatusCommand("status", "Show the daemon's playback status", flags,
		func(ctx context.Context, c *client.Client) (client.Status, error) { return c.Status(ctx) })
}

func createResumeCommand(flags *RemoteFlags) *cobra.Command {
	return remoteStatusCommand("resume", "Start or resume playback on the daemon", flags,
		func(ctx context.Context, c *client.Client) (client.Status, error) { return c.Play(ctx) })
}

func createPauseCommand(flags *RemoteFlags) *cobra.Command {
	return remoteStatusCommand("pause", "Pause playback on the daemon", flags,
		func(ctx context.Context, c *client.Client) (client.Status, error) { return c.Pause(ctx) })
}

func createStopCommand(flags *RemoteFlags) *cobra.Command {
	return remoteStatusCommand("stop", "Stop and rewind playback on the daemon", flags,
		func(ctx context.Context, c *client.Client) (client.Status, error) { return c.Stop(ctx) })
}

func createSeekCommand(flags *RemoteFlags) *cobra.Command {
	var to time.Duration
	cmd := remoteStatusCommand("seek", "Jump to a position on the daemon", flags,
		func(ctx context.Context, c *client.Client) (client.Status, error) { return c.Seek(ctx, to) })
	cmd.Flags().DurationVar(&to, "to", 0, "target position, e.g. 750ms or 2s")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func createSpeedCommand(flags *RemoteFlags) *cobra.Command {
	var x float64
	cmd := remoteStatusCommand("speed", "Change playback speed on the daemon", flags,
		func(ctx context.Context, c *client.Client) (client.Status, error) { return c.SetSpeed(ctx, x) })
	cmd.Flags().Float64Var(&x, "x", 1, "speed multiplier (0.25 to 3)")
	_ = cmd.MarkFlagRequired("x")
	return cmd
}

func createLoadCommand(flags *RemoteFlags) *cobra.Command {
	var file, remoteFile string
	cmd := remoteStatusCommand("load", "Load a timeline into the daemon", flags,
		func(ctx context.Context, c *client.Client) (client.Status, error) {
			switch {
			case file != "" && remoteFile != "":
				return client.Status{}, fmt.Errorf("only one of --file, --remote-file may be given")
			case remoteFile != "":
				return c.LoadFile(ctx, remoteFile)
			case file != "":
				doc, err := timeline.ReadDocument(file)
				if err != nil {
					return client.Status{}, err
				}
				b, err := json.Marshal(doc)
				if err != nil {
					return client.Status{}, err
				}
				return c.Load(ctx, b)
			}
			return client.Status{}, fmt.Errorf("one of --file, --remote-file is required")
		})
	cmd.Flags().StringVar(&file, "file", "", "local timeline file (JSON, TOML or YAML), uploaded to the daemon")
	cmd.Flags().StringVar(&remoteFile, "remote-file", "", "absolute path of a timeline file on the daemon host")
	return cmd
}

func createWatchCommand(flags *RemoteFlags) *cobra.Command {
	var kinds []string
	var progress, raw bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream events from the daemon",
		Long: `Print events published by the daemon's scheduler until interrupted.

Examples:
  routeplay watch
  routeplay watch --kind=line-start --kind=ripple
  routeplay watch --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd.OutOrStdout(), newAPIClient(flags), kinds, progress, raw)
		},
	}
	addRemoteFlags(cmd, flags)
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only these event kinds (repeatable)")
	cmd.Flags().BoolVar(&progress, "progress", false, "include line-progress events")
	cmd.Flags().BoolVar(&raw, "json", false, "print raw JSON payloads")
	return cmd
}

func runWatch(ctx context.Context, out io.Writer, c *client.Client, kinds []string, progress, raw bool) error {
	return c.Events(ctx, kinds, func(se client.StreamEvent) bool {
		if se.Event == "keepalive" || se.Event == "status" {
			return true
		}
		if se.Event == string(timeline.KindLineProgress) && !progress && len(kinds) == 0 {
			return true
		}
		if raw {
			_, _ = fmt.Fprintln(out, strings.TrimSpace(string(se.Data)))
			return true
		}
		var ev timeline.Event
		if err := json.Unmarshal(se.Data, &ev); err != nil {
			_, _ = fmt.Fprintf(out, "%s %s\n", se.Event, se.Data)
			return true
		}
		_, _ = fmt.Fprintln(out, formatEvent(ev))
		return true
	})
}

func createHistoryCommand(flags *RemoteFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent playback history recorded by the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			evs, err := newAPIClient(flags).History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), evs)
			return nil
		},
	}
	addRemoteFlags(cmd, flags)
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	return cmd
}

func createTokenCommand(globalFlags *GlobalFlags, flags *TokenFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Long: `Sign an HS256 token for a daemon started with [server].jwt_secret.
The secret comes from --secret or the config given with --config.

Examples:
  routeplay token --secret=changeme --ttl=24h
  routeplay token --config=config.toml --subject=ci`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := tokenSecret(globalFlags, flags)
			if err != nil {
				return err
			}
			tok, err := server.IssueToken([]byte(secret), flags.Subject, flags.TTL)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.Secret, "secret", "", "HS256 signing secret")
	cmd.Flags().StringVar(&flags.Subject, "subject", "routeplay-cli", "token subject")
	cmd.Flags().DurationVar(&flags.TTL, "ttl", 24*time.Hour, "token lifetime (0 = no expiry)")
	return cmd
}
