package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/mirumi/internal/channel"
	"github.com/stellarlinkco/mirumi/internal/config"
	"github.com/stellarlinkco/mirumi/internal/gateway"
	"github.com/stellarlinkco/mirumi/internal/timer"
)

const sendTimeout = 10 * time.Second

// dialError marks a daemon that could not be reached at all.
type dialError struct{ err error }

func (e *dialError) Error() string {
	return fmt.Sprintf("%v (is 'mirumi serve' running?)", e.err)
}

func (e *dialError) Unwrap() error { return e.err }

func isDialError(err error) bool {
	var de *dialError
	return errors.As(err, &de)
}

// send delivers one command to the daemon's websocket channel.
func (a *app) send(ctx context.Context, cmd channel.Command) (channel.Reply, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return channel.Reply{}, fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	client, err := channel.Dial(ctx, cfg.Channels.WebUI.Addr())
	if err != nil {
		return channel.Reply{}, &dialError{err: err}
	}
	defer client.Close()
	return client.Do(ctx, cmd)
}

func stateText(r channel.Reply) func(io.Writer) error {
	return func(w io.Writer) error {
		state := "idle"
		if r.Running {
			state = "running"
		}
		line := fmt.Sprintf("%s %s", state, timer.FormatClock(r.Remaining))
		if r.Label != "" {
			line += " " + r.Label
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}
}

func newTimerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Drive the daemon's countdown directly",
	}

	var (
		minutes int
		seconds int
		label   string
	)
	remaining := func() int { return minutes*60 + seconds }

	start := &cobra.Command{
		Use:   "start",
		Short: "Start a countdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.timerCommand(cmd, channel.Command{Type: channel.CmdTimerStart, Remaining: remaining(), Label: label})
		},
	}
	update := &cobra.Command{
		Use:   "update",
		Short: "Replace the running countdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.timerCommand(cmd, channel.Command{Type: channel.CmdTimerUpdate, Remaining: remaining(), Label: label})
		},
	}
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Overwrite the remaining seconds without changing state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.timerCommand(cmd, channel.Command{Type: channel.CmdTimerSync, Remaining: remaining()})
		},
	}
	for _, c := range []*cobra.Command{start, update, sync} {
		c.Flags().IntVarP(&minutes, "minutes", "m", config.DefaultTimerMinutes, "Minutes")
		c.Flags().IntVarP(&seconds, "seconds", "s", 0, "Extra seconds")
	}
	start.Flags().StringVarP(&label, "label", "l", "", "Label shown next to the clock")
	update.Flags().StringVarP(&label, "label", "l", "", "Label shown next to the clock")

	var reset bool
	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the countdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.timerCommand(cmd, channel.Command{Type: channel.CmdTimerStop, ResetLabel: reset})
		},
	}
	stop.Flags().BoolVar(&reset, "reset", false, "Show the idle title instead of the frozen clock")

	query := &cobra.Command{
		Use:   "query",
		Short: "Print the remaining seconds and whether the countdown runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.timerCommand(cmd, channel.Command{Type: channel.CmdTimerQuery})
		},
	}

	cmd.AddCommand(start, update, stop, sync, query)
	return cmd
}

func (a *app) timerCommand(cmd *cobra.Command, c channel.Command) error {
	reply, err := a.send(cmd.Context(), c)
	if err != nil {
		return err
	}
	return a.emit(reply, stateText(reply))
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the timer daemon with its display channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gw, err := gateway.NewWithOptions(cfg, gateway.Options{
				SignalChan: a.signals,
				SaveConfig: a.saveConfig,
			})
			if err != nil {
				return fmt.Errorf("create gateway: %w", err)
			}
			return gw.Run(cmd.Context())
		},
	}
}
