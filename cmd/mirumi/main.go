package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stellarlinkco/mirumi/internal/config"
	"github.com/stellarlinkco/mirumi/internal/gateway"
	"github.com/stellarlinkco/mirumi/internal/store"
	"github.com/stellarlinkco/mirumi/internal/task"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
	outputText = "text"
)

// app carries the output settings shared by every command.
type app struct {
	out    io.Writer
	output string
	// saveConfig persists datastore changes; nil uses config.SaveConfig.
	saveConfig func(*config.Config) error
	// signals is handed to the gateway by serve (for testing)
	signals chan os.Signal
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mirumi",
		Short:         "mirumi - personal task timer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.output {
			case outputJSON, outputYAML, outputText:
				return nil
			}
			return fmt.Errorf("unknown output %q (json, yaml, text)", a.output)
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVarP(&a.output, "output", "o", outputJSON, "Output format: json, yaml or text")

	root.AddCommand(
		newInitCmd(a), newLoadCmd(a), newLogoutCmd(a), newStatusCmd(a),
		newTablesCmd(a), newTableCmd(a), newSettingCmd(a),
		newTaskCmd(a), newTagCmd(a), newMemoCmd(a), newNoteCmd(a),
		newRunCmd(a), newExtendCmd(a), newCountsCmd(a),
		newTimerCmd(a), newServeCmd(a),
	)
	return root
}

func main() {
	a := &app{out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) datastore(ctx context.Context) (*gateway.Datastore, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	d := gateway.NewDatastore(cfg, a.saveConfig)
	if err := d.Open(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// withTasks runs fn against the configured datastore.
func (a *app) withTasks(ctx context.Context, fn func(*task.Engine, *task.SessionRecorder) error) error {
	d, err := a.datastore(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	engine, err := d.Tasks()
	if err != nil {
		return notConfigured(err)
	}
	sessions, err := d.Sessions()
	if err != nil {
		return notConfigured(err)
	}
	return fn(engine, sessions)
}

func (a *app) withStore(ctx context.Context, fn func(*store.Store) error) error {
	d, err := a.datastore(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	s, err := d.Store()
	if err != nil {
		return notConfigured(err)
	}
	return fn(s)
}

func notConfigured(err error) error {
	if errors.Is(err, store.ErrNotConfigured) {
		return fmt.Errorf("%w: run 'mirumi init' or 'mirumi load <path>'", err)
	}
	return err
}

// emit writes v in the selected format. text renders with render when
// given, and falls back to JSON otherwise.
func (a *app) emit(v any, render func(io.Writer) error) error {
	switch a.output {
	case outputYAML:
		return writeYAML(a.out, v)
	case outputText:
		if render != nil {
			return render(a.out)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

// writeYAML goes through JSON first so the camelCase names and raw
// metadata carry over unchanged.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func optional(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}
