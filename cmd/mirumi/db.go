package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/mirumi/internal/config"
	"github.com/stellarlinkco/mirumi/internal/gateway"
	"github.com/stellarlinkco/mirumi/internal/store"
)

func newInitCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a datastore and make it current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.datastore(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			st, err := d.InitDB(cmd.Context(), path)
			if err != nil {
				return err
			}
			return a.emit(st, dbStatusText(st))
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Database file (default ~/.mirumi/storage/mirumi.db)")
	return cmd
}

func newLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <path>",
		Short: "Switch to an existing datastore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.datastore(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			st, err := d.LoadDB(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(st, dbStatusText(st))
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the current datastore (the file is kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.datastore(cmd.Context())
			if err != nil {
				return err
			}
			if err := d.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the datastore and config status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.datastore(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			st, err := d.Status(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(st, dbStatusText(st))
		},
	}
}

func dbStatusText(st gateway.DBStatus) func(io.Writer) error {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "Config: %s\n", config.ConfigPath())
		fmt.Fprintf(w, "Datastore: %s\n", st.Path)
		if !st.Configured {
			fmt.Fprintln(w, "Status: not configured (run 'mirumi init')")
			return nil
		}
		if !st.Exists {
			fmt.Fprintln(w, "Status: file missing")
			return nil
		}
		fmt.Fprintf(w, "Size: %d bytes\n", st.SizeBytes)
		fmt.Fprintf(w, "Tables: %d\n", len(st.Tables))
		return nil
	}
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List datastore tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				tables, err := s.Tables(cmd.Context())
				if err != nil {
					return err
				}
				return a.emit(tables, nil)
			})
		},
	}
}

func newTableCmd(a *app) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "table <name>",
		Short: "Browse the rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				rows, err := s.BrowseTable(cmd.Context(), args[0], limit, offset)
				if err != nil {
					return err
				}
				return a.emit(rows, nil)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", config.DefaultBrowseLimit, "Maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func newSettingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Read and write datastore settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd.Context(), func(s *store.Store) error {
					value, ok, err := s.Setting(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if !ok {
						return store.NotFoundf("setting %s", args[0])
					}
					return a.emit(map[string]string{"key": args[0], "value": value}, func(w io.Writer) error {
						_, err := fmt.Fprintln(w, value)
						return err
					})
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store a setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd.Context(), func(s *store.Store) error {
					return s.SetSetting(cmd.Context(), args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List all settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd.Context(), func(s *store.Store) error {
					settings, err := s.Settings(cmd.Context())
					if err != nil {
						return err
					}
					return a.emit(settings, nil)
				})
			},
		},
	)
	return cmd
}
