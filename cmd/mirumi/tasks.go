package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/mirumi/internal/channel"
	"github.com/stellarlinkco/mirumi/internal/store"
	"github.com/stellarlinkco/mirumi/internal/task"
)

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, inspect and change tasks",
	}
	cmd.AddCommand(
		newTaskAddCmd(a), newTaskListCmd(a), newTaskShowCmd(a),
		newTaskUpdateCmd(a), newTaskDeleteCmd(a),
		newTaskRunnerCmd(a, "start", "Start the task on the running daemon's timer", channel.CmdTaskStart),
		newTaskRunnerCmd(a, "pause", "Pause the running task", channel.CmdTaskPause),
		newTaskRunnerCmd(a, "complete", "Complete the task", channel.CmdTaskComplete),
		newTaskTransitionCmd(a, "archive", "Archive the task", (*task.Engine).Archive),
		newTaskTransitionCmd(a, "restore", "Move the task back to the inbox", (*task.Engine).Restore),
	)
	return cmd
}

func newTaskAddCmd(a *app) *cobra.Command {
	var (
		desc, url, ref, priority, target string
		minutes                          int64
		important                        bool
		tags                             []string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task to the inbox",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := task.CreateInput{
				Title:       strings.Join(args, " "),
				Description: optional(cmd, "desc", desc),
				URL:         optional(cmd, "url", url),
				ExternalRef: optional(cmd, "ref", ref),
				TargetDate:  optional(cmd, "target", target),
				IsImportant: important,
				Tags:        tags,
			}
			if cmd.Flags().Changed("priority") {
				p, err := task.ParsePriority(priority)
				if err != nil {
					return err
				}
				in.Priority = p
			}
			if cmd.Flags().Changed("minutes") {
				in.ExpectedDuration = &minutes
			}
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				id, err := e.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				t, err := e.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return a.emit(t, renderTask(t))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&desc, "desc", "", "Description")
	f.StringVar(&url, "url", "", "Related link")
	f.StringVar(&ref, "ref", "", "External message reference")
	f.StringVar(&priority, "priority", "", "LOW, MEDIUM or HIGH")
	f.StringVar(&target, "target", "", "Target date (YYYY-MM-DD)")
	f.Int64Var(&minutes, "minutes", task.DefaultExpectedMinutes, "Expected duration in minutes")
	f.BoolVar(&important, "important", false, "Star the task")
	f.StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	return cmd
}

func newTaskListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, starred first then newest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *task.Status
			if status != "" {
				s, err := task.ParseStatus(status)
				if err != nil {
					return err
				}
				filter = &s
			}
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				tasks, err := e.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return a.emit(tasks, renderTaskList(tasks))
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only tasks with this status")
	return cmd
}

func newTaskShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its memos, notes, sessions and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				t, err := e.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emit(t, renderTask(t))
			})
		},
	}
}

// patchFlags maps update flags onto patch fields. Strings go through
// optional so "--desc=" sets an empty value rather than clearing.
func patchFlags(cmd *cobra.Command, p *task.Patch, v *updateValues) error {
	f := cmd.Flags()
	if s := optional(cmd, "title", v.title); s != nil {
		p.Title = task.Set(*s)
	}
	if s := optional(cmd, "desc", v.desc); s != nil {
		p.Description = task.Set(*s)
	}
	if s := optional(cmd, "url", v.url); s != nil {
		p.URL = task.Set(*s)
	}
	if s := optional(cmd, "ref", v.ref); s != nil {
		p.ExternalRef = task.Set(*s)
	}
	if s := optional(cmd, "target", v.target); s != nil {
		p.TargetDate = task.Set(*s)
	}
	if f.Changed("priority") {
		p.Priority = task.Set(task.Priority(v.priority))
	}
	if f.Changed("status") {
		p.Status = task.Set(task.Status(v.status))
	}
	if f.Changed("minutes") {
		p.ExpectedDuration = task.Set(v.minutes)
	}
	if f.Changed("remaining") {
		p.RemainingTimeSeconds = task.Set(v.remaining)
	}
	if f.Changed("spent") {
		p.TotalTimeSpent = task.Set(v.spent)
	}
	if f.Changed("important") {
		p.IsImportant = task.Set(v.important)
	}
	for _, field := range v.clear {
		switch field {
		case "desc", "description":
			p.Description = task.Null[string]()
		case "url":
			p.URL = task.Null[string]()
		case "ref":
			p.ExternalRef = task.Null[string]()
		case "target":
			p.TargetDate = task.Null[string]()
		case "minutes":
			p.ExpectedDuration = task.Null[int64]()
		case "remaining":
			p.RemainingTimeSeconds = task.Null[int64]()
		default:
			return store.Invalidf("cannot clear %q", field)
		}
	}
	return nil
}

type updateValues struct {
	title, desc, url, ref, target, priority, status string
	minutes, remaining, spent                       int64
	important                                       bool
	clear                                           []string
	patch                                           string
}

func newTaskUpdateCmd(a *app) *cobra.Command {
	v := &updateValues{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change task fields; only the given fields are written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p task.Patch
			if v.patch != "" {
				if err := json.Unmarshal([]byte(v.patch), &p); err != nil {
					return store.Invalidf("parse --patch: %v", err)
				}
			}
			if err := patchFlags(cmd, &p, v); err != nil {
				return err
			}
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				if err := e.ApplyUpdate(cmd.Context(), args[0], p); err != nil {
					return err
				}
				t, err := e.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emit(t, renderTask(t))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&v.title, "title", "", "Title")
	f.StringVar(&v.desc, "desc", "", "Description")
	f.StringVar(&v.url, "url", "", "Related link")
	f.StringVar(&v.ref, "ref", "", "External message reference")
	f.StringVar(&v.target, "target", "", "Target date")
	f.StringVar(&v.priority, "priority", "", "LOW, MEDIUM or HIGH")
	f.StringVar(&v.status, "status", "", "INBOX, IN_PROGRESS, PAUSED, COMPLETED or ARCHIVED")
	f.Int64Var(&v.minutes, "minutes", 0, "Expected duration in minutes")
	f.Int64Var(&v.remaining, "remaining", 0, "Paused remaining seconds")
	f.Int64Var(&v.spent, "spent", 0, "Total seconds spent")
	f.BoolVar(&v.important, "important", false, "Star or unstar the task")
	f.StringSliceVar(&v.clear, "clear", nil, "Fields to set to null: desc, url, ref, target, minutes, remaining")
	f.StringVar(&v.patch, "patch", "", `JSON patch, e.g. '{"targetDate":null}'`)
	return cmd
}

func newTaskDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and everything attached to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				if err := e.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newTaskTransitionCmd(a *app, use, short string, fn func(*task.Engine, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				if err := fn(e, cmd.Context(), args[0]); err != nil {
					return err
				}
				t, err := e.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emit(t, renderTask(t))
			})
		},
	}
}

// newTaskRunnerCmd sends a task command to the daemon so the timer and the
// session stay in step. complete falls back to the datastore when no
// daemon is reachable.
func newTaskRunnerCmd(a *app, use, short, cmdType string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := a.send(cmd.Context(), channel.Command{Type: cmdType, TaskID: args[0]})
			if err == nil {
				return a.emit(reply, stateText(reply))
			}
			if cmdType != channel.CmdTaskComplete || !isDialError(err) {
				return err
			}
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				if err := e.Complete(cmd.Context(), args[0], 0); err != nil {
					return err
				}
				t, err := e.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emit(t, renderTask(t))
			})
		},
	}
}

func newTagCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "tag", Short: "Tag tasks"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <taskId> <tag>",
			Short: "Attach a tag",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
					tag, err := e.AddTag(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					return a.emit(map[string]string{"taskId": args[0], "tag": tag}, nil)
				})
			},
		},
		&cobra.Command{
			Use:   "rm <taskId> <tag>",
			Short: "Remove a tag",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
					return e.RemoveTag(cmd.Context(), args[0], args[1])
				})
			},
		},
	)
	return cmd
}

func newMemoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "memo", Short: "Task memos"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <taskId> <content>",
		Short: "Add a memo",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				id, err := e.AddMemo(cmd.Context(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				return a.emit(map[string]string{"id": id}, nil)
			})
		},
	})
	return cmd
}

func newNoteCmd(a *app) *cobra.Command {
	var title, content string
	add := &cobra.Command{
		Use:   "add <taskId>",
		Short: "Add a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				id, err := e.AddNote(cmd.Context(), args[0], title, content)
				if err != nil {
					return err
				}
				return a.emit(map[string]string{"id": id}, nil)
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "Note title")
	add.Flags().StringVar(&content, "content", "", "Note body")

	var editTitle, editContent string
	edit := &cobra.Command{
		Use:   "edit <noteId>",
		Short: "Change a note's title or body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t, c task.Field[string]
			if cmd.Flags().Changed("title") {
				t = task.Set(editTitle)
			}
			if cmd.Flags().Changed("content") {
				c = task.Set(editContent)
			}
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				return e.UpdateNote(cmd.Context(), args[0], t, c)
			})
		},
	}
	edit.Flags().StringVar(&editTitle, "title", "", "Note title")
	edit.Flags().StringVar(&editContent, "content", "", "Note body")

	cmd := &cobra.Command{Use: "note", Short: "Task notes"}
	cmd.AddCommand(add, edit)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	start := &cobra.Command{
		Use:   "start <taskId>",
		Short: "Open a session row without touching the timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(_ *task.Engine, s *task.SessionRecorder) error {
				id, err := s.StartSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emit(map[string]string{"runId": id}, nil)
			})
		},
	}

	var (
		endType  string
		duration int64
	)
	end := &cobra.Command{
		Use:   "end <runId>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(_ *task.Engine, s *task.SessionRecorder) error {
				return s.EndSession(cmd.Context(), args[0], task.ParseEndType(endType), duration)
			})
		},
	}
	end.Flags().StringVar(&endType, "type", string(task.EndCompleted), "completed, paused, timeout or interrupted")
	end.Flags().Int64Var(&duration, "duration", 0, "Session length in seconds")

	cmd := &cobra.Command{Use: "run", Short: "Record sessions by hand"}
	cmd.AddCommand(start, end)
	return cmd
}

func newExtendCmd(a *app) *cobra.Command {
	var (
		added  int64
		reason string
	)
	cmd := &cobra.Command{
		Use:   "extend <taskId>",
		Short: "Add minutes to a task's expected duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(e *task.Engine, s *task.SessionRecorder) error {
				t, err := e.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				prev := int64(t.ExpectedSeconds() / 60)
				id, err := s.ExtendTime(cmd.Context(), task.ExtendInput{
					TaskID:           t.ID,
					AddedMinutes:     added,
					PreviousDuration: prev,
					NewDuration:      prev + added,
					Reason:           optional(cmd, "reason", reason),
				})
				if err != nil {
					return err
				}
				return a.emit(map[string]any{"id": id, "previousDuration": prev, "newDuration": prev + added}, nil)
			})
		},
	}
	cmd.Flags().Int64Var(&added, "add", 5, "Minutes to add (may be negative)")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the task needs more time")
	return cmd
}

func newCountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show sidebar totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd.Context(), func(e *task.Engine, _ *task.SessionRecorder) error {
				c, err := e.Counts(cmd.Context())
				if err != nil {
					return err
				}
				return a.emit(c, renderCounts(c))
			})
		},
	}
}
