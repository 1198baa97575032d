package gateway

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/stellarlinkco/mirumi/internal/bus"
	"github.com/stellarlinkco/mirumi/internal/channel"
	"github.com/stellarlinkco/mirumi/internal/store"
	"github.com/stellarlinkco/mirumi/internal/task"
	"github.com/stellarlinkco/mirumi/internal/timer"
)

// Runner ties the countdown to at most one running task. Starting a task
// opens a session and starts the timer; pausing, completing or the timer
// running out closes the session and books the elapsed seconds.
type Runner struct {
	data  *Datastore
	timer *timer.Coordinator

	mu     sync.Mutex
	active *activeRun
}

type activeRun struct {
	taskID         string
	runID          string
	startRemaining int

	// gen is the countdown generation the run owns.
	gen uint64
}

func NewRunner(data *Datastore, t *timer.Coordinator) *Runner {
	return &Runner{data: data, timer: t}
}

// Active returns the running task id, or "" when none.
func (r *Runner) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ""
	}
	return r.active.taskID
}

// StartTask runs id from its paused snapshot, or from its expected duration.
// A different running task is paused first; one whose countdown already ran
// out is closed as a timeout.
func (r *Runner) StartTask(ctx context.Context, id string) (timer.State, error) {
	engine, err := r.data.Tasks()
	if err != nil {
		return timer.State{}, err
	}
	sessions, err := r.data.Sessions()
	if err != nil {
		return timer.State{}, err
	}
	t, err := engine.Get(ctx, id)
	if err != nil {
		return timer.State{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && r.active.taskID == id {
		if _, running := r.timer.Query(); running {
			return r.timer.Snapshot(), nil
		}
	}

	switching := r.active != nil
	if switching {
		sameTask := r.active.taskID == id
		if err := r.endActiveLocked(ctx); err != nil {
			log.Printf("[gateway] close previous run: %v", err)
		}
		if sameTask {
			if t, err = engine.Get(ctx, id); err != nil {
				return r.timer.Snapshot(), err
			}
		}
	}

	remaining := t.ExpectedSeconds()
	if t.RemainingTimeSeconds != nil && *t.RemainingTimeSeconds > 0 {
		remaining = int(*t.RemainingTimeSeconds)
	}

	if err := engine.Start(ctx, id); err != nil {
		if !errors.Is(err, task.ErrAuditIncomplete) {
			return r.timer.Snapshot(), err
		}
		log.Printf("[gateway] start %s: %v", id, err)
	}
	runID, err := sessions.StartSession(ctx, id)
	if err != nil {
		return r.timer.Snapshot(), err
	}
	run := &activeRun{taskID: id, runID: runID, startRemaining: remaining}
	if switching {
		run.gen = r.timer.Update(remaining, t.Title)
	} else {
		run.gen = r.timer.Start(remaining, t.Title)
	}
	r.active = run
	log.Printf("[gateway] task %s started with %ds", id, remaining)
	return r.timer.Snapshot(), nil
}

// PauseTask stops the timer and keeps the remaining seconds on the task.
func (r *Runner) PauseTask(ctx context.Context, id string) (timer.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.taskID != id {
		return r.timer.Snapshot(), store.Invalidf("task %s is not running", id)
	}
	remaining := r.timer.Stop(false)
	err := r.closeLocked(ctx, task.EndPaused, remaining)
	return r.timer.Snapshot(), err
}

// CompleteTask finishes id. When it is the running task the session is
// closed and the display goes idle.
func (r *Runner) CompleteTask(ctx context.Context, id string) (timer.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil && r.active.taskID == id {
		remaining := r.timer.Stop(true)
		err := r.closeLocked(ctx, task.EndCompleted, remaining)
		return r.timer.Snapshot(), err
	}
	engine, err := r.data.Tasks()
	if err != nil {
		return r.timer.Snapshot(), err
	}
	return r.timer.Snapshot(), engine.Complete(ctx, id, 0)
}

// Shutdown pauses the running task so no session is left open.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}
	remaining := r.timer.Stop(false)
	return r.closeLocked(ctx, task.EndPaused, remaining)
}

// onTimerEnded closes the running session as a timeout. Events from a
// countdown the run does not own are ignored.
func (r *Runner) onTimerEnded(ev bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.gen != ev.Generation {
		return
	}
	if err := r.closeLocked(context.Background(), task.EndTimeout, 0); err != nil {
		log.Printf("[gateway] record timeout: %v", err)
	}
}

// endActiveLocked closes the active run before the countdown is taken over.
// A countdown that already reached zero is booked as a timeout even when its
// ended event has not been handled yet.
func (r *Runner) endActiveLocked(ctx context.Context) error {
	remaining, running := r.timer.Query()
	end := task.EndPaused
	if !running && remaining == 0 {
		end = task.EndTimeout
	}
	return r.closeLocked(ctx, end, remaining)
}

// StartCountdown runs a free countdown that belongs to no task. A running
// task is paused first so its session does not outlive its countdown.
func (r *Runner) StartCountdown(ctx context.Context, remaining int, label string, update bool) (timer.State, error) {
	if remaining < 0 {
		return r.timer.Snapshot(), store.Invalidf("remainingSeconds must be >= 0, got %d", remaining)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		if err := r.endActiveLocked(ctx); err != nil {
			log.Printf("[gateway] close run before countdown: %v", err)
		}
	}
	if update {
		r.timer.Update(remaining, label)
	} else {
		r.timer.Start(remaining, label)
	}
	return r.timer.Snapshot(), nil
}

// StopCountdown stops the countdown. A running task is paused with it.
func (r *Runner) StopCountdown(ctx context.Context, resetLabel bool) (timer.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timer.Stop(resetLabel)
	if r.active == nil {
		return r.timer.Snapshot(), nil
	}
	err := r.endActiveLocked(ctx)
	return r.timer.Snapshot(), err
}

// SyncCountdown overwrites the remaining seconds of the current countdown.
func (r *Runner) SyncCountdown(remaining int) (timer.State, error) {
	if remaining < 0 {
		return r.timer.Snapshot(), store.Invalidf("remainingSeconds must be >= 0, got %d", remaining)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timer.Sync(remaining)
	return r.timer.Snapshot(), nil
}

// closeLocked ends the active session and books its elapsed seconds.
func (r *Runner) closeLocked(ctx context.Context, end task.EndType, remaining int) error {
	run := r.active
	r.active = nil
	elapsed := int64(max(run.startRemaining-remaining, 0))

	engine, err := r.data.Tasks()
	if err != nil {
		return err
	}
	sessions, err := r.data.Sessions()
	if err != nil {
		return err
	}

	var errs []error
	if err := sessions.EndSession(ctx, run.runID, end, elapsed); err != nil {
		errs = append(errs, err)
	}
	switch end {
	case task.EndPaused:
		err = engine.Pause(ctx, run.taskID, int64(remaining), elapsed)
	case task.EndCompleted:
		err = engine.Complete(ctx, run.taskID, elapsed)
	default:
		err = engine.Expire(ctx, run.taskID, elapsed)
	}
	if err != nil {
		errs = append(errs, err)
	}
	log.Printf("[gateway] task %s %s after %ds", run.taskID, end, elapsed)
	return errors.Join(errs...)
}

// HandleCommand executes a channel command against the timer or the runner.
func (r *Runner) HandleCommand(ctx context.Context, cmd channel.Command) (channel.Reply, error) {
	var (
		st  timer.State
		err error
	)
	switch cmd.Type {
	case channel.CmdTimerStart, channel.CmdTimerUpdate:
		st, err = r.StartCountdown(ctx, cmd.Remaining, cmd.Label, cmd.Type == channel.CmdTimerUpdate)
	case channel.CmdTimerStop:
		st, err = r.StopCountdown(ctx, cmd.ResetLabel)
	case channel.CmdTimerSync:
		st, err = r.SyncCountdown(cmd.Remaining)
	case channel.CmdTimerQuery:
		st = r.timer.Snapshot()
	case channel.CmdTaskStart:
		st, err = r.StartTask(ctx, cmd.TaskID)
	case channel.CmdTaskPause:
		st, err = r.PauseTask(ctx, cmd.TaskID)
	case channel.CmdTaskComplete:
		st, err = r.CompleteTask(ctx, cmd.TaskID)
	default:
		return channel.Reply{}, store.Invalidf("unknown command %q", cmd.Type)
	}
	if err != nil {
		return channel.Reply{}, err
	}
	return channel.Reply{Remaining: st.Remaining, Label: st.Label, Running: st.Running}, nil
}
