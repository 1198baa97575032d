package timer

import (
	"log"
	"sync"

	"github.com/stellarlinkco/mirumi/internal/bus"
)

// Display is the passive surface showing the countdown, such as a tray title.
type Display interface {
	SetTitle(title string) error
}

// State is a copy of the countdown.
type State struct {
	Remaining int    `json:"remainingSeconds"`
	Label     string `json:"label"`
	Running   bool   `json:"running"`
}

type Options struct {
	IdleTitle     string
	LabelMaxChars int
	Bus           *bus.Bus
}

// Coordinator owns the single countdown. Every operation mutates the state
// under mu and then pushes the resulting title outside the lock. Pushes carry
// a sequence number so a late push never replaces a newer title.
type Coordinator struct {
	mu    sync.Mutex
	state State
	seq   uint64
	gen   uint64

	pushMu  sync.Mutex
	pushed  uint64
	display Display

	bus      *bus.Bus
	idle     string
	maxChars int
}

func New(display Display, opts Options) *Coordinator {
	if opts.IdleTitle == "" {
		opts.IdleTitle = DefaultIdleTitle
	}
	if opts.LabelMaxChars <= 0 {
		opts.LabelMaxChars = DefaultLabelMaxChars
	}
	return &Coordinator{
		display:  display,
		bus:      opts.Bus,
		idle:     opts.IdleTitle,
		maxChars: opts.LabelMaxChars,
	}
}

type push struct {
	seq   uint64
	title string
}

// Start sets the countdown running from remaining seconds. It returns the
// generation of the new countdown; the KindTimerEnded event it may raise
// carries the same number.
func (c *Coordinator) Start(remaining int, label string) uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = State{Remaining: max(remaining, 0), Label: label, Running: true}
	p := c.nextLocked(c.titleLocked())
	c.mu.Unlock()
	c.push(p)
	return gen
}

// Update retargets the countdown without an intervening stop.
func (c *Coordinator) Update(remaining int, label string) uint64 {
	return c.Start(remaining, label)
}

// Stop halts the countdown and returns the seconds left. With resetLabel the
// display goes idle; otherwise it keeps the paused label and time.
func (c *Coordinator) Stop(resetLabel bool) int {
	c.mu.Lock()
	c.state.Running = false
	remaining := c.state.Remaining
	title := c.titleLocked()
	if resetLabel {
		c.state.Label = ""
		title = c.idle
	}
	p := c.nextLocked(title)
	c.mu.Unlock()
	c.push(p)
	return remaining
}

// Sync overwrites the remaining seconds, pushing only while running.
func (c *Coordinator) Sync(remaining int) {
	c.mu.Lock()
	c.state.Remaining = max(remaining, 0)
	if !c.state.Running {
		c.mu.Unlock()
		return
	}
	p := c.nextLocked(c.titleLocked())
	c.mu.Unlock()
	c.push(p)
}

func (c *Coordinator) Query() (remaining int, running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Remaining, c.state.Running
}

func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tick advances a running countdown by one second. Reaching zero stops it,
// shows the idle title and publishes exactly one KindTimerEnded event.
func (c *Coordinator) Tick() {
	c.mu.Lock()
	if !c.state.Running || c.state.Remaining <= 0 {
		c.mu.Unlock()
		return
	}
	c.state.Remaining--
	ended := c.state.Remaining == 0
	title := c.titleLocked()
	if ended {
		c.state.Running = false
		title = c.idle
	}
	label, gen := c.state.Label, c.gen
	p := c.nextLocked(title)
	c.mu.Unlock()

	c.push(p)
	if ended {
		log.Printf("[timer] %q finished", label)
		c.bus.Publish(bus.Event{Kind: bus.KindTimerEnded, Label: label, Generation: gen})
	}
}

func (c *Coordinator) titleLocked() string {
	return FormatTitle(c.state.Label, c.state.Remaining, c.maxChars)
}

func (c *Coordinator) nextLocked(title string) push {
	c.seq++
	return push{seq: c.seq, title: title}
}

func (c *Coordinator) push(p push) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	if p.seq <= c.pushed || c.display == nil {
		return
	}
	c.pushed = p.seq
	if err := c.display.SetTitle(p.title); err != nil {
		log.Printf("[timer] display update failed: %v", err)
	}
}
