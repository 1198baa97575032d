package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/stellarlinkco/mirumi/internal/bus"
	"github.com/stellarlinkco/mirumi/internal/channel"
	"github.com/stellarlinkco/mirumi/internal/config"
	"github.com/stellarlinkco/mirumi/internal/cron"
	"github.com/stellarlinkco/mirumi/internal/task"
	"github.com/stellarlinkco/mirumi/internal/timer"
)

const tickJobName = "timer-tick"

// Options for creating a Gateway
type Options struct {
	SignalChan  chan os.Signal // for testing signal handling
	SaveConfig  func(*config.Config) error
	TaskOptions []task.Option
	BotFactory  channel.BotFactory
}

// Gateway is the daemon: the datastore, the countdown with its 1 s tick,
// and the channels that display and drive it.
type Gateway struct {
	cfg        *config.Config
	bus        *bus.Bus
	data       *Datastore
	timer      *timer.Coordinator
	runner     *Runner
	channels   *channel.ChannelManager
	cron       *cron.Service
	unsub      func()
	signalChan chan os.Signal
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, signalChan: opts.SignalChan}
	g.bus = bus.New()

	g.data = NewDatastore(cfg, opts.SaveConfig, opts.TaskOptions...)
	if err := g.data.Open(context.Background()); err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}

	var (
		chMgr *channel.ChannelManager
		err   error
	)
	if opts.BotFactory != nil {
		chMgr, err = channel.NewChannelManagerWithFactory(cfg.Channels, g.bus, opts.BotFactory)
	} else {
		chMgr, err = channel.NewChannelManager(cfg.Channels, g.bus)
	}
	if err != nil {
		_ = g.data.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	g.timer = timer.New(chMgr.Display(), timer.Options{
		IdleTitle:     cfg.Timer.IdleTitle,
		LabelMaxChars: cfg.Timer.LabelMaxChars,
		Bus:           g.bus,
	})
	// Seed the idle title; the web UI replays it to clients as they connect.
	g.timer.Stop(true)
	g.runner = NewRunner(g.data, g.timer)
	chMgr.SetController(g.runner)
	g.unsub = g.bus.Subscribe(bus.KindTimerEnded, g.runner.onTimerEnded)

	schedule := cfg.Timer.TickSchedule
	if schedule == "" {
		schedule = cron.EverySecond
	}
	g.cron = cron.NewService()
	if err := g.cron.AddJob(tickJobName, schedule, g.timer.Tick); err != nil {
		_ = g.data.Close()
		return nil, fmt.Errorf("schedule timer tick: %w", err)
	}
	return g, nil
}

func (g *Gateway) Datastore() *Datastore { return g.data }
func (g *Gateway) Runner() *Runner { return g.runner }
func (g *Gateway) Timer() *timer.Coordinator { return g.timer }
func (g *Gateway) Channels() *channel.ChannelManager { return g.channels }
func (g *Gateway) Bus() *bus.Bus { return g.bus }

// Run starts the channels and the tick, then blocks until a signal arrives
// or ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := g.channels.StartAll(ctx); err != nil {
		_ = g.Shutdown()
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		_ = g.Shutdown()
		return fmt.Errorf("start tick: %w", err)
	}

	if ui := g.channels.WebUI(); ui != nil {
		log.Printf("[gateway] running on %s", ui.Addr())
	} else {
		log.Printf("[gateway] running without display")
	}

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	if err := g.runner.Shutdown(context.Background()); err != nil {
		log.Printf("[gateway] pause running task warning: %v", err)
	}
	if g.unsub != nil {
		g.unsub()
	}
	_ = g.channels.StopAll()
	if err := g.data.Close(); err != nil {
		log.Printf("[gateway] close datastore warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}
