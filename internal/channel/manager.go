package channel

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/stellarlinkco/mirumi/internal/bus"
	"github.com/stellarlinkco/mirumi/internal/config"
	"github.com/stellarlinkco/mirumi/internal/timer"
)

type ChannelManager struct {
	channels map[string]Channel
	webui    *WebUIChannel
	telegram *TelegramChannel
	unsubs   []func()
}

func NewChannelManager(cfg config.ChannelsConfig, b *bus.Bus) (*ChannelManager, error) {
	return NewChannelManagerWithFactory(cfg, b, defaultBotFactory)
}

// NewChannelManagerWithFactory builds the telegram channel with factory (for testing)
func NewChannelManagerWithFactory(cfg config.ChannelsConfig, b *bus.Bus, factory BotFactory) (*ChannelManager, error) {
	m := &ChannelManager{
		channels: make(map[string]Channel),
	}

	if cfg.WebUI.Enabled {
		ch, err := NewWebUIChannel(cfg.WebUI)
		if err != nil {
			return nil, fmt.Errorf("init webui channel: %w", err)
		}
		m.webui = ch
		m.channels[ch.Name()] = ch
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannelWithFactory(cfg.Telegram, factory)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.telegram = ch
		m.channels[ch.Name()] = ch
		if b != nil {
			m.unsubs = append(m.unsubs, b.Subscribe(bus.KindTimerEnded, func(ev bus.Event) {
				go func() {
					if err := ch.NotifyEnded(ev.Label); err != nil {
						log.Printf("[channel-mgr] notify %s failed: %v", ch.Name(), err)
					}
				}()
			}))
		}
	}

	return m, nil
}

func (m *ChannelManager) WebUI() *WebUIChannel {
	return m.webui
}

func (m *ChannelManager) Telegram() *TelegramChannel {
	return m.telegram
}

// Display is the timer surface, nil when the web UI is disabled.
func (m *ChannelManager) Display() timer.Display {
	if m.webui == nil {
		return nil
	}
	return m.webui
}

// SetController attaches c to every channel that accepts commands.
func (m *ChannelManager) SetController(c Controller) {
	if m.webui != nil {
		m.webui.SetController(c)
	}
	if m.telegram != nil {
		m.telegram.SetController(c)
	}
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(m.channels))

	for name, ch := range m.channels {
		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()
			log.Printf("[channel-mgr] starting %s", name)
			if err := ch.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}(name, ch)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

func (m *ChannelManager) StopAll() error {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
	for name, ch := range m.channels {
		log.Printf("[channel-mgr] stopping %s", name)
		if err := ch.Stop(); err != nil {
			log.Printf("[channel-mgr] error stopping %s: %v", name, err)
		}
	}
	return nil
}

func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
