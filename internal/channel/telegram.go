package channel

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stellarlinkco/mirumi/internal/config"
	"github.com/stellarlinkco/mirumi/internal/timer"
)

const telegramChannelName = "telegram"

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramChannel notifies a single chat when a countdown ends and answers
// /status and /stop from that chat.
type TelegramChannel struct {
	BaseChannel
	token      string
	chatID     int64
	proxy      string
	botFactory BotFactory
	cancel     context.CancelFunc

	mu         sync.RWMutex
	bot        TelegramBot
	controller Controller
}

func NewTelegramChannel(cfg config.TelegramConfig) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chatId is required")
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, []string{fmt.Sprint(cfg.ChatID)}),
		token:       cfg.Token,
		chatID:      cfg.ChatID,
		proxy:       cfg.Proxy,
		botFactory:  factory,
	}, nil
}

func (t *TelegramChannel) SetController(c Controller) {
	t.mu.Lock()
	t.controller = c
	t.mu.Unlock()
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()
}

func (t *TelegramChannel) getBot() TelegramBot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bot
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.SetBot(bot)
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.getBot().GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil {
					continue
				}
				t.handleMessage(ctx, update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("[telegram] polling started")
	return nil
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !t.IsAllowed(fmt.Sprint(msg.Chat.ID)) {
		return
	}

	var cmd Command
	switch msg.Command() {
	case "status":
		cmd = Command{Type: CmdTimerQuery}
	case "stop":
		cmd = Command{Type: CmdTimerStop}
	default:
		return
	}

	t.mu.RLock()
	ctrl := t.controller
	t.mu.RUnlock()
	if ctrl == nil {
		return
	}

	var text string
	reply, err := ctrl.HandleCommand(ctx, cmd)
	switch {
	case err != nil:
		text = "error: " + err.Error()
	case reply.Running:
		text = fmt.Sprintf("%s **%s** %s", timer.Glyph, labelOr(reply.Label), timer.FormatClock(reply.Remaining))
	default:
		text = fmt.Sprintf("idle, %s left on **%s**", timer.FormatClock(reply.Remaining), labelOr(reply.Label))
	}
	if err := t.Send(text); err != nil {
		log.Printf("[telegram] reply failed: %v", err)
	}
}

func labelOr(label string) string {
	if label == "" {
		return "timer"
	}
	return label
}

// NotifyEnded reports a countdown that reached zero.
func (t *TelegramChannel) NotifyEnded(label string) error {
	if label == "" {
		return t.Send("⏰ Timer finished")
	}
	return t.Send(fmt.Sprintf("⏰ **%s** finished", label))
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if bot := t.getBot(); bot != nil {
		bot.StopReceivingUpdates()
	}
	log.Printf("[telegram] stopped")
	return nil
}

// Send delivers content to the configured chat, retrying as plain text
// when Telegram rejects the HTML.
func (t *TelegramChannel) Send(content string) error {
	bot := t.getBot()
	if bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	tgMsg := tgbotapi.NewMessage(t.chatID, toTelegramHTML(content))
	tgMsg.ParseMode = tgbotapi.ModeHTML
	if _, err := bot.Send(tgMsg); err != nil {
		tgMsg.ParseMode = ""
		tgMsg.Text = content
		if _, err2 := bot.Send(tgMsg); err2 != nil {
			return fmt.Errorf("send telegram message: %w", err2)
		}
	}
	return nil
}

// toTelegramHTML escapes s and turns **bold** spans into <b> tags.
func toTelegramHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	for {
		start := strings.Index(s, "**")
		if start == -1 {
			break
		}
		end := strings.Index(s[start+2:], "**")
		if end == -1 {
			break
		}
		end += start + 2
		s = s[:start] + "<b>" + s[start+2:end] + "</b>" + s[end+2:]
	}
	return s
}
