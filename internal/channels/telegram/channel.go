package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/crosstalk/internal/bus"
	"github.com/nextlevelbuilder/crosstalk/internal/channels"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// Platform is the platform identifier used in room and message ids.
const Platform = "telegram"

// maxMessageLen is Telegram's per-message text limit.
const maxMessageLen = 4096

// Channel connects one agent's Telegram bot via long polling.
type Channel struct {
	*channels.BaseChannel
	bot         *telego.Bot
	displayName string
	chatTitles  map[int64]string // written by the polling goroutine only
	pollCancel  context.CancelFunc
	pollDone    chan struct{}
}

// New creates a Telegram channel for one hosted agent.
func New(agent config.AgentSpec, msgBus *bus.MessageBus, stores *store.Stores, dir *channels.Directory) (*Channel, error) {
	cfg := agent.Telegram
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required for agent %s", agent.ID)
	}

	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel(Platform, agent.ID, msgBus, stores, dir, cfg.AllowFrom),
		bot:         bot,
		displayName: agent.Name,
		chatTitles:  make(map[int64]string),
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)", "agent", c.AgentID())

	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("fetch telegram bot identity: %w", err)
	}
	c.Directory().Register(Platform, strconv.FormatInt(me.ID, 10), c.AgentID())
	c.Directory().RegisterUsername(Platform, me.Username, c.AgentID())

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "agent", c.AgentID(), "username", me.Username, "id", me.ID)

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed", "agent", c.AgentID())
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop shuts down the Telegram bot by cancelling the long polling context
// and waiting for the polling goroutine to exit.
func (c *Channel) Stop(ctx context.Context) error {
	slog.Info("stopping telegram bot", "agent", c.AgentID())
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped", "agent", c.AgentID())
		case <-ctx.Done():
			slog.Warn("telegram polling goroutine did not exit before shutdown deadline", "agent", c.AgentID())
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout", "agent", c.AgentID())
		}
	}
	return nil
}

// Send delivers an outbound message and records it in the room log. Telegram never shows
// a bot's messages to other bots, so the log entry is how the other agents see it.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid telegram chat ID %q: %w", msg.ChatID, err)
	}
	if msg.Content == "" {
		return nil
	}

	replyTo := 0
	if msg.ReplyTo != "" {
		if id, err := strconv.Atoi(msg.ReplyTo); err == nil {
			replyTo = id
		}
	}

	for i, chunk := range channels.SplitMessage(msg.Content, maxMessageLen) {
		params := tu.Message(tu.ID(chatID), chunk)
		if i == 0 && replyTo != 0 {
			params = params.WithReplyParameters(&telego.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true})
		}
		sent, err := c.bot.SendMessage(ctx, params)
		if err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
		sentAt := time.Unix(sent.Date, 0)
		if err := c.RecordSent(ctx, msg.ChatID, chatName(&sent.Chat), strconv.Itoa(sent.MessageID), chunk, c.displayName, sentAt); err != nil {
			slog.Warn("telegram: record sent message failed", "agent", c.AgentID(), "chat_id", msg.ChatID, "error", err)
		}
	}
	return nil
}

// handleMessage converts an update and hands it to the shared ingress.
func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	if isServiceMessage(message) {
		slog.Debug("telegram service message skipped", "agent", c.AgentID(), "chat_id", message.Chat.ID)
		return
	}
	if message.From == nil {
		return
	}
	in := toIncoming(message)
	in.Text = rewriteHandles(in.Text, c.handleName)
	if in.ChatName != "" {
		c.chatTitles[message.Chat.ID] = in.ChatName
	} else {
		in.ChatName = c.chatTitles[message.Chat.ID]
	}

	slog.Debug("telegram message received",
		"agent", c.AgentID(),
		"chat_type", message.Chat.Type,
		"chat_id", message.Chat.ID,
		"user_id", message.From.ID,
		"username", message.From.Username,
		"text_preview", channels.Truncate(in.Text, 60),
	)
	c.HandleMessage(ctx, in)
}

// handleName resolves an @handle to the roster name of the agent behind it.
func (c *Channel) handleName(handle string) (string, bool) {
	agentID, ok := c.Directory().ResolveUsername(Platform, handle)
	if !ok {
		return "", false
	}
	return c.Directory().DisplayName(agentID), true
}

// parseChatID converts a string chat ID to int64.
func parseChatID(chatIDStr string) (int64, error) {
	return strconv.ParseInt(chatIDStr, 10, 64)
}
