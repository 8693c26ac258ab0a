package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	subscriptionsvc "github.com/posterwatch/posterwatch/internal/app/services/subscription"
	watchsvc "github.com/posterwatch/posterwatch/internal/app/services/watch"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

// Bot routes incoming webhook updates to command handlers and replies
// through the sender.
type Bot struct {
	sender  Sender
	watches *watchsvc.Service
	subs    *subscriptionsvc.Service
	log     *logger.Logger
}

// NewBot constructs the command router.
func NewBot(sender Sender, watches *watchsvc.Service, subs *subscriptionsvc.Service, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.NewDefault("bot")
	}
	return &Bot{sender: sender, watches: watches, subs: subs, log: log}
}

// HandleUpdate dispatches one update. Non-command messages are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update Update) error {
	if update.Message == nil {
		return nil
	}
	msg := update.Message

	command, arg := splitCommand(msg.Text)
	if command == "" {
		return nil
	}

	b.log.WithField("command", command).WithField("chat_id", msg.Chat.ID).Debug("handling command")

	var reply string
	switch command {
	case "/start":
		reply = b.cmdStart(ctx, msg)
	case "/stop":
		reply = b.cmdStop(ctx, msg)
	case "/add_handle":
		reply = b.cmdAddHandle(ctx, arg)
	case "/remove_handle":
		reply = b.cmdRemoveHandle(ctx, arg)
	case "/list_handles":
		reply = b.cmdListHandles(ctx)
	case "/status":
		reply = b.cmdStatus(ctx)
	default:
		return nil
	}

	return b.sender.SendMessage(ctx, msg.Chat.ID, reply)
}

// splitCommand extracts the command and its first argument from a message.
// A "@botname" suffix on the command is stripped, as Telegram appends it in
// group chats.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	fields := strings.Fields(text)
	command := fields[0]
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	return strings.ToLower(command), arg
}

func (b *Bot) cmdStart(ctx context.Context, msg *Message) string {
	if _, err := b.subs.Subscribe(ctx, msg.Chat.ID); err != nil {
		b.log.WithError(err).Warn("subscribe failed")
		return "❌ Something went wrong, try again."
	}
	return fmt.Sprintf("✅ Hello %s! You are now subscribed.", html.EscapeString(msg.From.DisplayName()))
}

func (b *Bot) cmdStop(ctx context.Context, msg *Message) string {
	if err := b.subs.Unsubscribe(ctx, msg.Chat.ID); err != nil {
		b.log.WithError(err).Warn("unsubscribe failed")
		return "❌ Something went wrong, try again."
	}
	return "✅ You are unsubscribed. Send /start to subscribe again."
}

func (b *Bot) cmdAddHandle(ctx context.Context, arg string) string {
	if arg == "" {
		return "Usage: /add_handle <handle>\nExample: /add_handle solana"
	}
	handle := watchsvc.NormalizeHandle(arg)
	if err := watchsvc.ValidateHandle(handle); err != nil {
		return "Invalid handle."
	}
	if _, err := b.watches.GetWatch(ctx, handle); err == nil {
		return fmt.Sprintf("✅ '@%s' is already being monitored.", handle)
	}
	if _, err := b.watches.AddWatch(ctx, handle, ""); err != nil {
		b.log.WithField("handle", handle).WithError(err).Warn("add watch failed")
		return fmt.Sprintf("❌ Could not find a page for '@%s'.", handle)
	}
	return fmt.Sprintf("✅ Added '@%s' to the monitor list.", handle)
}

func (b *Bot) cmdRemoveHandle(ctx context.Context, arg string) string {
	if arg == "" {
		return "Usage: /remove_handle <handle>"
	}
	handle := watchsvc.NormalizeHandle(arg)
	if err := b.watches.RemoveWatch(ctx, handle); err != nil {
		return fmt.Sprintf("'@%s' is not being monitored.", handle)
	}
	return fmt.Sprintf("✅ Removed '@%s' from the monitor list.", handle)
}

func (b *Bot) cmdListHandles(ctx context.Context) string {
	watches, err := b.watches.ListWatches(ctx)
	if err != nil {
		b.log.WithError(err).Warn("list watches failed")
		return "❌ Something went wrong, try again."
	}
	if len(watches) == 0 {
		return "Not monitoring any handles yet."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Monitored Handles (%d):</b>\n\n", len(watches))
	for _, w := range watches {
		fmt.Fprintf(&sb, "• @%s\n", w.Handle)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) cmdStatus(ctx context.Context) string {
	status, err := b.watches.Status(ctx)
	if err != nil {
		b.log.WithError(err).Warn("status failed")
		return "❌ Something went wrong, try again."
	}
	return fmt.Sprintf(
		"<b>Bot Status</b>\n\n🔍 <b>Handles Monitored:</b> %d\n👥 <b>Subscribers:</b> %d\n📝 <b>Total Posters Seen:</b> %d",
		status.Watches, status.Subscribers, status.TotalSightings,
	)
}
