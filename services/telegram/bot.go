package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/services"
	"github.com/upb/stockbot/services/assistant"
	"go.uber.org/zap"
)

// Telegram rejects longer messages
const maxMessageRunes = 4096

// Transport is the Bot API surface the bot needs
type Transport interface {
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) (*Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
}

// Assistant is the orchestrator surface the bot needs
type Assistant interface {
	HandleMessage(ctx context.Context, userID, text string) *assistant.Outcome
	HasPending(userID string) bool
	Usage(ctx context.Context, userID string) (*models.Usage, error)
	IsAllowed(ctx context.Context, userID string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	GrantAccess(ctx context.Context, actorID, targetID string) (bool, error)
	RevokeAccess(ctx context.Context, actorID, targetID string) (bool, error)
}

// AliasCatalog is the alias table surface the bot needs
type AliasCatalog interface {
	List() []models.Alias
	Add(ctx context.Context, actorID, name, symbol string) (models.Alias, error)
	Remove(ctx context.Context, actorID, name string) (models.Alias, error)
}

// Bot long-polls Telegram and answers each user's messages in order
type Bot struct {
	api        Transport
	assistant  Assistant
	catalog    AliasCatalog
	queue      *dispatcher
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewBot creates a new Bot. queueSize bounds the backlog per user.
func NewBot(api Transport, svc Assistant, catalog AliasCatalog, queueSize int, logger *zap.Logger) *Bot {
	b := &Bot{
		api:        api,
		assistant:  svc,
		catalog:    catalog,
		retryDelay: 2 * time.Second,
		logger:     logger,
	}
	b.queue = newDispatcher(queueSize, b.handle)
	return b
}

// Run polls until ctx is cancelled, then waits for in-flight turns to
// finish
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram bot polling")
	defer b.queue.wait()

	var offset int64
	for {
		if ctx.Err() != nil {
			b.logger.Info("telegram bot stopping")
			return nil
		}

		updates, err := b.api.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.logger.Warn("failed to fetch updates", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(b.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.dispatch(ctx, u)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	if !b.queue.dispatch(ctx, msg.From.ID, u) {
		b.logger.Warn("user queue full, dropping update",
			zap.Int64("user_id", msg.From.ID),
			zap.Int64("update_id", u.UpdateID))
		b.reply(ctx, msg.Chat.ID, msgBusy)
	}
}

// handle serves one update. A turn that has started runs to completion
// even when polling stops.
func (b *Bot) handle(ctx context.Context, u Update) {
	ctx = context.WithoutCancel(ctx)
	msg := u.Message
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	allowed, err := b.assistant.IsAllowed(ctx, userID)
	if err != nil {
		b.logger.Error("access check failed", zap.String("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, msgInternal)
		return
	}
	if !allowed {
		b.logger.Info("rejected unauthorized user", zap.String("user_id", userID))
		b.reply(ctx, chatID, msgUnauthorized)
		return
	}

	if strings.HasPrefix(text, "/") {
		b.command(ctx, userID, chatID, text)
		return
	}

	// an affirmative with nothing pending falls through and is answered
	// with the no-pending message
	if assistant.IsAffirmative(text) && b.assistant.HasPending(userID) {
		b.execute(ctx, userID, chatID, text)
		return
	}

	out := b.assistant.HandleMessage(ctx, userID, text)
	b.reply(ctx, chatID, formatOutcome(out))
}

// execute shows a placeholder while the completion runs and then replaces
// it with the answer
func (b *Bot) execute(ctx context.Context, userID string, chatID int64, text string) {
	placeholder, err := b.api.SendMessage(ctx, chatID, msgProcessing)
	if err != nil {
		b.logger.Warn("failed to send placeholder", zap.String("user_id", userID), zap.Error(err))
	}

	out := b.assistant.HandleMessage(ctx, userID, text)
	reply := formatOutcome(out)

	if placeholder != nil {
		err := b.api.EditMessageText(ctx, chatID, placeholder.MessageID, clip(reply))
		if err == nil {
			return
		}
		b.logger.Warn("failed to edit placeholder", zap.String("user_id", userID), zap.Error(err))
	}
	b.reply(ctx, chatID, reply)
}

func (b *Bot) command(ctx context.Context, userID string, chatID int64, text string) {
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	args := fields[1:]

	switch name {
	case "/start":
		b.reply(ctx, chatID, msgStart)
	case "/help":
		b.reply(ctx, chatID, b.help(ctx, userID))
	case "/usage":
		usage, err := b.assistant.Usage(ctx, userID)
		if err != nil {
			b.logger.Error("failed to read usage", zap.String("user_id", userID), zap.Error(err))
			b.reply(ctx, chatID, formatFailure(err))
			return
		}
		b.reply(ctx, chatID, formatUsage(usage))
	case "/stocks":
		b.reply(ctx, chatID, formatStocks(b.catalog.List()))
	case "/addstock":
		b.reply(ctx, chatID, b.addStock(ctx, userID, args))
	case "/removestock":
		b.reply(ctx, chatID, b.removeStock(ctx, userID, args))
	case "/admin":
		b.reply(ctx, chatID, b.admin(ctx, userID, args))
	default:
		b.reply(ctx, chatID, "פקודה לא מוכרת. נסה /help")
	}
}

func (b *Bot) help(ctx context.Context, userID string) string {
	admin, err := b.assistant.IsAdmin(ctx, userID)
	if err != nil {
		b.logger.Warn("admin check failed", zap.String("user_id", userID), zap.Error(err))
	}
	if admin {
		return msgHelp + msgHelpAdmin
	}
	return msgHelp
}

func (b *Bot) addStock(ctx context.Context, userID string, args []string) string {
	if len(args) < 2 {
		return msgAddStockUsage
	}
	name := strings.Join(args[:len(args)-1], " ")
	symbol := args[len(args)-1]

	alias, err := b.catalog.Add(ctx, userID, name, symbol)
	if err != nil {
		return b.catalogFailure("add", userID, err)
	}
	return formatStockAdded(alias)
}

func (b *Bot) removeStock(ctx context.Context, userID string, args []string) string {
	if len(args) == 0 {
		return msgRemoveStockUsage
	}
	alias, err := b.catalog.Remove(ctx, userID, strings.Join(args, " "))
	if err != nil {
		return b.catalogFailure("remove", userID, err)
	}
	return formatStockRemoved(alias)
}

func (b *Bot) catalogFailure(op, userID string, err error) string {
	switch {
	case services.IsForbiddenError(err):
		return msgAdminOnly
	case services.IsValidationError(err):
		return msgSymbolInvalid
	case services.IsNotFoundError(err):
		return msgStockMissing
	case services.IsExternalError(err):
		return "לא ניתן לאמת את סימול המניה כרגע. אנא נסה שוב מאוחר יותר."
	}
	b.logger.Error("alias edit failed", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
	return msgInternal
}

func (b *Bot) admin(ctx context.Context, userID string, args []string) string {
	if len(args) < 2 {
		return msgAdminUsage
	}
	action, target := strings.ToLower(args[0]), args[1]

	var (
		changed bool
		err     error
	)
	switch action {
	case "add":
		changed, err = b.assistant.GrantAccess(ctx, userID, target)
	case "remove":
		changed, err = b.assistant.RevokeAccess(ctx, userID, target)
	default:
		return fmt.Sprintf("הפקודה %s עדיין לא נתמכת.", action)
	}

	switch {
	case services.IsForbiddenError(err):
		return msgAdminOnly
	case services.IsConflictError(err):
		return fmt.Sprintf("לא ניתן להסיר את המנהל %s.", target)
	case err != nil:
		b.logger.Error("access change failed", zap.String("actor_id", userID), zap.String("target_id", target), zap.Error(err))
		return msgInternal
	}

	if action == "add" {
		if changed {
			return fmt.Sprintf("המשתמש %s הוסף בהצלחה.", target)
		}
		return fmt.Sprintf("המשתמש %s כבר קיים ברשימת המשתמשים.", target)
	}
	if changed {
		return fmt.Sprintf("המשתמש %s הוסר בהצלחה.", target)
	}
	return fmt.Sprintf("המשתמש %s לא נמצא ברשימת המשתמשים.", target)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, chatID, clip(text)); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// clip cuts text to what a single message can carry
func clip(text string) string {
	if utf8.RuneCountInString(text) <= maxMessageRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxMessageRunes-3]) + "..."
}
