// Package telegram is the chat front end: commands, reply-keyboard buttons and
// inline callbacks for managing wallets and plans.
package telegram

import (
	"context"
	"strings"

	tg "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/wallet-watch/internal/logging"
	"github.com/wallet-watch/internal/models"
	"github.com/wallet-watch/internal/notifier"
	"github.com/wallet-watch/internal/service"
)

// API is the part of *tg.Bot the handler calls
type API interface {
	SendMessage(ctx context.Context, params *tg.SendMessageParams) (*tgmodels.Message, error)
	EditMessageText(ctx context.Context, params *tg.EditMessageTextParams) (*tgmodels.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *tg.AnswerCallbackQueryParams) (bool, error)
}

// SessionStore loads and saves the per-chat conversation
type SessionStore interface {
	Load(ctx context.Context, chatID int64) (models.Conversation, error)
	Save(ctx context.Context, conv models.Conversation) error
}

// Handler coordinates Telegram updates with the wallet service
type Handler struct {
	api      API
	wallets  *service.WalletService
	sessions SessionStore
	logger   *logging.Logger
}

// New constructs the Telegram handler
func New(api API, wallets *service.WalletService, sessions SessionStore) *Handler {
	return &Handler{
		api:      api,
		wallets:  wallets,
		sessions: sessions,
		logger:   logging.GetGlobalLogger().WithComponent("telegram"),
	}
}

// Run registers the handler on b and long-polls until ctx is done
func (h *Handler) Run(ctx context.Context, b *tg.Bot) {
	b.RegisterHandler(tg.HandlerTypeMessageText, "", tg.MatchTypePrefix, h.onUpdate)
	b.RegisterHandler(tg.HandlerTypeCallbackQueryData, "", tg.MatchTypePrefix, h.onUpdate)
	h.logger.Info("Telegram handler started")
	b.Start(ctx)
}

func (h *Handler) onUpdate(ctx context.Context, _ *tg.Bot, u *tgmodels.Update) {
	h.HandleUpdate(ctx, u)
}

// HandleUpdate processes one update
func (h *Handler) HandleUpdate(ctx context.Context, u *tgmodels.Update) {
	switch {
	case u == nil:
		return
	case u.CallbackQuery != nil:
		h.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Text != "":
		h.handleMessage(ctx, u.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, m *tgmodels.Message) {
	chatID := m.Chat.ID

	conv, err := h.sessions.Load(ctx, chatID)
	if err != nil {
		h.logger.WithField("chatId", chatID).WithError(err).Warn("Failed to load session, starting idle")
		conv = models.Conversation{}
	}
	conv.ChatID = chatID
	before := conv

	text := strings.TrimSpace(m.Text)
	switch {
	case strings.HasPrefix(text, "/"):
		conv.Reset()
		h.handleCommand(ctx, m, text)
	case isButton(text):
		conv.Reset()
		h.handleButton(ctx, &conv, text)
	case conv.State != models.ConversationIdle:
		h.continueConversation(ctx, &conv, text)
	default:
		h.reply(ctx, chatID, "Unknown command. Try <code>/help</code>", nil)
	}

	if conv.State == before.State && conv.PendingName == before.PendingName {
		return
	}
	if err := h.sessions.Save(ctx, conv); err != nil {
		h.logger.WithField("chatId", chatID).WithError(err).Warn("Failed to save session")
	}
}

func (h *Handler) handleCommand(ctx context.Context, m *tgmodels.Message, text string) {
	chatID := m.Chat.ID
	cmd, args := parseCommand(text)

	switch cmd {
	case "/start":
		h.start(ctx, chatID, displayName(m.From))
	case "/help":
		h.help(ctx, chatID)
	case "/cancel":
		h.reply(ctx, chatID, "Cancelled.", nil)
	case "/addwallet":
		if len(args) != 2 {
			h.reply(ctx, chatID, "Usage: <code>/addwallet &lt;name&gt; &lt;address&gt;</code>", nil)
			return
		}
		h.addWallet(ctx, chatID, args[0], args[1])
	case "/removewallet":
		if len(args) != 1 {
			h.reply(ctx, chatID, "Usage: <code>/removewallet &lt;name&gt;</code>", nil)
			return
		}
		h.removeWallet(ctx, chatID, args[0])
	case "/renamewallet":
		if len(args) != 2 {
			h.reply(ctx, chatID, "Usage: <code>/renamewallet &lt;old&gt; &lt;new&gt;</code>", nil)
			return
		}
		h.renameWallet(ctx, chatID, args[0], args[1])
	case "/mywallets":
		h.listWallets(ctx, chatID)
	case "/plans":
		h.plans(ctx, chatID)
	case "/upgrade":
		if len(args) != 1 {
			h.reply(ctx, chatID, "Usage: <code>/upgrade &lt;plan&gt;</code>. See <code>/plans</code>.", nil)
			return
		}
		h.upgrade(ctx, chatID, args[0])
	default:
		h.reply(ctx, chatID, "Unknown command. Try <code>/help</code>", nil)
	}
}

func (h *Handler) handleButton(ctx context.Context, conv *models.Conversation, text string) {
	chatID := conv.ChatID
	switch text {
	case buttonMyWallets:
		h.listWallets(ctx, chatID)
	case buttonAddWallet:
		conv.State = models.ConversationAwaitingName
		h.reply(ctx, chatID, "Send a short name for the wallet (one word), or /cancel.", nil)
	case buttonWatchContracts:
		h.reply(ctx, chatID, "🔬 Contract watching is not available yet.", nil)
	case buttonPlans:
		h.plans(ctx, chatID)
	case buttonHelp:
		h.help(ctx, chatID)
	}
}

// continueConversation consumes free text while an Add Wallet prompt is open
func (h *Handler) continueConversation(ctx context.Context, conv *models.Conversation, text string) {
	chatID := conv.ChatID

	switch conv.State {
	case models.ConversationAwaitingName:
		if err := service.ValidateWalletName(text); err != nil {
			h.reply(ctx, chatID, userMessage(err)+"\nTry another name, or /cancel.", nil)
			return
		}
		conv.PendingName = text
		conv.State = models.ConversationAwaitingAddress
		h.reply(ctx, chatID, "Now send the address for <b>"+notifier.EscapeHTML(text)+"</b> (0x...).", nil)

	case models.ConversationAwaitingAddress:
		if err := service.ValidateAddress(text); err != nil {
			h.reply(ctx, chatID, userMessage(err)+"\nSend the address again, or /cancel.", nil)
			return
		}
		name := conv.PendingName
		conv.Reset()
		h.addWallet(ctx, chatID, name, text)

	default:
		conv.Reset()
	}
}

func (h *Handler) handleCallback(ctx context.Context, cq *tgmodels.CallbackQuery) {
	action, value := parseCallback(cq.Data)

	msg := cq.Message.Message
	chatID := cq.From.ID
	if msg != nil {
		chatID = msg.Chat.ID
	}

	switch action {
	case callbackRemoveWallet:
		if err := h.wallets.RemoveWallet(ctx, chatID, value); err != nil {
			h.logUserError(chatID, err)
			h.answer(ctx, cq.ID, plainUserMessage(err))
			return
		}
		h.answer(ctx, cq.ID, "'"+value+"' removed.")
		if msg == nil {
			return
		}
		text := notifier.EscapeHTML(msg.Text) + "\n\n✅ <i>Wallet '" + notifier.EscapeHTML(value) + "' removed.</i>"
		if _, err := h.api.EditMessageText(ctx, &tg.EditMessageTextParams{
			ChatID:    chatID,
			MessageID: msg.ID,
			Text:      text,
			ParseMode: tgmodels.ParseModeHTML,
		}); err != nil {
			h.logger.WithField("chatId", chatID).WithError(err).Debug("Failed to edit wallet list")
		}
	default:
		h.answer(ctx, cq.ID, "")
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string, markup tgmodels.ReplyMarkup) {
	params := notifier.HTMLMessage(chatID, text)
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := h.api.SendMessage(ctx, params); err != nil {
		h.logger.WithField("chatId", chatID).WithError(err).Warn("Telegram send failed")
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	if _, err := h.api.AnswerCallbackQuery(ctx, &tg.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	}); err != nil {
		h.logger.WithError(err).Debug("Failed to answer callback")
	}
}

// parseCommand lower-cases the command and strips a @botname suffix
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	if idx := strings.IndexRune(cmd, '@'); idx != -1 {
		cmd = cmd[:idx]
	}
	return cmd, fields[1:]
}

func isButton(text string) bool {
	switch text {
	case buttonMyWallets, buttonWatchContracts, buttonAddWallet, buttonPlans, buttonHelp:
		return true
	}
	return false
}

func displayName(u *tgmodels.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
