package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/notifier"
)

func (h *Handler) start(ctx context.Context, chatID int64, name string) {
	if _, err := h.wallets.Register(ctx, chatID, name); err != nil {
		h.logUserError(chatID, err)
		h.reply(ctx, chatID, userMessage(err), nil)
		return
	}
	h.reply(ctx, chatID, "👋 Bot is running. Use the menu to manage wallets.", mainKeyboard())
}

func (h *Handler) help(ctx context.Context, chatID int64) {
	h.reply(ctx, chatID, helpText, nil)
}

func (h *Handler) addWallet(ctx context.Context, chatID int64, name, address string) {
	w, err := h.wallets.AddWallet(ctx, chatID, name, address)
	if err != nil {
		h.logUserError(chatID, err)
		h.reply(ctx, chatID, userMessage(err), nil)
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("✅ Wallet <b>'%s'</b> added!\n<code>%s</code>",
		notifier.EscapeHTML(w.Name), checksum(w.Address)), nil)
}

func (h *Handler) removeWallet(ctx context.Context, chatID int64, name string) {
	if err := h.wallets.RemoveWallet(ctx, chatID, name); err != nil {
		h.logUserError(chatID, err)
		h.reply(ctx, chatID, userMessage(err), nil)
		return
	}
	h.reply(ctx, chatID, "✅ <i>Wallet '"+notifier.EscapeHTML(name)+"' removed.</i>", nil)
}

func (h *Handler) renameWallet(ctx context.Context, chatID int64, oldName, newName string) {
	if err := h.wallets.RenameWallet(ctx, chatID, oldName, newName); err != nil {
		h.logUserError(chatID, err)
		h.reply(ctx, chatID, userMessage(err), nil)
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("✏️ <b>%s</b> is now <b>%s</b>.",
		notifier.EscapeHTML(oldName), notifier.EscapeHTML(newName)), nil)
}

func (h *Handler) listWallets(ctx context.Context, chatID int64) {
	overview, err := h.wallets.Overview(ctx, chatID)
	if err != nil {
		h.logUserError(chatID, err)
		h.reply(ctx, chatID, userMessage(err), nil)
		return
	}

	var b strings.Builder
	b.WriteString("📋 <b>Monitored Wallets</b>\n\n")
	if len(overview.Wallets) == 0 {
		b.WriteString("You are not monitoring any wallets yet.")
		h.reply(ctx, chatID, b.String(), nil)
		return
	}

	names := make([]string, 0, len(overview.Wallets))
	for _, w := range overview.Wallets {
		names = append(names, w.Name)
		fmt.Fprintf(&b, "▪️ <b>%s</b>\n<code>%s</code>\n", notifier.EscapeHTML(w.Name), checksum(w.Address))
	}
	fmt.Fprintf(&b, "\n%d of %d wallets used on the %s plan.",
		len(overview.Wallets), overview.Plan.WalletLimit, overview.Plan.DisplayName)

	h.reply(ctx, chatID, b.String(), walletKeyboard(names))
}

func (h *Handler) plans(ctx context.Context, chatID int64) {
	overview, err := h.wallets.Overview(ctx, chatID)
	if err != nil {
		h.logUserError(chatID, err)
		h.reply(ctx, chatID, userMessage(err), nil)
		return
	}

	var b strings.Builder
	b.WriteString("💳 <b>Plans</b>\n\n")
	for _, p := range h.wallets.Plans() {
		fmt.Fprintf(&b, "• <b>%s</b>: %d wallet(s), %s", p.DisplayName, p.WalletLimit, p.PriceRef)
		if p.Tier == overview.Plan.Tier {
			b.WriteString(" ✅")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nYou use %d of %d wallets. Upgrade with <code>/upgrade &lt;plan&gt;</code>.",
		len(overview.Wallets), overview.Plan.WalletLimit)

	h.reply(ctx, chatID, b.String(), nil)
}

func (h *Handler) upgrade(ctx context.Context, chatID int64, tag string) {
	p, link, err := h.wallets.UpgradeLink(chatID, tag)
	if err != nil {
		h.logUserError(chatID, err)
		h.reply(ctx, chatID, userMessage(err), nil)
		return
	}
	text := fmt.Sprintf("Upgrade to <b>%s</b> (%d wallets, %s). Your plan changes as soon as the payment is confirmed.",
		p.DisplayName, p.WalletLimit, p.PriceRef)
	h.reply(ctx, chatID, text, checkoutKeyboard("Pay for "+p.DisplayName, link))
}

// logUserError logs only failures that are not the user's fault
func (h *Handler) logUserError(chatID int64, err error) {
	if apperrors.IsUserError(err) {
		return
	}
	h.logger.WithField("chatId", chatID).WithError(err).Error("Command failed")
}

// userMessage maps a service error to the HTML reply shown in chat
func userMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrAlreadyMonitored):
		return "⚠️ Address already monitored."
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		limit := ""
		if ce := apperrors.Categorize(err); ce != nil {
			if l, ok := ce.Details["limit"]; ok {
				limit = fmt.Sprintf(" (%v)", l)
			}
		}
		return "🚫 You reached the wallet limit of your plan" + limit + ". See <code>/plans</code> to upgrade."
	case errors.Is(err, apperrors.ErrNameTaken):
		return "⚠️ You already have a wallet with that name."
	case errors.Is(err, apperrors.ErrNotFound):
		return "❌ Wallet not found."
	case errors.Is(err, apperrors.ErrInvalidPlan):
		return "❌ Unknown plan. See <code>/plans</code>."
	case errors.Is(err, apperrors.ErrInvalidInput):
		ce := apperrors.Categorize(err)
		return fmt.Sprintf("❌ Invalid %v: %v.", ce.Details["parameter"], notifier.EscapeHTML(fmt.Sprint(ce.Details["reason"])))
	default:
		return "Sorry, something went wrong. Please try again later."
	}
}

// plainUserMessage is userMessage without markup, for callback answers
func plainUserMessage(err error) string {
	r := strings.NewReplacer("<code>", "", "</code>", "", "&lt;", "<", "&gt;", ">", "&amp;", "&", "&#34;", `"`, "&#39;", "'")
	return r.Replace(userMessage(err))
}

func checksum(address string) string {
	return common.HexToAddress(address).Hex()
}
