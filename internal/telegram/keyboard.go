package telegram

import (
	"strings"

	tgmodels "github.com/go-telegram/bot/models"
)

// Reply keyboard buttons. A button press arrives as a plain text message.
const (
	buttonMyWallets      = "📋 My Wallets"
	buttonWatchContracts = "🔬 Watch Contracts"
	buttonAddWallet      = "➕ Add Wallet"
	buttonPlans          = "💳 Plans"
	buttonHelp           = "ℹ️ Help"
)

// Inline callback data
const (
	callbackNoop         = "noop"
	callbackRemoveWallet = "remove_wallet"
)

func mainKeyboard() *tgmodels.ReplyKeyboardMarkup {
	return &tgmodels.ReplyKeyboardMarkup{
		Keyboard: [][]tgmodels.KeyboardButton{
			{{Text: buttonMyWallets}, {Text: buttonWatchContracts}},
			{{Text: buttonAddWallet}, {Text: buttonPlans}},
			{{Text: buttonHelp}},
		},
		ResizeKeyboard: true,
	}
}

// Telegram rejects the whole message if any callback_data exceeds this
const maxCallbackDataBytes = 64

// walletKeyboard renders one label row and one remove row per wallet. A name
// too long for callback data gets no remove button; /removewallet still works.
func walletKeyboard(names []string) *tgmodels.InlineKeyboardMarkup {
	rows := make([][]tgmodels.InlineKeyboardButton, 0, len(names)*2)
	for _, name := range names {
		rows = append(rows, []tgmodels.InlineKeyboardButton{{Text: "▪️ " + name, CallbackData: callbackNoop}})
		data := callbackRemoveWallet + ":" + name
		if len(data) > maxCallbackDataBytes {
			continue
		}
		rows = append(rows, []tgmodels.InlineKeyboardButton{{Text: "🗑️ Remove", CallbackData: data}})
	}
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func checkoutKeyboard(label, link string) *tgmodels.InlineKeyboardMarkup {
	return &tgmodels.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
			{{Text: label, URL: link}},
		},
	}
}

// parseCallback splits "action:value"; the value may itself contain no ':'
// because wallet names are validated against it.
func parseCallback(data string) (action, value string) {
	action, value, _ = strings.Cut(data, ":")
	return action, value
}

var helpText = strings.TrimSpace(`
ℹ️ <b>Commands Guide</b>

<b>Wallets</b>
- <code>/mywallets</code> - Show your wallets
- <code>/addwallet &lt;name&gt; &lt;address&gt;</code> - Add a wallet
- <code>/removewallet &lt;name&gt;</code> - Stop monitoring a wallet
- <code>/renamewallet &lt;old&gt; &lt;new&gt;</code> - Rename a wallet

<b>Plans</b>
- <code>/plans</code> - Show plans and your usage
- <code>/upgrade &lt;plan&gt;</code> - Get a checkout link

<code>/cancel</code> stops an unfinished Add Wallet prompt.
`)
