package notifier

import (
	"fmt"
	"html"
	"strings"

	"github.com/wallet-watch/internal/adapter"
	"github.com/wallet-watch/internal/types"
)

// Alert is everything needed to render one transaction notification
type Alert struct {
	WalletName string
	Direction  types.TransactionDirection
	Amount     string // already formatted with 6 decimals
	TxHash     string
	Failed     bool
	Chain      adapter.ChainInfo
}

// FormatAlert renders an alert as Telegram HTML
func FormatAlert(a Alert) string {
	var b strings.Builder

	name := "<b>" + html.EscapeString(a.WalletName) + "</b>"
	if a.Direction == types.DirectionOutbound {
		b.WriteString("💸 Sent from " + name)
	} else {
		b.WriteString("💰 Received on " + name)
	}
	b.WriteString("\n\n")

	asset := a.Chain.NativeAsset
	if asset == "" {
		asset = "ETH"
	}
	fmt.Fprintf(&b, "Amount: <b>%s %s</b>\n", html.EscapeString(a.Amount), asset)
	if a.Failed {
		b.WriteString("⚠️ Transaction reverted\n")
	}
	if a.TxHash != "" && a.Chain.ExplorerURL != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">View on explorer</a>", html.EscapeString(a.Chain.TxURL(a.TxHash)))
	}

	return b.String()
}

// EscapeHTML escapes user supplied text for HTML parse mode
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}
