// Package format renders quotes into Telegram HTML messages.
// The core never formats content; everything outbound goes through here.
package format

import (
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"yomibot/internal/quotes"
)

// rtl forces right-to-left rendering of mixed Hebrew/Latin lines.
const rtl = "‏"

const divider = "═══════════════════"

// QuoteMessage renders a single quote for the channel: bold source title,
// the text body, and the lineage attribution line.
func QuoteMessage(q quotes.Quote) string {
	var title string
	parts := make([]string, 0, 2)
	if q.SourceBook != "" {
		parts = append(parts, q.SourceBook)
	}
	if q.SourceSection != "" {
		parts = append(parts, q.SourceSection)
	}
	if len(parts) > 0 {
		title = strings.Join(parts, ", ")
	} else {
		title = q.Category.DisplayName()
	}

	var b strings.Builder
	b.WriteString("📖 <b>")
	b.WriteString(rtl)
	b.WriteString(html.EscapeString(title))
	b.WriteString("</b>\n\n")
	b.WriteString(html.EscapeString(q.Text))
	b.WriteString("\n\n— ")
	b.WriteString(rtl)
	b.WriteString(html.EscapeString(q.Category.DisplayName()))
	return b.String()
}

// SourceKeyboard builds the inline "full source" link button, or nil when
// the record carries no link.
func SourceKeyboard(q quotes.Quote) *tele.ReplyMarkup {
	if strings.TrimSpace(q.SourceURL) == "" {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	btn := rm.URL("📖 מקור מלא", q.SourceURL)
	rm.Inline(rm.Row(btn))
	return rm
}

// DailyHeader opens a daily bundle broadcast.
func DailyHeader(day time.Time) string {
	return "🌅 <b>" + rtl + "אשלג יומי - " + day.Format("02.01.2006") + "</b>\n\n" + divider
}

// DailyFooter closes a daily bundle broadcast.
func DailyFooter() string { return divider }
