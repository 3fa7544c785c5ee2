package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"yomibot/internal/format"
	"yomibot/internal/quotes"
	"yomibot/internal/rotation"
	"yomibot/internal/transport"
	"yomibot/pkg/logx"
)

const welcomeText = `🕯️ <b>ברוכים הבאים לאשלג יומי</b>

מדי יום נשלח אליכם ציטוט מתוך שושלת החכמה של אשלג:

• <b>האר״י הקדוש</b> - יסודות הקבלה הלוריאנית
• <b>הבעל שם טוב</b> - מייסד החסידות
• <b>רבי שמחה בונים מפשיסחא</b>
• <b>הרבי מקוצק</b>
• <b>בעל הסולם</b> - רבי יהודה אשלג
• <b>הרב״ש</b> - רבי ברוך שלום אשלג
• <b>התלמידים</b>

📖 הציטוטים נשלחים בכל בוקר בשעה 6:00 (שעון ישראל)

<b>פקודות זמינות:</b>
/today - קבלו את הציטוטים של היום
/quote - ציטוט אקראי
/about - על הפרויקט
/help - עזרה

<i>״אין אור גדול יותר מהאור היוצא מתוך החושך״</i>`

const aboutText = `📚 <b>על אשלג יומי</b>

פרויקט זה נועד להפיץ את תורת הקבלה של שושלת אשלג - קו ישיר של חכמה רוחנית מהאר״י הקדוש ועד ימינו.

<b>השושלת:</b>

🕯️ <b>האר״י הקדוש</b> (1534-1572)
רבי יצחק לוריא אשכנזי - אבי הקבלה הלוריאנית

🕯️ <b>הבעל שם טוב</b> (1698-1760)
רבי ישראל בן אליעזר - מייסד תנועת החסידות

🕯️ <b>רבי שמחה בונים</b> (1765-1827)
מפשיסחא - מנהיג בית החסידות של פשיסחא

🕯️ <b>הרבי מקוצק</b> (1787-1859)
רבי מנחם מנדל מורגנשטרן - ידוע באמת הבלתי מתפשרת שלו

🕯️ <b>בעל הסולם</b> (1884-1954)
רבי יהודה אשלג - מחבר פירוש הסולם על הזוהר

🕯️ <b>הרב״ש</b> (1907-1991)
רבי ברוך שלום אשלג - בנו ותלמידו של בעל הסולם

🕯️ <b>התלמידים</b>
ממשיכי הדרך בדורנו

<b>קישורים:</b>
• <a href="https://www.orhassulam.com/">אור הסולם</a>
• <a href="https://www.sefaria.org/">ספריא</a>

<i>קוד פתוח - נבנה באהבה</i>`

const helpText = `📋 <b>פקודות זמינות:</b>

/start - הודעת פתיחה
/today - קבלו את הציטוטים של היום
/quote - ציטוט אקראי
/about - על הפרויקט ושושלת אשלג
/help - הצגת הודעה זו

📖 <b>ציטוטים יומיים:</b>
הציטוטים נשלחים אוטומטית בכל בוקר בשעה 6:00 (שעון ישראל)`

const (
	replyNoQuotes = "😔 אין ציטוטים זמינים כרגע. אנא נסו שוב מאוחר יותר."
	replyError    = "😔 אירעה שגיאה. אנא נסו שוב מאוחר יותר."
)

// Handlers builds the bot's command set. Selector and Store are accessors
// rather than values so a quote reload swaps what running handlers see.
type Handlers struct {
	Selector func() *rotation.Selector
	Store    func() *quotes.Store
	Location *time.Location

	// Reload re-reads the quote files from disk and returns the new total
	// record count. Nil disables the owner /reload command.
	Reload func(ctx context.Context) (int, error)
}

func (h *Handlers) Commands() []Command {
	cmds := []Command{
		{Name: "start", Description: "הודעת פתיחה", Handle: staticReply(welcomeText)},
		{Name: "today", Description: "הציטוטים של היום", Limited: true, Handle: h.today},
		{Name: "quote", Description: "ציטוט אקראי", Limited: true, Handle: h.randomQuote},
		{Name: "about", Description: "על הפרויקט", Handle: staticReply(aboutText)},
		{Name: "help", Description: "עזרה", Handle: staticReply(helpText)},
	}
	if h.Reload != nil {
		cmds = append(cmds, Command{
			Name:        "reload",
			Description: "reload quote files",
			Access:      AccessOwnerOnly,
			Handle:      h.reload,
		})
	}
	return cmds
}

func staticReply(text string) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		_, err := req.Tx.SendText(ctx, req.Chat, text, &transport.SendOptions{
			ParseMode:      "HTML",
			DisablePreview: true,
		})
		return err
	}
}

// today replays the current day's bundle for the requesting chat. Each
// category shows the record the channel actually received when the ledger
// has one, the deterministic pick otherwise, and nothing is recorded:
// asking for today's quotes must not advance rotation.
func (h *Handlers) today(ctx context.Context, req *Request) error {
	day := time.Now().In(h.Location)
	dateKey := day.Format("2006-01-02")
	sel := h.Selector()

	sent := 0
	if _, err := req.Tx.SendText(ctx, req.Chat, format.DailyHeader(day), &transport.SendOptions{ParseMode: "HTML"}); err != nil {
		return err
	}
	for _, cat := range quotes.Categories() {
		q, err := sel.SelectForDay(ctx, cat, dateKey)
		if errors.Is(err, rotation.ErrEmptyCategory) {
			continue
		}
		if err != nil {
			req.Log.Error("today selection failed", logx.String("category", string(cat)), logx.Err(err))
			_, _ = req.Tx.SendText(ctx, req.Chat, replyError, nil)
			return err
		}
		opt := &transport.SendOptions{
			ParseMode:          "HTML",
			DisablePreview:     true,
			ReplyMarkupAdapter: format.SourceKeyboard(q),
		}
		if _, err := req.Tx.SendText(ctx, req.Chat, format.QuoteMessage(q), opt); err != nil {
			return err
		}
		sent++
	}
	if sent == 0 {
		_, err := req.Tx.SendText(ctx, req.Chat, replyNoQuotes, nil)
		return err
	}
	_, err := req.Tx.SendText(ctx, req.Chat, format.DailyFooter(), nil)
	return err
}

func (h *Handlers) randomQuote(ctx context.Context, req *Request) error {
	store := h.Store()

	nonEmpty := make([]quotes.Category, 0, len(quotes.Categories()))
	for _, cat := range quotes.Categories() {
		if store.Count(cat) > 0 {
			nonEmpty = append(nonEmpty, cat)
		}
	}
	if len(nonEmpty) == 0 {
		_, err := req.Tx.SendText(ctx, req.Chat, replyNoQuotes, nil)
		return err
	}

	cat := nonEmpty[rand.Intn(len(nonEmpty))]
	q, err := h.Selector().SelectRandom(ctx, cat)
	if err != nil {
		req.Log.Error("random selection failed", logx.String("category", string(cat)), logx.Err(err))
		_, _ = req.Tx.SendText(ctx, req.Chat, replyError, nil)
		return err
	}

	_, err = req.Tx.SendText(ctx, req.Chat, format.QuoteMessage(q), &transport.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: format.SourceKeyboard(q),
	})
	return err
}

func (h *Handlers) reload(ctx context.Context, req *Request) error {
	total, err := h.Reload(ctx)
	if err != nil {
		_, _ = req.Tx.SendText(ctx, req.Chat, "reload failed: "+err.Error(), nil)
		return err
	}
	_, sendErr := req.Tx.SendText(ctx, req.Chat, fmt.Sprintf("reloaded: %d quotes", total), nil)
	return sendErr
}
