package assistant

import (
	"fmt"
	"strings"

	"github.com/upb/stockbot/models"
)

// SystemPrompt frames every completion call
const SystemPrompt = "אתה אנליסט פיננסי מומחה שמנתח מניות ומסביר מגמות בשוק ההון בעברית ברורה."

const (
	maxNewsItems   = 5
	summaryRuneCap = 200
)

// BuildPrompt renders the analysis prompt for question about symbol.
// A nil quote renders without price data.
func BuildPrompt(question, symbol string, quote *models.Quote, news []models.NewsItem) string {
	var ctx strings.Builder

	name := symbol
	price, change := "N/A", "N/A"
	if quote != nil {
		if quote.DisplayName != "" {
			name = quote.DisplayName
		}
		price = quote.Price.String()
		change = quote.PercentChange.StringFixed(2)
	}

	fmt.Fprintf(&ctx, "מידע על המניה %s (%s):\n", name, symbol)
	fmt.Fprintf(&ctx, "- מחיר נוכחי: $%s\n", price)
	fmt.Fprintf(&ctx, "- שינוי באחוזים: %s%%\n\n", change)
	ctx.WriteString("חדשות אחרונות:\n")

	if len(news) > maxNewsItems {
		news = news[:maxNewsItems]
	}
	for _, item := range news {
		fmt.Fprintf(&ctx, "\n- %s\n  מקור: %s\n  תקציר: %s...\n", item.Title, item.Source, truncateRunes(item.Summary, summaryRuneCap))
	}

	return fmt.Sprintf("בהתבסס על המידע הבא, אנא ענה על השאלה: \"%s\"\n\n%s\n\nאנא תן תשובה מקיפה בעברית שמסבירה את המצב בצורה ברורה.",
		question, ctx.String())
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
