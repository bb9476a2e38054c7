package telegram

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/services"
	"github.com/upb/stockbot/services/assistant"
)

const (
	msgUnauthorized  = "מצטערת, אין לך הרשאה להשתמש בבוט זה."
	msgAdminOnly     = "מצטערת, אין לך הרשאה לבצע פעולה זו."
	msgUnresolved    = "לא הצלחתי לזהות את שם החברה. אנא נסה שוב עם שם חברה ברור."
	msgEmptyQuestion = "אנא כתוב שאלה על מניה."
	msgCancelled     = "הניתוח בוטל."
	msgProcessing    = "מעבד את הבקשה... ⏳"
	msgNoPending     = "אין ניתוח ממתין לאישור. אנא שאל שאלה חדשה."
	msgBusy          = "יש כבר בקשות רבות בתור. אנא המתן רגע ונסה שוב."
	msgInternal      = "מצטערת, נתקלתי בשגיאה. אנא נסה שוב מאוחר יותר."
	msgNoStocks      = "אין מניות ברשימה"
	msgSymbolInvalid = "סימול המניה לא נמצא"
	msgStockMissing  = "המניה לא נמצאה ברשימה"

	msgStart = "שלום! אני בוט שעוזר לנתח חדשות על מניות. 📈\n\n" +
		"אתה יכול לשאול אותי שאלות כמו:\n" +
		"• למה המניה של אפל יורדת?\n" +
		"• מה קורה עם המניה של טסלה?\n" +
		"• תסביר מה קורה עם abbvie\n\n" +
		"פקודות זמינות:\n" +
		"/usage - הצגת נתוני שימוש ותקציב\n" +
		"/help - עזרה"

	msgHelp = "הנה רשימת הפקודות הזמינות:\n\n" +
		"📊 פקודות כלליות:\n" +
		"/stocks - הצגת רשימת המניות המוכרות\n" +
		"/usage - הצגת נתוני שימוש ועלויות\n" +
		"/help - הצגת עזרה זו\n"

	msgHelpAdmin = "\n👑 פקודות מנהל:\n" +
		"/addstock שם-המניה SYMBOL - הוספת מניה חדשה\n" +
		"/removestock שם-המניה - הסרת מניה מהרשימה\n" +
		"/admin add|remove מזהה-משתמש - ניהול משתמשים\n"

	msgAddStockUsage = "שימוש שגוי. הפורמט הנכון הוא:\n" +
		"/addstock שם-המניה SYMBOL\n" +
		"לדוגמה: /addstock גוגל GOOGL"

	msgRemoveStockUsage = "שימוש שגוי. הפורמט הנכון הוא:\n" +
		"/removestock שם-המניה\n" +
		"לדוגמה: /removestock גוגל"

	msgAdminUsage = "אנא ציין פעולה ומשתמש:\n/admin add מזהה-משתמש\n/admin remove מזהה-משתמש"
)

// formatOutcome renders a finished turn as a chat reply
func formatOutcome(out *assistant.Outcome) string {
	switch out.State {
	case assistant.StateAwaitingConfirmation:
		return formatConfirmation(out)
	case assistant.StateDone:
		return formatAnswer(out)
	case assistant.StateCancelled:
		return msgCancelled
	case assistant.StateDenied:
		return formatDenial(out)
	}
	return formatFailure(out.Err)
}

func formatConfirmation(out *assistant.Outcome) string {
	est := out.Estimate
	var b strings.Builder
	b.WriteString("📊 הערכת עלויות:\n")
	fmt.Fprintf(&b, "• מניה: %s\n", out.Symbol)
	fmt.Fprintf(&b, "• טוקנים בשאילתה: %s\n", formatCount(est.InputTokens))
	fmt.Fprintf(&b, "• טוקנים משוערים בתשובה: %s\n", formatCount(est.OutputTokens))
	fmt.Fprintf(&b, "• עלות משוערת: %s\n", formatCost(est.TotalCost))
	if out.RemainingBudget != nil {
		fmt.Fprintf(&b, "• תקציב יומי נותר: %s\n", formatCost(*out.RemainingBudget))
	}
	b.WriteString("\nהאם להמשיך עם הניתוח? (כן/לא)")
	return b.String()
}

func formatAnswer(out *assistant.Outcome) string {
	var b strings.Builder
	b.WriteString(out.Answer)
	if out.Actual != nil {
		b.WriteString("\n\n💰 סיכום עלויות:\n")
		fmt.Fprintf(&b, "• טוקנים בשאילתה: %s\n", formatCount(out.Actual.InputTokens))
		fmt.Fprintf(&b, "• טוקנים בתשובה: %s\n", formatCount(out.Actual.OutputTokens))
		fmt.Fprintf(&b, "• עלות: %s", formatCost(out.Actual.TotalCost))
		if out.RemainingBudget != nil {
			fmt.Fprintf(&b, "\n• תקציב יומי נותר: %s", formatCost(*out.RemainingBudget))
		}
	}
	return b.String()
}

func formatDenial(out *assistant.Outcome) string {
	switch out.Reason {
	case services.ReasonPerRequestCeilingExceeded:
		details := services.GetErrorDetails(out.Err)
		return fmt.Sprintf("❌ העלות המשוערת (%s) חורגת ממגבלת העלות לבקשה (%s)",
			formatCost(out.Estimate.TotalCost), detailCost(details, "max_request_cost"))
	case services.ReasonDailyCeilingExceeded:
		remaining := decimal.Zero
		if out.RemainingBudget != nil {
			remaining = *out.RemainingBudget
		}
		return fmt.Sprintf("❌ חריגה מהתקציב היומי. תקציב נותר: %s", formatCost(remaining))
	}
	if services.IsBudgetError(out.Err) {
		return "❌ הבקשה נדחתה בשל מגבלת התקציב."
	}
	// unresolved company or unpriceable prompt
	return formatFailure(out.Err)
}

func formatFailure(err error) string {
	switch {
	case err == nil:
		return msgInternal
	case services.IsResolutionError(err):
		return msgUnresolved
	case services.IsValidationError(err):
		return msgEmptyQuestion
	case services.IsForbiddenError(err):
		return msgUnauthorized
	case services.IsSessionStateError(err):
		return msgNoPending
	case services.IsExternalError(err) && services.GetErrorDetails(err)["collaborator"] == "completion":
		return "שגיאה בביצוע הניתוח. אנא נסה שוב מאוחר יותר."
	case services.IsExternalError(err), services.IsEstimationError(err):
		return "שגיאה בהכנת הניתוח. אנא נסה שוב מאוחר יותר."
	}
	return msgInternal
}

func formatUsage(u *models.Usage) string {
	return "📊 נתוני שימוש:\n" +
		"• עלות יומית: " + formatCost(u.DailyCost) + "\n" +
		"• תקציב נותר: " + formatCost(u.RemainingBudget) + "\n" +
		"• מגבלת עלות לבקשה: " + formatCost(u.MaxRequestCost) + "\n" +
		"• מגבלת עלות יומית: $" + u.DailyLimit.StringFixed(2)
}

// formatStocks lists the alias table sorted by name
func formatStocks(aliases []models.Alias) string {
	if len(aliases) == 0 {
		return msgNoStocks
	}
	sorted := make([]models.Alias, len(aliases))
	copy(sorted, aliases)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	lines := make([]string, 0, len(sorted)+1)
	lines = append(lines, "רשימת המניות המוכרות:")
	for _, a := range sorted {
		lines = append(lines, "• "+a.Name+": "+a.Symbol)
	}
	return strings.Join(lines, "\n")
}

func formatStockAdded(a models.Alias) string {
	return fmt.Sprintf("המניה %s (%s) נוספה בהצלחה", a.Name, a.Symbol)
}

func formatStockRemoved(a models.Alias) string {
	return fmt.Sprintf("המניה %s (%s) הוסרה בהצלחה", a.Name, a.Symbol)
}

func formatCost(d decimal.Decimal) string {
	return "$" + d.StringFixed(4)
}

func detailCost(details map[string]interface{}, key string) string {
	if s, ok := details[key].(string); ok {
		if d, err := decimal.NewFromString(s); err == nil {
			return formatCost(d)
		}
		return "$" + s
	}
	return "?"
}

// formatCount writes n with thousands separators
func formatCount(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
