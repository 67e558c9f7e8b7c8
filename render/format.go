package render

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the long US date used in emails, e.g. "Thursday, August 1, 2024".
const DateLayout = "Monday, January 2, 2006"

var funcs = template.FuncMap{
	"date":     FormatDate,
	"money":    FormatMoney,
	"days":     FormatDays,
	"digits":   digitsOnly,
	"shortday": func(t time.Time) string { return t.Format("2006-01-02") },
	"row":      func(label string, value any) []any { return []any{label, value} },
	"orNA": func(v any) any {
		switch x := v.(type) {
		case string:
			if x == "" {
				return "Not provided"
			}
		case int:
			if x == 0 {
				return "Not provided"
			}
		}
		return v
	},
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}

// FormatDate formats t as a long date. The zero time renders as an empty string.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// FormatMoney formats an amount as $X.XX.
func FormatMoney(amount float64) string {
	return "$" + strconv.FormatFloat(amount, 'f', 2, 64)
}

// FormatDays returns "1 day" or "N days".
func FormatDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
