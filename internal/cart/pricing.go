package cart

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// discountCodes фиксированная таблица кодов: канонический код -> процент
var discountCodes = map[string]int64{
	"WELCOME10": 10,
	"SUMMER25":  25,
	"FISHON15":  15,
}

var hundred = decimal.NewFromInt(100)

// Caser хранит состояние, поэтому создаётся на каждый вызов
func normalizeCode(code string) string {
	return cases.Upper(language.Und).String(norm.NFKC.String(strings.TrimSpace(code)))
}

// LookupDiscount сравнивает код без учёта регистра и возвращает каноническую форму и процент
func LookupDiscount(code string) (string, int64, bool) {
	canonical := normalizeCode(code)
	pct, ok := discountCodes[canonical]
	if !ok {
		return "", 0, false
	}
	return canonical, pct, true
}

func discountPercent(code string) int64 {
	if code == "" {
		return 0
	}
	return discountCodes[code]
}

// computeTotals total = max(0, subtotal - subtotal*pct/100)
func computeTotals(subtotal decimal.Decimal, pct int64) Totals {
	discount := decimal.Zero
	if pct > 0 {
		discount = subtotal.Mul(decimal.NewFromInt(pct)).Div(hundred)
	}
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Totals{Subtotal: subtotal, Discount: discount, Total: total}
}
