package model

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatAmount renders minor units for humans, e.g. 30000 "inr" -> "₹ 300.00".
func FormatAmount(minor int64, code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return fmt.Sprintf("%.2f %s", float64(minor)/100.0, strings.ToUpper(code))
	}
	return printer.Sprint(currency.Symbol(unit.Amount(float64(minor) / 100.0)))
}
