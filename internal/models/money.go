package models

import (
	"fmt"
	"strings"
)

// FormatAmount renders an amount held in integer minor units for display.
// All arithmetic stays in integers; no floats touch money anywhere.
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, strings.ToUpper(currency))
}
