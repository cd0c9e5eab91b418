// Package validation содержит функции валидации входных данных.
package validation

import (
	"unicode"

	"github.com/shopspring/decimal"
)

// MaxAmountScale задаёт максимальное число знаков после запятой в денежной сумме.
const MaxAmountScale = 2

// MaxAmount задаёт верхнюю границу денежной суммы. В пайсах она укладывается в int64.
var MaxAmount = decimal.New(1, 12)

// IsValidAmount проверяет, что сумма положительна, не больше MaxAmount
// и не содержит долей меньше пайсы.
func IsValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() || amount.GreaterThan(MaxAmount) {
		return false
	}
	return amount.Equal(amount.Round(MaxAmountScale))
}

// IsValidPhone проверяет номер телефона в формате E.164: необязательный "+" и от 7 до 15 цифр.
func IsValidPhone(phone string) bool {
	if phone == "" {
		return false
	}

	digits := 0
	for i, ch := range phone {
		if ch == '+' && i == 0 {
			continue
		}
		if !unicode.IsDigit(ch) {
			return false
		}
		digits++
	}

	return digits >= 7 && digits <= 15
}
