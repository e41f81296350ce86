// README: Common money value object used across modules.
package types

import (
	"fmt"
	"math"
)

// Money holds an amount in minor units (kopecks for RUB).
type Money struct {
	Amount   int64
	Currency string
}

func Rub(minor int64) Money {
	return Money{Amount: minor, Currency: "RUB"}
}

// FromFloat converts a major-unit amount (e.g. 350.50) to Money.
func FromFloat(amount float64) Money {
	return Rub(int64(math.Round(amount * 100)))
}

func (m Money) Positive() bool { return m.Amount > 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d ₽", m.Amount/100, m.Amount%100)
}
