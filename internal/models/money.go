package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// Money is an amount in minor currency units (paise). It is encoded in JSON
// as a number of major units with at most two decimals.
type Money int64

// MaxMoney bounds any amount accepted from a client: ten billion rupees.
const MaxMoney Money = 1_000_000_000_000

// MoneyFromMajor converts a major-unit amount (e.g. rupees) to Money,
// rounding to the nearest minor unit.
func MoneyFromMajor(v float64) Money {
	return Money(math.Round(v * 100))
}

// Percent returns p percent of m rounded half away from zero to the minor
// unit. For 0 <= p <= 100 it cannot overflow, whatever m is.
func (m Money) Percent(p int64) Money {
	whole, rest := int64(m)/100, int64(m)%100
	frac := rest * p
	if frac >= 0 {
		frac = (frac + 50) / 100
	} else {
		frac = (frac - 50) / 100
	}
	return Money(whole*p + frac)
}

func (m Money) String() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return errors.Wrap(err, "money must be a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > float64(MaxMoney/100) {
		return errors.Newf("money out of range: %v", f)
	}
	*m = MoneyFromMajor(f)
	return nil
}

// Value stores Money as a BIGINT of minor units.
func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*m = Money(v)
	case int32:
		*m = Money(v)
	case nil:
		*m = 0
	default:
		return errors.Newf("cannot scan %T into Money", src)
	}
	return nil
}
