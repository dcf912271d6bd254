package db

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	decimal "github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNumericDecimalConversion(t *testing.T) {
	for _, v := range []string{"0", "0.0000009", "2.5", "-17.125", "1000000"} {
		d := decimal.RequireFromString(v)
		require.True(t, DecimalFromNumeric(NumericFromDecimal(d)).Equal(d), v)
	}

	require.True(t, DecimalFromNumeric(pgtype.Numeric{}).IsZero())
	require.True(t, DecimalFromNumeric(pgtype.Numeric{NaN: true, Valid: true}).IsZero())

	null := NullDecimalFromNumeric(pgtype.Numeric{})
	require.False(t, null.Valid)
	require.False(t, NumericFromNullDecimal(decimal.NullDecimal{}).Valid)

	present := NullDecimalFromNumeric(NumericFromDecimal(decimal.RequireFromString("0.5")))
	require.True(t, present.Valid)
	require.Equal(t, "0.5", present.Decimal.String())
}
