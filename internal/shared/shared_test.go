package shared

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMoneyParseAndFormat(t *testing.T) {
	m, err := ParseMoney("1,200.5")
	require.NoError(t, err)
	require.Equal(t, Money(120050), m)
	require.Equal(t, "1200.50", m.String())
	require.Equal(t, "INR 1,200.50", m.Display("INR"))
	require.Equal(t, "-3.05", Money(-305).String())

	_, err = ParseMoney("abc")
	require.Error(t, err)
}

func TestMoneyJSON(t *testing.T) {
	var payload struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":600,"b":"300.25"}`), &payload))
	require.Equal(t, Money(60000), payload.A)
	require.Equal(t, Money(30025), payload.B)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"600.00","b":"300.25"}`, string(raw))
}

func TestMoneyRejectsNonDecimalSyntax(t *testing.T) {
	for _, raw := range []string{"0x1p4", "1e3", "1,0,0", "12,34.5", "Inf", "NaN", "1.2.3", ".5", "+"} {
		_, err := ParseMoney(raw)
		require.Error(t, err, raw)
	}
	var payload struct {
		A Money `json:"a"`
	}
	require.Error(t, json.Unmarshal([]byte(`{"a":1e3}`), &payload))
}

func TestMoneyKeepsPrecisionAndBounds(t *testing.T) {
	m, err := ParseMoney("12345678901234.56")
	require.NoError(t, err)
	require.Equal(t, Money(1234567890123456), m)
	require.Equal(t, "12345678901234.56", m.String())
	require.Equal(t, "12,345,678,901,234.56", m.Display(""))

	m, err = ParseMoney("10.005")
	require.NoError(t, err)
	require.Equal(t, Money(1001), m)

	_, err = ParseMoney("92233720368547758.07")
	require.True(t, errors.Is(err, ErrAmountOutOfRange))
	_, err = ParseMoney("-92233720368547758.07")
	require.True(t, errors.Is(err, ErrAmountOutOfRange))

	max, err := ParseMoney(MaxMoney.String())
	require.NoError(t, err)
	require.Equal(t, MaxMoney, max)
}

func TestMoneyAddDetectsOverflow(t *testing.T) {
	sum, err := Money(150).Add(250)
	require.NoError(t, err)
	require.Equal(t, Money(400), sum)

	_, err = MaxMoney.Add(1)
	require.ErrorIs(t, err, ErrAmountOutOfRange)
	_, err = (-MaxMoney).Add(-1)
	require.ErrorIs(t, err, ErrAmountOutOfRange)
	_, err = Money(1 << 62).Add(1 << 62)
	require.ErrorIs(t, err, ErrAmountOutOfRange)
}

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"09-03-2026", "2026-03-09"} {
		got, err := ParseDate(raw)
		require.NoError(t, err, raw)
		require.True(t, want.Equal(got), raw)
	}
	require.Equal(t, "09-03-2026", FormatDate(want))
	_, err := ParseDate("March 9")
	require.Error(t, err)
}

func TestKindErrors(t *testing.T) {
	err := NewCodedError(ErrNotFound, "DAYPLAN_NOT_FOUND", "no day plan available")
	require.True(t, errors.Is(err, ErrNotFound))
	require.Equal(t, "DAYPLAN_NOT_FOUND", ErrorCode(err))
	require.Equal(t, "no day plan available", err.Error())

	var verr ValidationError
	require.NoError(t, verr.Err())
	verr.Add("phone", "must be 10 digits")
	verr.Add("email", "invalid")
	require.True(t, errors.Is(verr.Err(), ErrValidation))
	require.Equal(t, "email: invalid; phone: must be 10 digits", verr.Error())
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 10, 35)
	require.Equal(t, 4, p.TotalPages)
	req := PageRequest{Page: 3, PerPage: 20}
	require.Equal(t, 40, req.Offset())
}
