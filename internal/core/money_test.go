package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.34", 1234, false},
		{"12,34", 1234, false},
		{" 7 ", 700, false},
		{"0.01", 1, false},
		{"12.345", 1235, false},
		{"12.344", 1234, false},
		{"1000000", 100000000, false},
		{"0", 0, true},
		{"0.001", 0, true},
		{"-5", 0, true},
		{"", 0, true},
		{"abc", 0, true},
		{"1,234.56", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Fils)
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := Fils(1050)
	b := Fils(2000)

	assert.Equal(t, Fils(3050), a.Add(b))
	assert.Equal(t, Fils(-950), a.Sub(b))
	assert.Equal(t, "-9.50", a.Sub(b).String())
	assert.Equal(t, "0.00", Zero.String())
	assert.True(t, Zero.IsZero())
	assert.InDelta(t, 10.5, a.Float(), 1e-9)
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Fils(-1250)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount": -12.50}`, string(b))

	var out struct {
		Amount Money `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"3.5"}`), &out))
	assert.Equal(t, int64(350), out.Amount.Fils)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":42.125}`), &out))
	assert.Equal(t, int64(4213), out.Amount.Fils)

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"x"}`), &out))
}
