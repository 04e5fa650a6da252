package normalize_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestack/tablestack-backend/internal/ingest/normalize"
)

func i64(v int64) *int64   { return &v }
func str(v string) *string { return &v }

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func assertUnits(t *testing.T, u normalize.Units, qty, unit, total string) {
	t.Helper()
	assert.Equal(t, qty, u.Quantity.StringFixed(3), "quantity")
	assert.Equal(t, unit, u.UnitPrice.StringFixed(2), "unit price")
	assert.Equal(t, total, u.Total.StringFixed(2), "total")
}

func TestCloverUnits_ScaledQuantityAndCents(t *testing.T) {
	u, err := normalize.CloverUnits(i64(2000), i64(500))
	require.NoError(t, err)
	assertUnits(t, u, "2.000", "5.00", "10.00")

	u, err = normalize.CloverUnits(nil, i64(1250))
	require.NoError(t, err)
	assertUnits(t, u, "1.000", "12.50", "12.50")

	// 1.5 lb at 3.99
	u, err = normalize.CloverUnits(i64(1500), i64(399))
	require.NoError(t, err)
	assertUnits(t, u, "1.500", "3.99", "5.99")

	_, err = normalize.CloverUnits(i64(1000), nil)
	assert.Error(t, err)

	_, err = normalize.CloverUnits(i64(0), i64(100))
	assert.Error(t, err)
}

func TestSquareUnits(t *testing.T) {
	tests := []struct {
		name              string
		quantity          *string
		base, total       *int64
		wantQty, wantUnit string
		wantTotal         string
		wantErr           bool
	}{
		{name: "base and total", quantity: str("2"), base: i64(500), total: i64(1000), wantQty: "2.000", wantUnit: "5.00", wantTotal: "10.00"},
		{name: "total only", quantity: str("3"), total: i64(1000), wantQty: "3.000", wantUnit: "3.33", wantTotal: "10.00"},
		{name: "base only", quantity: str("0.5"), base: i64(999), wantQty: "0.500", wantUnit: "9.99", wantTotal: "5.00"},
		{name: "missing quantity means one", base: i64(1000), total: i64(1000), wantQty: "1.000", wantUnit: "10.00", wantTotal: "10.00"},
		{name: "non-numeric quantity", quantity: str("two"), base: i64(100), wantErr: true},
		{name: "no money", quantity: str("1"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := normalize.SquareUnits(tt.quantity, tt.base, tt.total)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assertUnits(t, u, tt.wantQty, tt.wantUnit, tt.wantTotal)
		})
	}
}

func TestToastUnits_DecimalCurrency(t *testing.T) {
	u, err := normalize.ToastUnits(nd("2"), nd("4.255"), decimal.NullDecimal{})
	require.NoError(t, err)
	assertUnits(t, u, "2.000", "4.26", "8.52")

	u, err = normalize.ToastUnits(decimal.NullDecimal{}, nd("7.50"), nd("7.50"))
	require.NoError(t, err)
	assertUnits(t, u, "1.000", "7.50", "7.50")

	_, err = normalize.ToastUnits(nd("1"), decimal.NullDecimal{}, decimal.NullDecimal{})
	assert.Error(t, err)
}

func TestShift4Units(t *testing.T) {
	assertUnits(t, normalize.Shift4Units(4599), "1.000", "45.99", "45.99")
	assertUnits(t, normalize.Shift4Units(-250), "1.000", "-2.50", "-2.50")
}

func TestLocalSaleTime(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	// 03:30 UTC on June 2 is 22:30 on June 1 in Chicago (CDT)
	instant := time.Date(2024, 6, 2, 3, 30, 0, 0, time.UTC)
	date, clock := normalize.LocalSaleTime(instant, chicago)
	assert.Equal(t, "2024-06-01", date)
	assert.Equal(t, "22:30:00", clock)

	date, clock = normalize.LocalSaleTime(instant, time.UTC)
	assert.Equal(t, "2024-06-02", date)
	assert.Equal(t, "03:30:00", clock)
}

func TestResolveZone(t *testing.T) {
	fallback, err := time.LoadLocation(normalize.DefaultTimezone)
	require.NoError(t, err)

	loc, err := normalize.ResolveZone(nil, fallback)
	assert.NoError(t, err)
	assert.Equal(t, fallback, loc)

	loc, err = normalize.ResolveZone(str("Europe/Berlin"), fallback)
	assert.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	loc, err = normalize.ResolveZone(str("Mars/Olympus"), fallback)
	assert.Error(t, err)
	assert.Equal(t, fallback, loc)
}
