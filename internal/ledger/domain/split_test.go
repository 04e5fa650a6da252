package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func alloc(amount string, category ...string) domain.Allocation {
	a := domain.Allocation{Amount: dec(amount)}
	if len(category) > 0 {
		a.CategoryID = &category[0]
	}
	return a
}

func TestSplitTolerance(t *testing.T) {
	tests := []struct {
		total string
		want  string
	}{
		{"0", "0.01"},
		{"1.00", "0.01"},
		{"2.00", "0.01"},
		{"10.00", "0.05"},
		{"1000.00", "5"},
		{"-10.00", "0.05"},
	}

	for _, tt := range tests {
		t.Run(tt.total, func(t *testing.T) {
			assert.True(t, dec(tt.want).Equal(domain.SplitTolerance(dec(tt.total))),
				"tolerance for %s = %s", tt.total, domain.SplitTolerance(dec(tt.total)))
		})
	}
}

func TestCheckSplitSum(t *testing.T) {
	tests := []struct {
		name        string
		total       string
		allocations []domain.Allocation
		wantErr     bool
	}{
		{"exact", "10.00", []domain.Allocation{alloc("6.00"), alloc("4.00")}, false},
		{"one cent over on ten dollars", "10.00", []domain.Allocation{alloc("5.00"), alloc("5.01")}, false},
		{"within relative tolerance", "10.00", []domain.Allocation{alloc("5.00"), alloc("5.04")}, false},
		{"at tolerance edge", "10.00", []domain.Allocation{alloc("5.00"), alloc("5.05")}, false},
		{"over tolerance", "10.00", []domain.Allocation{alloc("5.00"), alloc("5.06")}, true},
		{"small sale uses absolute floor", "1.00", []domain.Allocation{alloc("0.50"), alloc("0.51")}, false},
		{"small sale over floor", "1.00", []domain.Allocation{alloc("0.50"), alloc("0.52")}, true},
		{"negative total", "-8.00", []domain.Allocation{alloc("-3.00"), alloc("-5.00")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.CheckSplitSum(dec(tt.total), tt.allocations)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "CONFLICT", appErr.Code)
			assert.Equal(t, dec(tt.total).StringFixed(2), appErr.Details["expected"])
		})
	}
}

func TestCheckSplitSum_ReportsExpectedAndActual(t *testing.T) {
	err := domain.CheckSplitSum(dec("10.00"), []domain.Allocation{alloc("5.00"), alloc("5.10")})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "10.00", appErr.Details["expected"])
	assert.Equal(t, "10.10", appErr.Details["actual"])
	assert.Contains(t, appErr.Message, "10.10")
}

func TestValidateAllocations(t *testing.T) {
	empty := ""

	tests := []struct {
		name        string
		allocations []domain.Allocation
		wantField   string
	}{
		{"empty list", nil, "allocations"},
		{"zero amount", []domain.Allocation{alloc("1"), alloc("0.00")}, "allocations[1].amount"},
		{"blank category", []domain.Allocation{{Amount: dec("1"), CategoryID: &empty}}, "allocations[0].category_id"},
		{"sub-cent amount", []domain.Allocation{alloc("0.004")}, "allocations[0].amount"},
		{"half cents", []domain.Allocation{alloc("0.50"), alloc("0.505")}, "allocations[1].amount"},
		{"trailing zeros", []domain.Allocation{alloc("1.500")}, ""},
		{"valid", []domain.Allocation{alloc("1", "c1"), alloc("-1")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidateAllocations(tt.allocations)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
			assert.Contains(t, appErr.Details, tt.wantField)
		})
	}
}

func TestCategoryIDs_Deduplicates(t *testing.T) {
	ids := domain.CategoryIDs([]domain.Allocation{alloc("1", "a"), alloc("2"), alloc("3", "b"), alloc("4", "a")})
	assert.Equal(t, []string{"a", "b"}, ids)
}
