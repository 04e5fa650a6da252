package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
)

func adj(a domain.AdjustmentType) *domain.AdjustmentType { return &a }

func TestClassify_EveryRowHasExactlyOneBucket(t *testing.T) {
	tests := []struct {
		itemType   domain.ItemType
		adjustment *domain.AdjustmentType
		want       domain.Bucket
	}{
		{domain.ItemSale, nil, domain.BucketRevenue},
		{domain.ItemDiscount, adj(domain.AdjustDiscount), domain.BucketDiscount},
		{domain.ItemDiscount, nil, domain.BucketDiscount},
		{domain.ItemDiscount, adj(domain.AdjustVoid), domain.BucketVoid},
		{domain.ItemTax, adj(domain.AdjustTax), domain.BucketPassThrough},
		{domain.ItemTip, adj(domain.AdjustTip), domain.BucketPassThrough},
		{domain.ItemServiceCharge, adj(domain.AdjustServiceCharge), domain.BucketPassThrough},
		{domain.ItemFee, adj(domain.AdjustFee), domain.BucketPassThrough},
		{domain.ItemRefund, nil, domain.BucketPassThrough},
	}

	for _, tt := range tests {
		t.Run(string(tt.itemType), func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Classify(tt.itemType, tt.adjustment))
		})
	}
}

func TestPOSSystem(t *testing.T) {
	for _, v := range domain.Vendors {
		assert.True(t, v.Valid())
		assert.True(t, v.IsVendor())
	}
	assert.True(t, domain.POSManual.Valid())
	assert.False(t, domain.POSManual.IsVendor())
	assert.False(t, domain.POSSystem("lightspeed").Valid())
}

func TestReportQuery_Validate(t *testing.T) {
	blank := "   "
	q := domain.ReportQuery{StartDate: "2024-01-01", EndDate: "2024-01-31", Search: &blank}
	assert.NoError(t, q.Validate())
	assert.Nil(t, q.Search)
	assert.Equal(t, domain.ViewCategorization, q.View)

	q = domain.ReportQuery{StartDate: "2024-02-01", EndDate: "2024-01-31"}
	assert.Error(t, q.Validate())

	q = domain.ReportQuery{StartDate: "01/02/2024", EndDate: "2024-01-31"}
	assert.Error(t, q.Validate())

	q = domain.ReportQuery{StartDate: "2024-01-01", EndDate: "2024-01-31", View: "raw"}
	assert.Error(t, q.Validate())
}

func TestReportQuery_SearchPatternEscapesWildcards(t *testing.T) {
	term := "50%_off"
	q := domain.ReportQuery{Search: &term}
	assert.Equal(t, `%50\%\_off%`, *q.SearchPattern())

	assert.Nil(t, (&domain.ReportQuery{}).SearchPattern())
}
