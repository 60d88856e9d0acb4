package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		title     string
		price     int
		wantCount int
		wantTotal int
		wantUnit  float64
	}{
		{
			name:      "simple capsule count",
			title:     "高濃度魚油 60粒",
			price:     600,
			wantCount: 60,
			wantTotal: 60,
			wantUnit:  10.0,
		},
		{
			name:      "bundle with x marker",
			title:     "魚油 60粒 x3",
			price:     1800,
			wantCount: 60,
			wantTotal: 180,
			wantUnit:  10.0,
		},
		{
			name:      "bundle with 入 marker",
			title:     "B群 30錠 3入組",
			price:     900,
			wantCount: 30,
			wantTotal: 90,
			wantUnit:  10.0,
		},
		{
			name:      "sachet count",
			title:     "益生菌 30包",
			price:     750,
			wantCount: 30,
			wantTotal: 30,
			wantUnit:  25.0,
		},
		{
			name:      "bundle equal to count is dropped",
			title:     "葉黃素 30顆 30入",
			price:     600,
			wantCount: 30,
			wantTotal: 30,
			wantUnit:  20.0,
		},
		{
			name:      "small count treated as dosage",
			title:     "每日3顆 魚油",
			price:     600,
			wantCount: 0,
			wantTotal: 0,
			wantUnit:  0,
		},
		{
			name:      "implausible bundle reset",
			title:     "魚油 60粒 x99",
			price:     600,
			wantCount: 60,
			wantTotal: 60,
			wantUnit:  10.0,
		},
		{
			name:      "no units in title",
			title:     "高濃度魚油",
			price:     600,
			wantCount: 0,
			wantTotal: 0,
			wantUnit:  0,
		},
		{
			name:      "zero price leaves unit price empty",
			title:     "魚油 60粒",
			price:     0,
			wantCount: 60,
			wantTotal: 60,
			wantUnit:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := ParseUnits(tt.title, "", tt.price)
			assert.Equal(t, tt.wantCount, u.CountPerPack, "count")
			assert.Equal(t, tt.wantTotal, u.TotalCount, "total")
			assert.InDelta(t, tt.wantUnit, u.UnitPrice, 0.001, "unit price")
		})
	}
}

func TestParseUnitsRoundsUnitPrice(t *testing.T) {
	t.Parallel()

	u := ParseUnits("魚油 90粒", "", 1000)
	assert.Equal(t, 90, u.TotalCount)
	assert.InDelta(t, 11.11, u.UnitPrice, 0.001)
}

func TestParseUnitsFallsBackToDescription(t *testing.T) {
	t.Parallel()

	// No count in the title; the description carries it.
	u := ParseUnits("高濃度魚油", "每瓶60粒，建議每日1-2粒", 600)
	assert.Equal(t, 60, u.CountPerPack)
	assert.Equal(t, 60, u.TotalCount)
	assert.InDelta(t, 10.0, u.UnitPrice, 0.001)

	// A title count wins over the description.
	u = ParseUnits("魚油 30粒", "大包裝120粒", 600)
	assert.Equal(t, 30, u.TotalCount)

	// Dosage-sized description counts stay dropped.
	u = ParseUnits("高濃度魚油", "每日3顆", 600)
	assert.Zero(t, u.TotalCount)
}
