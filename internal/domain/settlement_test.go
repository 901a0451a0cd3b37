package domain_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func leg(pos int, stake, odd string, o domain.Outcome) domain.BetLeg {
	return domain.BetLeg{
		ID:       fmt.Sprintf("leg-%d", pos),
		Position: pos,
		Stake:    d(stake),
		Odd:      d(odd),
		Outcome:  o,
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestPotentialProfit_Scenario(t *testing.T) {
	// 2650×1.04 = 2756.00 → 2756 - 2650 - 2120 = -2014
	// 2120×1.05 = 2226.00 → 2226 - 2120 - 2650 = -2544
	a := leg(0, "2650.00", "1.04", domain.OutcomeNone)
	b := leg(1, "2120.00", "1.05", domain.OutcomeNone)

	pa, pb := domain.PotentialProfit(a, b)
	assertDecimal(t, "-2014.00", pa)
	assertDecimal(t, "-2544.00", pb)
}

func TestPotentialProfit_ExactDecimal(t *testing.T) {
	// 0.1-style inputs that drift in float64
	a := leg(0, "10.10", "1.333", domain.OutcomeNone)
	b := leg(1, "20.20", "2.7", domain.OutcomeNone)

	pa, pb := domain.PotentialProfit(a, b)
	assert.Equal(t, "-16.8367", pa.String())
	assert.Equal(t, "24.24", pb.String())
}

func TestSettle_CaseTable(t *testing.T) {
	const sA, oA, sB, oB = "100", "2.10", "90", "2.30"
	cases := []struct {
		a, b domain.Outcome
		want string
	}{
		{domain.OutcomeWon, domain.OutcomeLost, "20"},            // 210 - 100 - 90
		{domain.OutcomeLost, domain.OutcomeWon, "17"},            // 207 - 90 - 100
		{domain.OutcomeWon, domain.OutcomeReturned, "200"},       // 210 - 100 + 90
		{domain.OutcomeReturned, domain.OutcomeWon, "217"},       // 207 - 90 + 100
		{domain.OutcomeLost, domain.OutcomeReturned, "-10"},      // -100 + 90
		{domain.OutcomeReturned, domain.OutcomeLost, "10"},       // -90 + 100
		{domain.OutcomeWon, domain.OutcomeWon, "227"},            // 417 - 190
		{domain.OutcomeLost, domain.OutcomeLost, "-190"},         // -(100 + 90)
		{domain.OutcomeReturned, domain.OutcomeReturned, "0"},
	}
	for _, tc := range cases {
		t.Run(string(tc.a)+"_"+string(tc.b), func(t *testing.T) {
			profit, ok := domain.Settle(leg(0, sA, oA, tc.a), leg(1, sB, oB, tc.b))
			require.True(t, ok)
			assertDecimal(t, tc.want, profit)
		})
	}
}

func TestSettle_SymmetricUnderSwap(t *testing.T) {
	outcomes := []domain.Outcome{domain.OutcomeWon, domain.OutcomeLost, domain.OutcomeReturned}
	for _, oa := range outcomes {
		for _, ob := range outcomes {
			a := leg(0, "123.45", "1.87", oa)
			b := leg(1, "98.70", "2.346", ob)

			ab, ok1 := domain.Settle(a, b)
			ba, ok2 := domain.Settle(b, a)
			require.True(t, ok1)
			require.True(t, ok2)
			assert.True(t, ab.Equal(ba), "%s/%s: %s != %s", oa, ob, ab, ba)
		}
	}
}

func TestSettle_PendingLeg(t *testing.T) {
	_, ok := domain.Settle(leg(0, "10", "2", domain.OutcomeWon), leg(1, "10", "2", domain.OutcomeNone))
	assert.False(t, ok)

	_, ok = domain.Settle(leg(0, "10", "2", domain.OutcomeNone), leg(1, "10", "2", domain.OutcomeNone))
	assert.False(t, ok)
}

func TestSettle_WonLostMatchesPotential(t *testing.T) {
	a := leg(0, "2650.00", "1.04", domain.OutcomeWon)
	b := leg(1, "2120.00", "1.05", domain.OutcomeLost)

	potentialA, _ := domain.PotentialProfit(a, b)
	profit, ok := domain.Settle(a, b)
	require.True(t, ok)
	assert.True(t, potentialA.Equal(profit))
}

func TestNewPreview(t *testing.T) {
	p, err := domain.NewPreview([2]domain.PreviewInput{
		{Stake: d("500"), Odd: d("1.5"), Outcome: "won"},
		{Stake: d("480"), Odd: d("2.1"), Outcome: "returned"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, p.Status)
	require.True(t, p.ActualProfit.Valid)
	assertDecimal(t, "730", p.ActualProfit.Decimal)
	assertDecimal(t, "-230", p.PotentialProfit[0])
}

func TestNewPreview_Pending(t *testing.T) {
	p, err := domain.NewPreview([2]domain.PreviewInput{
		{Stake: d("500"), Odd: d("1.5"), Outcome: "won"},
		{Stake: d("480"), Odd: d("2.1")},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.False(t, p.ActualProfit.Valid)
}

func TestNewPreview_Validation(t *testing.T) {
	_, err := domain.NewPreview([2]domain.PreviewInput{
		{Stake: d("500"), Odd: d("0.9")},
		{Stake: d("480"), Odd: d("2.1")},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = domain.NewPreview([2]domain.PreviewInput{
		{Stake: d("500"), Odd: d("1.9")},
		{Stake: d("480"), Odd: d("2.1"), Outcome: "void"},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "leg B")
}

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
