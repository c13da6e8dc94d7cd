package formulas

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestXIRR_FlatOverOneYear(t *testing.T) {
	// 1000 in, 1000 out exactly one year later -> ~0% return
	flows := []CashFlow{
		{Date: date(2023, 1, 1), Amount: -1000},
		{Date: date(2024, 1, 1), Amount: 1000},
	}

	rate, err := XIRR(flows)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, rate, 1e-6)
}

func TestXIRR_DoubleOverOneYear(t *testing.T) {
	flows := []CashFlow{
		{Date: date(2023, 1, 1), Amount: -1000},
		{Date: date(2024, 1, 1), Amount: 2000},
	}

	rate, err := XIRR(flows)
	require.NoError(t, err)
	// 365-day year under Actual/365 -> exactly 100%
	assert.InDelta(t, 1.0, rate, 1e-4)
}

func TestXIRR_MultipleFlows(t *testing.T) {
	flows := []CashFlow{
		{Date: date(2023, 1, 1), Amount: -1000},
		{Date: date(2023, 7, 1), Amount: -500},
		{Date: date(2024, 1, 1), Amount: 1650},
	}

	rate, err := XIRR(flows)
	require.NoError(t, err)
	// NPV at the returned rate must be ~0
	npv := 0.0
	for _, f := range flows {
		yearsf := f.Date.Sub(flows[0].Date).Hours() / 24 / 365
		npv += f.Amount / math.Pow(1+rate, yearsf)
	}
	assert.InDelta(t, 0.0, npv, 1e-6)
	assert.Greater(t, rate, 0.0)
}

func TestXIRR_NegativeReturn(t *testing.T) {
	flows := []CashFlow{
		{Date: date(2023, 1, 1), Amount: -1000},
		{Date: date(2024, 1, 1), Amount: 500},
	}

	rate, err := XIRR(flows)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, rate, 1e-4)
}

func TestXIRR_Degenerate(t *testing.T) {
	_, err := XIRR([]CashFlow{{Date: date(2023, 1, 1), Amount: -1000}})
	assert.ErrorIs(t, err, ErrDegenerateCashFlows)

	_, err = XIRR([]CashFlow{
		{Date: date(2023, 1, 1), Amount: -1000},
		{Date: date(2024, 1, 1), Amount: -200},
	})
	assert.ErrorIs(t, err, ErrDegenerateCashFlows)

	_, err = XIRR(nil)
	assert.ErrorIs(t, err, ErrDegenerateCashFlows)
}
