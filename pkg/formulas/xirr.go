package formulas

import (
	"errors"
	"math"
	"time"
)

// ErrDegenerateCashFlows is returned when the cash-flow series cannot produce
// a meaningful internal rate of return (fewer than two flows, or all flows
// share the same sign).
var ErrDegenerateCashFlows = errors.New("cash flow series is degenerate")

// ErrNoConvergence is returned when the root finder fails to converge.
var ErrNoConvergence = errors.New("xirr did not converge")

// CashFlow is a single dated cash flow. Negative amounts are money paid into
// the investment, positive amounts are money received from it.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

const (
	xirrMaxIterations = 100
	xirrTolerance     = 1e-9
	// Rates below -100%/year make the discount factor undefined.
	xirrLowerBound = -0.999999
	xirrUpperBound = 1e6
)

// XIRR computes the money-weighted annualized rate of return for an
// irregularly dated cash-flow series, using Actual/365 day counting.
//
// It solves NPV(rate) = sum(amount_i / (1+rate)^(days_i/365)) = 0 with
// Newton's method, falling back to bisection when Newton leaves the valid
// domain or fails to converge.
func XIRR(flows []CashFlow) (float64, error) {
	if len(flows) < 2 {
		return 0, ErrDegenerateCashFlows
	}

	positive, negative := false, false
	for _, f := range flows {
		if f.Amount > 0 {
			positive = true
		} else if f.Amount < 0 {
			negative = true
		}
	}
	if !positive || !negative {
		return 0, ErrDegenerateCashFlows
	}

	// Years from the first flow, Actual/365.
	t0 := flows[0].Date
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.Date.Sub(t0).Hours() / 24.0 / 365.0
	}

	npv := func(rate float64) float64 {
		total := 0.0
		for i, f := range flows {
			total += f.Amount / math.Pow(1+rate, years[i])
		}
		return total
	}
	dnpv := func(rate float64) float64 {
		total := 0.0
		for i, f := range flows {
			if years[i] == 0 {
				continue
			}
			total -= years[i] * f.Amount / math.Pow(1+rate, years[i]+1)
		}
		return total
	}

	// Newton's method from a conventional starting guess.
	rate := 0.1
	for i := 0; i < xirrMaxIterations; i++ {
		value := npv(rate)
		if math.Abs(value) < xirrTolerance {
			return rate, nil
		}
		derivative := dnpv(rate)
		if derivative == 0 || math.IsNaN(derivative) {
			break
		}
		next := rate - value/derivative
		if math.IsNaN(next) || next <= xirrLowerBound || next > xirrUpperBound {
			break
		}
		if math.Abs(next-rate) < xirrTolerance {
			return next, nil
		}
		rate = next
	}

	return xirrBisect(npv)
}

// xirrBisect finds a sign change by scanning outward from zero, then bisects.
func xirrBisect(npv func(float64) float64) (float64, error) {
	lo, hi := xirrLowerBound, 10.0
	flo, fhi := npv(lo), npv(hi)
	for fhi*flo > 0 && hi < xirrUpperBound {
		hi *= 10
		fhi = npv(hi)
	}
	if flo*fhi > 0 {
		return 0, ErrNoConvergence
	}

	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		fmid := npv(mid)
		if math.Abs(fmid) < xirrTolerance || (hi-lo)/2 < xirrTolerance {
			return mid, nil
		}
		if flo*fmid < 0 {
			hi = mid
		} else {
			lo, flo = mid, fmid
		}
	}

	return 0, ErrNoConvergence
}
