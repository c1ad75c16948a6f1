// Package fee maps a requested principal to its flat fee and total repayable amount.
package fee

import (
	"errors"
	"fmt"
	"sort"
)

const (
	MinPrincipal int64 = 3000
	MaxPrincipal int64 = 60000

	flatBandLow  int64 = 6000
	flatBandHigh int64 = 8000
	flatBandFee  int64 = 460
)

var ErrOutOfRange = errors.New("principal_out_of_range")

var breakpoints = map[int64]int64{
	3000:  200,
	5000:  350,
	6000:  460,
	7000:  460,
	8000:  460,
	10000: 1000,
	20000: 2000,
	30000: 3000,
	40000: 4000,
	50000: 5000,
	60000: 6000,
}

var sortedBreakpoints = func() []int64 {
	out := make([]int64, 0, len(breakpoints))
	for amount := range breakpoints {
		out = append(out, amount)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}()

type Quote struct {
	Principal      int64 `json:"principal"`
	Fee            int64 `json:"fee"`
	TotalRepayable int64 `json:"total_repayable"`
}

// For returns the fee charged on principal. Between breakpoints the fee of the
// next-lower breakpoint applies, except inside the 6000..8000 band which is flat.
func For(principal int64) (int64, error) {
	if principal < MinPrincipal || principal > MaxPrincipal {
		return 0, fmt.Errorf("%w: loan amount must be between %d and %d", ErrOutOfRange, MinPrincipal, MaxPrincipal)
	}
	if f, ok := breakpoints[principal]; ok {
		return f, nil
	}
	if principal >= flatBandLow && principal <= flatBandHigh {
		return flatBandFee, nil
	}
	for i, amount := range sortedBreakpoints {
		if principal < amount {
			// i == 0 is unreachable while MinPrincipal is the first breakpoint.
			if i > 0 {
				return breakpoints[sortedBreakpoints[i-1]], nil
			}
			return breakpoints[sortedBreakpoints[0]], nil
		}
	}
	return breakpoints[MaxPrincipal], nil
}

func QuoteFor(principal int64) (Quote, error) {
	f, err := For(principal)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Principal: principal, Fee: f, TotalRepayable: principal + f}, nil
}
