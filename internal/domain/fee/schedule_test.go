package fee

import (
	"errors"
	"testing"
)

func TestForBreakpointsAndGaps(t *testing.T) {
	cases := []struct {
		principal int64
		want      int64
	}{
		{3000, 200},
		{3500, 200},
		{4999, 200},
		{5000, 350},
		{5999, 350},
		{6500, 460},
		{8000, 460},
		{9000, 460},
		{10000, 1000},
		{15000, 1000},
		{25000, 2000},
		{59999, 5000},
		{60000, 6000},
	}
	for _, tc := range cases {
		got, err := For(tc.principal)
		if err != nil {
			t.Fatalf("For(%d): unexpected error %v", tc.principal, err)
		}
		if got != tc.want {
			t.Fatalf("For(%d) = %d, want %d", tc.principal, got, tc.want)
		}
	}
}

func TestForOutOfRange(t *testing.T) {
	for _, p := range []int64{0, -1, 2999, 60001} {
		if _, err := For(p); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("For(%d): expected ErrOutOfRange, got %v", p, err)
		}
	}
}

func TestForNonDecreasing(t *testing.T) {
	prev := int64(-1)
	for p := MinPrincipal; p <= MaxPrincipal; p += 50 {
		got, err := For(p)
		if err != nil {
			t.Fatalf("For(%d): %v", p, err)
		}
		if got < prev {
			t.Fatalf("fee decreased at %d: %d < %d", p, got, prev)
		}
		prev = got
	}
}

func TestQuoteFor(t *testing.T) {
	q, err := QuoteFor(5000)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Principal != 5000 || q.Fee != 350 || q.TotalRepayable != 5350 {
		t.Fatalf("unexpected quote: %+v", q)
	}
}
