package composition

import "testing"

func TestRound1(t *testing.T) {
	testCases := []struct {
		name string
		in   float64
		want float64
	}{
		{"Integer", 30, 30},
		{"Already one decimal", 12.5, 12.5},
		{"Rounds down", 33.333333, 33.3},
		{"Rounds up", 16.666666, 16.7},
		{"Half rounds up", 0.25, 0.3},
		{"Float noise", 30.000000000000004, 30},
		{"Zero", 0, 0},
		{"Small", 0.04, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Round1(tc.in); got != tc.want {
				t.Errorf("Round1(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestRound1_Idempotent(t *testing.T) {
	for _, v := range []float64{0.1, 1.15, 2.449, 99.95, 1234.56} {
		once := Round1(v)
		if twice := Round1(once); twice != once {
			t.Errorf("Round1 not idempotent for %v: %v then %v", v, once, twice)
		}
	}
}
