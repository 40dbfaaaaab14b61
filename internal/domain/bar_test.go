package domain

import "testing"

func TestClassifyMoneyness(t *testing.T) {
	const gap = 50
	const underlying = 24650.0

	cases := []struct {
		strike float64
		want   MoneynessBucket
	}{
		{24650, "ATM"},
		{24700, "OTM1"},
		{24800, "OTM3"},
		{24600, "ITM1"},
		{26000, "OTM10"},
	}

	for _, c := range cases {
		got := ClassifyMoneyness(c.strike, underlying, gap)
		if got != c.want {
			t.Errorf("ClassifyMoneyness(%v, %v, %v) = %v, want %v", c.strike, underlying, gap, got, c.want)
		}
	}
}
