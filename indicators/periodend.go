package indicators

import "github.com/kbd172102/trading-dashboard/market"

// PeriodEndFlags marks, for each bar, whether it is the final bar of
// its calendar month within the supplied series. bars must be sorted
// ascending by start time.
//
// The replay path uses this exact-group marking; the live path cannot
// know a bar is the month's last until later, so it approximates with
// the last-calendar-day rule (see live.Orchestrator). Forced month-end
// liquidation fires in both cases.
func PeriodEndFlags(bars []market.Bar) []bool {
	flags := make([]bool, len(bars))
	for i := range bars {
		if i == len(bars)-1 {
			flags[i] = true
			continue
		}
		cur, next := bars[i].Start, bars[i+1].Start
		if cur.Year() != next.Year() || cur.Month() != next.Month() {
			flags[i] = true
		}
	}
	return flags
}
