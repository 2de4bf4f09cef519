// Package risk implements the streak-based position sizer: double the
// baseline after losses, halve it after wins, and grant one-shot size
// boosts after sustained streaks.
package risk

import "math"

// State is the sizer's persistent state. It lives for the lifetime of
// one engine instance and is mutated only by ApplyExit, immediately
// after an exit is realized.
type State struct {
	PositionSize  int
	WinStreak     int
	LossStreak    int
	PendingReward bool
	BoostCredits  int

	// BoostNextEntry sizes the next entry at the dynamic cap instead of
	// PositionSize. Armed by a three-win streak, cleared on entry.
	BoostNextEntry bool
}

// Sizer applies streak transitions to a State.
type Sizer struct {
	state State
}

// NewSizer returns a sizer starting at the given baseline lot count.
func NewSizer(initialLots int) *Sizer {
	if initialLots < 1 {
		initialLots = 1
	}
	return &Sizer{state: State{PositionSize: initialLots}}
}

// State returns a copy of the current sizer state.
func (s *Sizer) State() State { return s.state }

// DynamicCap is the hard half-capital ceiling: no single entry may
// require margin beyond half the available cash.
func DynamicCap(cash, marginPerLot float64) int {
	if marginPerLot <= 0 {
		return 1
	}
	half := 0.5 * cash
	if half < 0 {
		half = 0
	}
	cap := int(math.Floor(half / marginPerLot))
	if cap < 1 {
		return 1
	}
	return cap
}

// lotsByCash floors the cash remaining above the reserve by the margin
// per lot.
func lotsByCash(cash, reserve, marginPerLot float64) int {
	if marginPerLot <= 0 {
		return 1
	}
	usable := cash - reserve
	if usable < 0 {
		usable = 0
	}
	n := int(math.Floor(usable / marginPerLot))
	if n < 1 {
		return 1
	}
	return n
}

// Lots returns the lot count for a prospective entry:
// max(1, min(affordable-by-cash, streak target, dynamic cap)). During a
// boost the streak target is replaced by the dynamic cap, so the
// half-capital ceiling still binds.
func (s *Sizer) Lots(cash, marginPerLot, reserve float64) int {
	byCash := lotsByCash(cash, reserve, marginPerLot)
	dynCap := DynamicCap(cash, marginPerLot)

	desired := s.state.PositionSize
	if s.state.BoostNextEntry {
		desired = dynCap
	}

	lots := byCash
	if desired < lots {
		lots = desired
	}
	if dynCap < lots {
		lots = dynCap
	}
	if lots < 1 {
		lots = 1
	}
	return lots
}

// ConsumeBoost clears the one-shot entry boost. Called by the position
// ledger once an entry has actually been placed, so a rejected order
// keeps the boost armed.
func (s *Sizer) ConsumeBoost() { s.state.BoostNextEntry = false }

// ApplyExit runs the streak transition for one realized exit. cash and
// marginPerLot reflect the account at exit time and bound the
// reward-boost grant.
func (s *Sizer) ApplyExit(pnl, cash, marginPerLot float64) {
	st := &s.state

	if pnl >= 0 {
		st.WinStreak++
		st.LossStreak = 0

		granted := false
		if st.PendingReward && st.BoostCredits > 0 {
			size := st.PositionSize * 2
			if cap := DynamicCap(cash, marginPerLot); cap < size {
				size = cap
			}
			st.PositionSize = size
			st.BoostCredits--
			if st.BoostCredits == 0 {
				st.PendingReward = false
			}
			granted = true
		}

		if st.WinStreak == 3 {
			st.BoostNextEntry = true
		} else if !granted {
			st.PositionSize = st.PositionSize / 2
			if st.PositionSize < 1 {
				st.PositionSize = 1
			}
		}
		return
	}

	st.LossStreak++
	st.WinStreak = 0

	switch st.LossStreak {
	case 3:
		st.PendingReward = true
		st.BoostCredits = 1
	case 5:
		st.PendingReward = true
		st.BoostCredits = 2
	}

	st.PositionSize *= 2
	if st.PositionSize < 1 {
		st.PositionSize = 1
	}
}
