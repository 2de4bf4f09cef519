// Package strategy holds the strategy parameter record and the pure
// three-bar breakout signal evaluator.
package strategy

import "fmt"

// Params is the strategy parameter record supplied by the
// configuration collaborator. It is consumed read-only at engine start.
type Params struct {
	Instrument string `json:"instrument" yaml:"instrument"`

	PointValue     float64 `json:"point_value" yaml:"point_value"`
	EMAShort       int     `json:"ema_short" yaml:"ema_short"`
	EMALong        int     `json:"ema_long" yaml:"ema_long"`
	FixedSLPct     float64 `json:"fixed_sl_pct" yaml:"fixed_sl_pct"`
	TrailSLPct     float64 `json:"trail_sl_pct" yaml:"trail_sl_pct"`
	BreakoutBuffer float64 `json:"breakout_buffer" yaml:"breakout_buffer"`
	MarginFactor   float64 `json:"margin_factor" yaml:"margin_factor"`

	CooldownBars  int     `json:"cooldown_bars" yaml:"cooldown_bars"`
	InitialLots   int     `json:"initial_lots" yaml:"initial_lots"`
	BrokeragePct  float64 `json:"brokerage_pct" yaml:"brokerage_pct"`
	DailyTradeCap int     `json:"daily_trade_cap" yaml:"daily_trade_cap"`
	ReserveCash   float64 `json:"reserve_cash" yaml:"reserve_cash"`
	BarMinutes    int     `json:"bar_minutes" yaml:"bar_minutes"`
	LotSize       int     `json:"lot_size" yaml:"lot_size"`

	// MaxReversalDefer caps how many consecutive bars an EMA-reversal
	// exit may wait for its confirming opposite breakout before closing
	// anyway. 0 means wait indefinitely.
	MaxReversalDefer int `json:"max_reversal_defer" yaml:"max_reversal_defer"`
}

// Defaults returns the silver-mini parameter set the strategy was tuned
// on.
func Defaults() Params {
	return Params{
		Instrument:     "SILVERM",
		PointValue:     5,
		EMAShort:       27,
		EMALong:        78,
		FixedSLPct:     0.015,
		TrailSLPct:     0.025,
		BreakoutBuffer: 0.0012,
		MarginFactor:   0.15,
		CooldownBars:   3,
		InitialLots:    2,
		BrokeragePct:   0.0003,
		DailyTradeCap:  10,
		ReserveCash:    1000,
		BarMinutes:     15,
		LotSize:        5,
	}
}

// Validate checks the record for values the engine cannot run with.
func (p Params) Validate() error {
	if p.Instrument == "" {
		return fmt.Errorf("strategy: instrument is required")
	}
	if p.PointValue <= 0 {
		return fmt.Errorf("strategy: point_value must be positive")
	}
	if p.EMAShort <= 0 || p.EMALong <= 0 {
		return fmt.Errorf("strategy: ema spans must be positive")
	}
	if p.EMAShort >= p.EMALong {
		return fmt.Errorf("strategy: ema_short (%d) must be below ema_long (%d)", p.EMAShort, p.EMALong)
	}
	if p.FixedSLPct <= 0 || p.FixedSLPct >= 1 {
		return fmt.Errorf("strategy: fixed_sl_pct must be in (0,1)")
	}
	if p.TrailSLPct <= 0 || p.TrailSLPct >= 1 {
		return fmt.Errorf("strategy: trail_sl_pct must be in (0,1)")
	}
	if p.BreakoutBuffer < 0 {
		return fmt.Errorf("strategy: breakout_buffer must not be negative")
	}
	if p.MarginFactor <= 0 || p.MarginFactor >= 1 {
		return fmt.Errorf("strategy: margin_factor must be in (0,1)")
	}
	if p.InitialLots < 1 {
		return fmt.Errorf("strategy: initial_lots must be at least 1")
	}
	if p.LotSize < 1 {
		return fmt.Errorf("strategy: lot_size must be at least 1")
	}
	if p.BarMinutes <= 0 {
		return fmt.Errorf("strategy: bar_minutes must be positive")
	}
	return nil
}

// MarginPerLot estimates the margin one lot requires at the given
// price. The live path asks the venue instead; replay derives it from
// the margin factor.
func (p Params) MarginPerLot(price float64) float64 {
	m := p.MarginFactor * price * p.PointValue
	if m < 1 {
		return 1
	}
	return m
}

// Warmup returns how many closed bars are needed before the live path
// starts evaluating signals.
func (p Params) Warmup() int {
	return p.EMALong + 3
}
