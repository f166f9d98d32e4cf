package arbitrage

import (
	"fmt"
	"math"

	"arbitron/internal/config"
	"arbitron/internal/model"
)

// Fee is the cost schedule of one venue. Percentages are in percent units.
type Fee struct {
	MakerPercent float64
	TakerPercent float64
	GasCost      float64
}

// Taker returns the taker fee as a fraction.
func (f Fee) Taker() float64 { return f.TakerPercent / 100 }

// FeeSchedule is read-only reference data mapping venue -> Fee.
type FeeSchedule struct {
	fees map[string]Fee
}

// NewFeeSchedule validates and copies fees.
func NewFeeSchedule(fees map[string]Fee) (*FeeSchedule, error) {
	cp := make(map[string]Fee, len(fees))
	for venue, f := range fees {
		for _, v := range []float64{f.MakerPercent, f.TakerPercent, f.GasCost} {
			if v < 0 || math.IsNaN(v) {
				return nil, fmt.Errorf("%w: negative fee for venue %q", model.ErrConfiguration, venue)
			}
		}
		cp[venue] = f
	}
	return &FeeSchedule{fees: cp}, nil
}

// FeeScheduleFromConfig builds the schedule from the exchanges section.
func FeeScheduleFromConfig(exchanges map[string]config.ExchangeConfig) (*FeeSchedule, error) {
	fees := make(map[string]Fee, len(exchanges))
	for venue, ex := range exchanges {
		fees[venue] = Fee{
			MakerPercent: ex.MakerFeePercent,
			TakerPercent: ex.TakerFeePercent,
			GasCost:      ex.GasCost,
		}
	}
	return NewFeeSchedule(fees)
}

// Lookup returns the fee for venue. A missing venue is a configuration
// error; assuming zero fees would overstate profitability.
func (s *FeeSchedule) Lookup(venue string) (Fee, error) {
	if s != nil {
		if f, ok := s.fees[venue]; ok {
			return f, nil
		}
	}
	return Fee{}, fmt.Errorf("%w: no fee schedule for venue %q", model.ErrConfiguration, venue)
}
