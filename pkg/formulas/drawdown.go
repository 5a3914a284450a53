package formulas

import "time"

// Drawdown describes one peak-to-trough-to-recovery cycle in a value series.
// Magnitude is the decline as a fraction of the peak. RecoveryDate is nil
// while the series has not regained the peak.
type Drawdown struct {
	PeakDate     time.Time
	PeakValue    float64
	TroughDate   time.Time
	TroughValue  float64
	RecoveryDate *time.Time
	Magnitude    float64
}

// CalculateDrawdownPeriods enumerates every peak-to-trough-to-recovery cycle
// in a dated value series. A cycle opens when the value falls below the
// running peak and closes when the value regains that peak; a cycle still
// open at the end of the series has a nil recovery date. Dates and values
// must be parallel slices in chronological order.
func CalculateDrawdownPeriods(dates []time.Time, values []float64) []Drawdown {
	if len(values) < 2 || len(dates) != len(values) {
		return nil
	}

	var periods []Drawdown
	var current *Drawdown

	peakValue := values[0]
	peakDate := dates[0]

	for i := 1; i < len(values); i++ {
		v := values[i]

		if current == nil {
			if v >= peakValue {
				peakValue = v
				peakDate = dates[i]
				continue
			}
			current = &Drawdown{
				PeakDate:    peakDate,
				PeakValue:   peakValue,
				TroughDate:  dates[i],
				TroughValue: v,
			}
			continue
		}

		if v < current.TroughValue {
			current.TroughDate = dates[i]
			current.TroughValue = v
		}

		if v >= current.PeakValue {
			recovery := dates[i]
			current.RecoveryDate = &recovery
			periods = append(periods, finishDrawdown(*current))
			current = nil
			peakValue = v
			peakDate = dates[i]
		}
	}

	if current != nil {
		periods = append(periods, finishDrawdown(*current))
	}

	return periods
}

func finishDrawdown(d Drawdown) Drawdown {
	if d.PeakValue > 0 {
		d.Magnitude = (d.PeakValue - d.TroughValue) / d.PeakValue
	}
	return d
}
