// Package chart shapes a user's reading history into renderable line-chart
// series. It only prepares data — drawing belongs to whatever front end
// consumes the output.
package chart

import (
	"sort"
	"time"

	"github.com/tenghuan/EaseBPMate/internal/domain"
)

// Fixed y-axis window for blood-pressure charts, in mmHg.
const (
	AxisYMin = 40
	AxisYMax = 200
)

// Display bounds for flagging individual points. The systolic lower display
// bound is 80, not the storage classifier's 90 — the product has always
// drawn the lower systolic guide line at 80, so the chart keeps it. Do not
// align the two without a product decision.
const (
	systolicDisplayMax  = 140
	systolicDisplayMin  = 80
	diastolicDisplayMax = 90
	diastolicDisplayMin = 60
)

// Band identifies which pressure band a threshold line annotates.
type Band string

const (
	BandSystolic  Band = "systolic"
	BandDiastolic Band = "diastolic"
)

// Point is a single chart point. OutOfBand marks points the renderer should
// highlight; it uses the display bounds above, not the stored IsAbnormal flag.
type Point struct {
	MeasureDate int64 `json:"measure_date"` // X value, milliseconds since epoch
	Value       int   `json:"value"`        // Y value in mmHg
	OutOfBand   bool  `json:"out_of_band"`  // Highlight hint for the renderer
}

// ThresholdLine is a static horizontal guide line with descriptive metadata.
type ThresholdLine struct {
	Value int    `json:"value"` // Y value in mmHg
	Label string `json:"label"` // Display label
	Band  Band   `json:"band"`  // Which pressure band the line belongs to
}

// Series is the full renderable projection of a reading history.
type Series struct {
	Systolic   []Point         `json:"systolic"`   // High-pressure points, ascending by time
	Diastolic  []Point         `json:"diastolic"`  // Low-pressure points, ascending by time
	Thresholds []ThresholdLine `json:"thresholds"` // Static guide lines
}

// Build projects a reading history into two parallel point series plus the
// four static threshold lines. Input order does not matter — the store
// returns newest-first and Build re-sorts ascending by measure date. An
// empty history yields an empty Series with no threshold lines.
func Build(readings []domain.Reading) Series {
	if len(readings) == 0 {
		return Series{}
	}

	sorted := make([]domain.Reading, len(readings))
	copy(sorted, readings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MeasureDate < sorted[j].MeasureDate
	})

	s := Series{
		Systolic:  make([]Point, len(sorted)),
		Diastolic: make([]Point, len(sorted)),
		Thresholds: []ThresholdLine{
			{Value: systolicDisplayMax, Label: "高压上限", Band: BandSystolic},
			{Value: systolicDisplayMin, Label: "高压下限", Band: BandSystolic},
			{Value: diastolicDisplayMax, Label: "低压上限", Band: BandDiastolic},
			{Value: diastolicDisplayMin, Label: "低压下限", Band: BandDiastolic},
		},
	}
	for i, r := range sorted {
		s.Systolic[i] = Point{
			MeasureDate: r.MeasureDate,
			Value:       r.Systolic,
			OutOfBand:   r.Systolic > systolicDisplayMax || r.Systolic < systolicDisplayMin,
		}
		s.Diastolic[i] = Point{
			MeasureDate: r.MeasureDate,
			Value:       r.Diastolic,
			OutOfBand:   r.Diastolic > diastolicDisplayMax || r.Diastolic < diastolicDisplayMin,
		}
	}
	return s
}

// AxisMin returns the earliest measure date in the series, for the x-axis
// lower bound. Zero when the series is empty.
func (s Series) AxisMin() int64 {
	if len(s.Systolic) == 0 {
		return 0
	}
	return s.Systolic[0].MeasureDate
}

// AxisMax returns the latest measure date in the series, for the x-axis
// upper bound. Zero when the series is empty.
func (s Series) AxisMax() int64 {
	if len(s.Systolic) == 0 {
		return 0
	}
	return s.Systolic[len(s.Systolic)-1].MeasureDate
}

// FormatDateLabel renders an x-axis tick label as MM-dd in local time,
// matching how measurement days are bucketed.
func FormatDateLabel(ms int64) string {
	return time.UnixMilli(ms).Format("01-02")
}
