package features

import (
	"math"
	"sort"

	"pulse-sentinel/internal/domain"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// Count is the length of every derived feature vector.
	Count = 13

	entropyWindow = 7
	entropyBins   = 10
	activityWin   = 5
	heartRateWin  = 5
	sleepWin      = 7
	stressWin     = 7

	weeklySleepTargetHours = 56.0
	highStressLevel        = 0.7

	labelStressLevel = 0.85
	labelSleepDebt   = 10.0
	labelMinARI      = 0.1
)

// Names fixes the feature order shared by training and inference.
var Names = [Count]string{
	"sleep_duration",
	"step_count",
	"resting_heart_rate",
	"stress_level",
	"sleep_onset_time",
	"HR_day_avg",
	"HR_sleep_min",
	"SRE",
	"PAI",
	"HRSI",
	"SDAS",
	"SSR",
	"ARI",
}

const (
	idxStress = 3
	idxSDAS   = 10
	idxARI    = 12
)

type Vector [Count]float64

func (v Vector) Slice() []float64 {
	out := make([]float64, Count)
	copy(out, v[:])
	return out
}

// Row is one training sample with its derived features.
type Row struct {
	Sample   domain.RawSample
	Features Vector
}

// History derives training rows from per-day samples. Samples are ordered by
// (user, day); rolling statistics never cross users. Rows lacking enough history
// for every window, or carrying a non-finite feature, are dropped.
func History(samples []domain.RawSample) []Row {
	ordered := make([]domain.RawSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].UserID != ordered[j].UserID {
			return ordered[i].UserID < ordered[j].UserID
		}
		return ordered[i].DayIndex < ordered[j].DayIndex
	})

	rows := make([]Row, 0, len(ordered))
	for start := 0; start < len(ordered); {
		end := start + 1
		for end < len(ordered) && ordered[end].UserID == ordered[start].UserID {
			end++
		}
		rows = append(rows, userRows(ordered[start:end])...)
		start = end
	}
	return rows
}

func userRows(series []domain.RawSample) []Row {
	n := len(series)
	onset := make([]float64, n)
	steps := make([]float64, n)
	rhr := make([]float64, n)
	sleep := make([]float64, n)
	stress := make([]float64, n)
	for i, s := range series {
		onset[i] = s.SleepOnsetTime
		steps[i] = s.StepCount
		rhr[i] = s.RestingHeartRate
		sleep[i] = s.SleepDuration
		stress[i] = s.StressLevel
	}

	rows := make([]Row, 0, n)
	for i := range series {
		sre := rollingEntropy(onset, i)
		pai := activityIndex(steps, i)
		hrsi := heartRateStability(rhr, i)
		sdas := sleepDebt(sleep, i)
		ssr := stressRatio(stress, i)
		ari := arousalIndex(series[i].HRDayAvg, series[i].HRSleepMin)
		if nonFinite(sre, pai, hrsi, sdas, ssr, ari) {
			continue
		}
		rows = append(rows, Row{
			Sample:   series[i],
			Features: compose(series[i].Metrics(), sre, pai, hrsi, sdas, ssr, ari),
		})
	}
	return rows
}

// Snapshot derives a feature vector from one weekly snapshot. History-dependent
// signals (SRE, PAI, HRSI) have no meaning here and are zero.
func Snapshot(w domain.WeeklyAverages) Vector {
	sdas := math.Max(0, weeklySleepTargetHours-w.SleepDuration*7)
	ssr := 0.0
	if w.StressLevel > highStressLevel {
		ssr = 1.0
	}
	ari := 0.0
	if w.HRDayAvg != 0 {
		ari = arousalIndex(w.HRDayAvg, w.HRSleepMin)
	}
	return compose(w, 0, 0, 0, sdas, ssr, ari)
}

// Label flags a training row as anomalous.
func Label(v Vector) int {
	if v[idxStress] > labelStressLevel || v[idxSDAS] > labelSleepDebt || v[idxARI] < labelMinARI {
		return 1
	}
	return 0
}

func compose(w domain.WeeklyAverages, sre, pai, hrsi, sdas, ssr, ari float64) Vector {
	raw := w.Vector()
	var v Vector
	copy(v[:], raw[:])
	v[7] = sre
	v[8] = pai
	v[9] = hrsi
	v[10] = sdas
	v[11] = ssr
	v[12] = ari
	return v
}

func rollingEntropy(onset []float64, idx int) float64 {
	w := window(onset, idx, entropyWindow)
	if w == nil {
		return math.NaN()
	}
	return histogramEntropy(w, entropyBins)
}

func activityIndex(steps []float64, idx int) float64 {
	w := window(steps, idx, activityWin)
	if w == nil {
		return math.NaN()
	}
	m, sd := stat.MeanStdDev(w, nil)
	return sd / m
}

func heartRateStability(rhr []float64, idx int) float64 {
	w := window(rhr, idx, heartRateWin)
	if w == nil {
		return math.NaN()
	}
	_, sd := stat.MeanStdDev(w, nil)
	return 1 / sd
}

func sleepDebt(sleep []float64, idx int) float64 {
	w := window(sleep, idx, sleepWin)
	if w == nil {
		return math.NaN()
	}
	return math.Max(0, weeklySleepTargetHours-floats.Sum(w))
}

func stressRatio(stress []float64, idx int) float64 {
	w := window(stress, idx, stressWin)
	if w == nil {
		return math.NaN()
	}
	return fractionAbove(w, highStressLevel)
}

func arousalIndex(dayAvg, sleepMin float64) float64 {
	return (dayAvg - sleepMin) / dayAvg
}
