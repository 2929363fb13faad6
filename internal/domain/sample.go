package domain

import (
	"fmt"
	"math"
)

// RawSample is one day of wearable readings for one subject.
type RawSample struct {
	UserID           string  `json:"user_id"`
	DayIndex         int     `json:"day_index"`
	SleepDuration    float64 `json:"sleep_duration"`
	StepCount        float64 `json:"step_count"`
	RestingHeartRate float64 `json:"resting_heart_rate"`
	StressLevel      float64 `json:"stress_level"`
	SleepOnsetTime   float64 `json:"sleep_onset_time"`
	HRDayAvg         float64 `json:"HR_day_avg"`
	HRSleepMin       float64 `json:"HR_sleep_min"`
}

// MetricNames is the column order shared by weekly snapshots, uploads and the
// first seven model features.
var MetricNames = [7]string{
	"sleep_duration",
	"step_count",
	"resting_heart_rate",
	"stress_level",
	"sleep_onset_time",
	"HR_day_avg",
	"HR_sleep_min",
}

// WeeklyAverages is a single snapshot of the seven raw metrics averaged over a week.
type WeeklyAverages struct {
	SleepDuration    float64 `json:"sleep_duration" jsonschema:"average nightly sleep in hours"`
	StepCount        float64 `json:"step_count" jsonschema:"average daily step count"`
	RestingHeartRate float64 `json:"resting_heart_rate" jsonschema:"resting heart rate in bpm"`
	StressLevel      float64 `json:"stress_level" jsonschema:"stress level between 0 and 1"`
	SleepOnsetTime   float64 `json:"sleep_onset_time" jsonschema:"sleep onset in minutes past midnight"`
	HRDayAvg         float64 `json:"HR_day_avg" jsonschema:"daytime average heart rate in bpm"`
	HRSleepMin       float64 `json:"HR_sleep_min" jsonschema:"minimum heart rate during sleep in bpm"`
}

// DefaultWeeklyAverages are the pre-filled values offered by interactive surfaces.
func DefaultWeeklyAverages() WeeklyAverages {
	return WeeklyAverages{
		SleepDuration:    7.5,
		StepCount:        7000,
		RestingHeartRate: 70,
		StressLevel:      0.3,
		SleepOnsetTime:   20,
		HRDayAvg:         80,
		HRSleepMin:       55,
	}
}

func (w WeeklyAverages) Vector() [7]float64 {
	return [7]float64{
		w.SleepDuration,
		w.StepCount,
		w.RestingHeartRate,
		w.StressLevel,
		w.SleepOnsetTime,
		w.HRDayAvg,
		w.HRSleepMin,
	}
}

func (w WeeklyAverages) Validate() error {
	for i, v := range w.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidInput, MetricNames[i])
		}
	}
	return nil
}

// WeeklyAveragesFromSlice builds a snapshot from an ordered 7-value vector.
func WeeklyAveragesFromSlice(values []float64) (WeeklyAverages, error) {
	if len(values) != len(MetricNames) {
		return WeeklyAverages{}, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidInput, len(MetricNames), len(values))
	}
	w := WeeklyAverages{
		SleepDuration:    values[0],
		StepCount:        values[1],
		RestingHeartRate: values[2],
		StressLevel:      values[3],
		SleepOnsetTime:   values[4],
		HRDayAvg:         values[5],
		HRSleepMin:       values[6],
	}
	if err := w.Validate(); err != nil {
		return WeeklyAverages{}, err
	}
	return w, nil
}

// Metrics returns the sample's seven raw readings as a weekly-shaped snapshot.
func (s RawSample) Metrics() WeeklyAverages {
	return WeeklyAverages{
		SleepDuration:    s.SleepDuration,
		StepCount:        s.StepCount,
		RestingHeartRate: s.RestingHeartRate,
		StressLevel:      s.StressLevel,
		SleepOnsetTime:   s.SleepOnsetTime,
		HRDayAvg:         s.HRDayAvg,
		HRSleepMin:       s.HRSleepMin,
	}
}
