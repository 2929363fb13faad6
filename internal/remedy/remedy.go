package remedy

import "pulse-sentinel/internal/domain"

// TriageThreshold is the number of flagged factors at which general
// professional advice is appended.
const TriageThreshold = 3

const (
	GeneralFactor      = "General Advice"
	GeneralAdvice      = "Multiple anomalies detected. It's strongly recommended to consult a healthcare professional."
	GeneralWellnessTip = "No specific factor identified. Try general wellness tips: regular sleep, exercise, and stress management."
)

// band is one branch of a rule; the first band whose test matches wins.
type band struct {
	test   func(float64) bool
	advice string
}

type rule struct {
	factor string
	value  func(domain.WeeklyAverages) float64
	bands  []band
}

func below(limit float64) func(float64) bool { return func(v float64) bool { return v < limit } }
func above(limit float64) func(float64) bool { return func(v float64) bool { return v > limit } }
func atLeast(limit float64) func(float64) bool { return func(v float64) bool { return v >= limit } }

var rules = []rule{
	{
		factor: "Sleep duration",
		value:  func(w domain.WeeklyAverages) float64 { return w.SleepDuration },
		bands: []band{
			{below(6), "You're severely sleep-deprived. Prioritize 7-9 hours. Seek help if persistent."},
			{below(7), "Try to increase sleep time to 7-9 hours with a fixed routine. Avoid caffeine late."},
			{above(9), "Oversleeping may signal fatigue or stress. Try regulating sleep-wake cycles."},
		},
	},
	{
		factor: "Step count",
		value:  func(w domain.WeeklyAverages) float64 { return w.StepCount },
		bands: []band{
			{below(3000), "Extremely low activity. Try 10-min daily walks or active commuting."},
			{below(5000), "Try to reach 5k-8k steps daily through short breaks or light exercises."},
			{above(20000), "Excessive activity may indicate stress or overtraining. Ensure you're recovering well."},
		},
	},
	{
		factor: "Resting heart rate",
		value:  func(w domain.WeeklyAverages) float64 { return w.RestingHeartRate },
		bands: []band{
			{below(50), "Unusually low RHR. May be fine for athletes; otherwise, consult a doctor."},
			{above(90), "High RHR could mean stress, dehydration, or illness. Try relaxing and hydrating."},
		},
	},
	{
		factor: "Stress level",
		value:  func(w domain.WeeklyAverages) float64 { return w.StressLevel },
		bands: []band{
			{atLeast(0.8), "Critical stress levels detected. Seek support, therapy, or immediate mindfulness practices."},
			{atLeast(0.5), "High stress. Try breathing exercises, screen breaks, or physical activity."},
		},
	},
	{
		factor: "Sleep onset time",
		value:  func(w domain.WeeklyAverages) float64 { return w.SleepOnsetTime },
		bands: []band{
			{above(60), "You take too long to fall asleep. Avoid caffeine, screens, and heavy meals before bed."},
			{below(5), "Falling asleep instantly may indicate sleep deprivation."},
		},
	},
	{
		factor: "Daytime average heart rate",
		value:  func(w domain.WeeklyAverages) float64 { return w.HRDayAvg },
		bands: []band{
			{below(55), "Very low. If you're not an athlete, consult a cardiologist."},
			{above(100), "High daytime HR. Try relaxation, hydration, and stress management."},
		},
	},
	{
		factor: "Minimum sleep heart rate",
		value:  func(w domain.WeeklyAverages) float64 { return w.HRSleepMin },
		bands: []band{
			{below(40), "Unusually low during sleep. Could be normal or may need evaluation."},
			{above(75), "Elevated during sleep. Avoid late meals, alcohol, and stress before bed."},
		},
	},
}

// Evaluate returns one remedy per metric outside its healthy band, in metric
// order, followed by general advice when TriageThreshold or more are flagged.
func Evaluate(w domain.WeeklyAverages) []domain.Remedy {
	var out []domain.Remedy
	for _, r := range rules {
		v := r.value(w)
		for _, b := range r.bands {
			if b.test(v) {
				out = append(out, domain.Remedy{Factor: r.factor, Advice: b.advice})
				break
			}
		}
	}
	if len(out) >= TriageThreshold {
		out = append(out, domain.Remedy{Factor: GeneralFactor, Advice: GeneralAdvice})
	}
	return out
}

// ForTier attaches remedies only to minor anomalies. Major anomalies carry the
// consult-a-doctor headline instead; none needs nothing.
func ForTier(tier domain.Tier, w domain.WeeklyAverages) []domain.Remedy {
	if tier != domain.TierMinor {
		return nil
	}
	out := Evaluate(w)
	if len(out) == 0 {
		return []domain.Remedy{{Factor: GeneralFactor, Advice: GeneralWellnessTip}}
	}
	return out
}
