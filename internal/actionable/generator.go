// Package actionable turns engagement statistics into a single recommendation.
package actionable

import (
	"fmt"

	"meeting-insights-go/internal/aggregator"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// lowVideoRate is the camera-on share below which a bucket is flagged.
const lowVideoRate = 0.4

func Generate(ins aggregator.Insight) ActionCard {
	worst := ""
	lowest := 1.0
	for _, b := range aggregator.Buckets {
		rate, ok := ins.VideoOnByDuration[b]
		if ok && rate < lowest {
			lowest = rate
			worst = b
		}
	}
	if worst != "" && lowest < lowVideoRate {
		return ActionCard{
			Insight: fmt.Sprintf("Low camera engagement in %s meetings (%.0f%%)", worst, lowest*100),
			Action:  "Shorten sessions or add breaks; share an agenda ahead of long meetings",
			Impact:  "More participants on camera and better transcript attribution",
		}
	}
	if ins.Meetings == 0 {
		return ActionCard{
			Insight: "No meetings recorded yet",
			Action:  "Record a meeting with metadata to start collecting engagement",
			Impact:  "None until data exists",
		}
	}
	return ActionCard{
		Insight: "No strong disengagement pattern detected",
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}
