// Package aggregator rolls stored meetings up into engagement statistics.
package aggregator

import (
	"meeting-insights-go/internal/store"
)

// Buckets lists duration buckets in display order.
var Buckets = []string{"0-15m", "15-30m", "30-60m", "60m+"}

type Insight struct {
	Meetings          int                `json:"meetings"`
	Participants      int                `json:"participants"`
	AvgParticipants   float64            `json:"avg_participants"`
	TotalDurationMs   int64              `json:"total_duration_ms"`
	VideoOnRate       float64            `json:"video_on_rate"`
	VideoOnByDuration map[string]float64 `json:"video_on_by_duration"`
	MeetingsByBucket  map[string]int     `json:"meetings_by_bucket"`
}

// DurationBucket maps a meeting length to one of Buckets.
func DurationBucket(ms int64) string {
	minutes := ms / 60000
	switch {
	case minutes < 15:
		return "0-15m"
	case minutes < 30:
		return "15-30m"
	case minutes < 60:
		return "30-60m"
	default:
		return "60m+"
	}
}

// Aggregate expects meetings loaded with their participant and engagement rows.
// Buckets without engagement signals have no video-on rate.
func Aggregate(meetings []store.Meeting) Insight {
	ins := Insight{
		VideoOnByDuration: map[string]float64{},
		MeetingsByBucket:  map[string]int{},
	}
	signals := map[string]int{}
	videoOn := map[string]int{}
	var allSignals, allOn int
	for _, m := range meetings {
		b := DurationBucket(m.DurationMs)
		ins.Meetings++
		ins.MeetingsByBucket[b]++
		ins.Participants += len(m.Participants)
		ins.TotalDurationMs += m.DurationMs
		for _, s := range m.EngagementSignals {
			signals[b]++
			allSignals++
			if s.VideoOn {
				videoOn[b]++
				allOn++
			}
		}
	}
	for b, n := range signals {
		ins.VideoOnByDuration[b] = float64(videoOn[b]) / float64(n)
	}
	if ins.Meetings > 0 {
		ins.AvgParticipants = float64(ins.Participants) / float64(ins.Meetings)
	}
	if allSignals > 0 {
		ins.VideoOnRate = float64(allOn) / float64(allSignals)
	}
	return ins
}
