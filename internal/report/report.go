// Package report exports stored meetings to an xlsx workbook for inspection.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"meeting-insights-go/internal/actionable"
	"meeting-insights-go/internal/aggregator"
	"meeting-insights-go/internal/store"
)

const (
	SheetUsers        = "Users"
	SheetMeetings     = "Meetings"
	SheetParticipants = "Participants"
	SheetEngagement   = "Engagement"
	SheetSummary      = "Summary"
)

// Source is the read side of the store.
type Source interface {
	ListUsers(ctx context.Context) ([]store.User, error)
	ListMeetings(ctx context.Context, limit int) ([]store.Meeting, error)
}

// Export writes every user and meeting to path and returns the summary
// figures it wrote.
func Export(ctx context.Context, src Source, path string, log *logrus.Entry) (aggregator.Insight, error) {
	log = log.WithField("component", "report").WithField("path", path)
	users, err := src.ListUsers(ctx)
	if err != nil {
		return aggregator.Insight{}, fmt.Errorf("list users: %w", err)
	}
	meetings, err := src.ListMeetings(ctx, 0)
	if err != nil {
		return aggregator.Insight{}, fmt.Errorf("list meetings: %w", err)
	}

	f, ins, err := Build(users, meetings)
	if err != nil {
		return aggregator.Insight{}, err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return aggregator.Insight{}, fmt.Errorf("save workbook: %w", err)
	}
	log.WithFields(logrus.Fields{
		"users":    len(users),
		"meetings": ins.Meetings,
	}).Info("export written")
	return ins, nil
}

// Build lays out the workbook in memory.
func Build(users []store.User, meetings []store.Meeting) (*excelize.File, aggregator.Insight, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetUsers); err != nil {
		return nil, aggregator.Insight{}, err
	}
	for _, name := range []string{SheetMeetings, SheetParticipants, SheetEngagement, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, aggregator.Insight{}, err
		}
	}

	w := &writer{f: f}
	w.rows(SheetUsers, []any{"ID", "Email", "Name", "Given Name", "Family Name", "Locale", "Verified", "Created"}, len(users), func(i int) []any {
		u := users[i]
		return []any{u.ID, u.Email, u.Name, u.GivenName, u.FamilyName, u.Locale, u.EmailVerified, stamp(u.CreatedAt)}
	})
	w.rows(SheetMeetings, []any{"ID", "Code", "Title", "URL", "Host ID", "Timestamp", "Duration (ms)", "Participants", "Bucket"}, len(meetings), func(i int) []any {
		m := meetings[i]
		var host any
		if m.UserID != nil {
			host = *m.UserID
		}
		return []any{m.ID, m.MeetingCode, m.MeetingTitle, m.MeetURL, host, stamp(m.Timestamp), m.DurationMs, len(m.Participants), aggregator.DurationBucket(m.DurationMs)}
	})

	var participants []store.Participant
	var signals []store.EngagementSignal
	for _, m := range meetings {
		participants = append(participants, m.Participants...)
		signals = append(signals, m.EngagementSignals...)
	}
	w.rows(SheetParticipants, []any{"Meeting ID", "Name", "Join Time"}, len(participants), func(i int) []any {
		p := participants[i]
		var joined any
		if p.JoinTime != nil {
			joined = stamp(*p.JoinTime)
		}
		return []any{p.MeetingID, p.Name, joined}
	})
	w.rows(SheetEngagement, []any{"Meeting ID", "Participant", "Video On"}, len(signals), func(i int) []any {
		s := signals[i]
		return []any{s.MeetingID, s.ParticipantName, s.VideoOn}
	})

	ins := aggregator.Aggregate(meetings)
	card := actionable.Generate(ins)
	summary := [][]any{
		{"Metric", "Value"},
		{"Users", len(users)},
		{"Meetings", ins.Meetings},
		{"Participants", ins.Participants},
		{"Avg participants", ins.AvgParticipants},
		{"Total duration (ms)", ins.TotalDurationMs},
		{"Video-on rate", ins.VideoOnRate},
	}
	for _, b := range aggregator.Buckets {
		row := []any{"Meetings " + b, ins.MeetingsByBucket[b]}
		if rate, ok := ins.VideoOnByDuration[b]; ok {
			row = append(row, rate)
		}
		summary = append(summary, row)
	}
	summary = append(summary,
		[]any{"Insight", card.Insight},
		[]any{"Action", card.Action},
		[]any{"Impact", card.Impact},
	)
	for i, row := range summary {
		w.row(SheetSummary, i+1, row)
	}

	if w.err != nil {
		return nil, aggregator.Insight{}, w.err
	}
	return f, ins, nil
}

// writer keeps the first error so the layout code stays linear.
type writer struct {
	f   *excelize.File
	err error
}

func (w *writer) row(sheet string, n int, values []any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("%s row %d: %w", sheet, n, err)
	}
}

func (w *writer) rows(sheet string, header []any, n int, row func(i int) []any) {
	w.row(sheet, 1, header)
	for i := 0; i < n; i++ {
		w.row(sheet, i+2, row(i))
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
