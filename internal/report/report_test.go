package report

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"meeting-insights-go/internal/logger"
	"meeting-insights-go/internal/store"
	"meeting-insights-go/internal/testutil"
	"meeting-insights-go/internal/types"
)

// readSheet returns the rows of one sheet keyed by lower-cased header.
func readSheet(t *testing.T, path, sheet string) []map[string]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("read %s rows: %v", sheet, err)
	}
	if len(rows) == 0 {
		t.Fatalf("sheet %s has no header", sheet)
	}
	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(r) {
				rec[strings.ToLower(strings.TrimSpace(h))] = r[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

func seededStore(t *testing.T) *store.Meetings {
	t.Helper()
	pool, err := store.NewPool(testutil.OpenTestDB(t), store.PoolOptions{}, logger.Discard().Entry)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	m := store.NewMeetings(pool)
	join := types.FlexTime{Time: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	inputs := []store.MeetingInput{
		{
			Host:         &types.UserProfile{Email: "host@example.com", Name: "Host"},
			Info:         types.MeetingInfo{MeetingCode: "aaa-bbbb-ccc", MeetingTitle: "Intake"},
			DurationMs:   10 * 60000,
			Payload:      []byte(`{}`),
			Participants: []types.Participant{{Name: "Ann", JoinTime: join}, {Name: "Bo"}},
			Engagement:   []types.Engagement{{Name: "Ann", VideoOn: true}, {Name: "Bo", VideoOn: true}},
		},
		{
			Info:         types.MeetingInfo{MeetingCode: "ddd-eeee-fff", MeetingTitle: "Review"},
			DurationMs:   75 * 60000,
			Payload:      []byte(`{}`),
			Participants: []types.Participant{{Name: "Cy"}},
			Engagement:   []types.Engagement{{Name: "Cy", VideoOn: false}},
		},
	}
	for _, in := range inputs {
		if _, err := m.Save(ctx, in); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	return m
}

func TestExport(t *testing.T) {
	src := seededStore(t)
	path := filepath.Join(t.TempDir(), "export.xlsx")

	ins, err := Export(context.Background(), src, path, logger.Discard().Entry)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if ins.Meetings != 2 || ins.Participants != 3 {
		t.Fatalf("unexpected insight %+v", ins)
	}

	users := readSheet(t, path, SheetUsers)
	if len(users) != 1 || users[0]["email"] != "host@example.com" {
		t.Fatalf("unexpected users %v", users)
	}

	meetings := readSheet(t, path, SheetMeetings)
	if len(meetings) != 2 || meetings[0]["code"] != "aaa-bbbb-ccc" || meetings[1]["bucket"] != "60m+" {
		t.Fatalf("unexpected meetings %v", meetings)
	}
	if meetings[1]["host id"] != "" {
		t.Fatalf("meeting without host should have an empty host id, got %q", meetings[1]["host id"])
	}

	participants := readSheet(t, path, SheetParticipants)
	if len(participants) != 3 || participants[0]["join time"] != "2025-03-01T09:00:00Z" {
		t.Fatalf("unexpected participants %v", participants)
	}

	engagement := readSheet(t, path, SheetEngagement)
	if len(engagement) != 3 {
		t.Fatalf("expected 3 engagement rows, got %d", len(engagement))
	}

	summary := readSheet(t, path, SheetSummary)
	values := map[string]string{}
	for _, r := range summary {
		values[r["metric"]] = r["value"]
	}
	if values["Meetings"] != "2" || values["Users"] != "1" {
		t.Fatalf("unexpected summary %v", values)
	}
	if values["Insight"] == "" {
		t.Fatalf("summary should carry an action card")
	}
}

type failingSource struct{}

func (failingSource) ListUsers(ctx context.Context) ([]store.User, error) {
	return nil, store.ErrPoolTimeout
}

func (failingSource) ListMeetings(ctx context.Context, limit int) ([]store.Meeting, error) {
	return nil, nil
}

func TestExportPropagatesStoreErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.xlsx")
	_, err := Export(context.Background(), failingSource{}, path, logger.Discard().Entry)
	if !errors.Is(err, store.ErrPoolTimeout) {
		t.Fatalf("expected pool timeout, got %v", err)
	}
}

func TestBuildEmpty(t *testing.T) {
	f, ins, err := Build(nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer f.Close()
	if ins.Meetings != 0 {
		t.Fatalf("unexpected insight %+v", ins)
	}
	if got := f.GetSheetList(); len(got) != 5 || got[0] != SheetUsers {
		t.Fatalf("unexpected sheets %v", got)
	}
}
