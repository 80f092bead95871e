package types

import (
	"testing"
	"time"
)

func TestParseSession(t *testing.T) {
	payload := `{
		"userProfile": {"email": " host@example.com ", "name": "Host", "email_verified": true},
		"meetingInfo": {"meetingCode": "abc-defg-hij", "meetingTitle": "Weekly", "meetUrl": "https://meet.example.com/abc"},
		"participants": [
			{"name": "Ana", "joinTime": "2025-01-02T10:00:00Z"},
			{"name": "Ben", "joinTime": 1735812000000},
			{"name": "Cy", "joinTime": null}
		],
		"engagement": [{"name": "Ana", "videoOn": true}],
		"durationMs": 5000,
		"extra": {"kept": true}
	}`

	s, err := ParseSession([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.HostEmail() != "host@example.com" {
		t.Fatalf("unexpected host email %q", s.HostEmail())
	}
	if s.MeetingInfo.MeetingCode != "abc-defg-hij" || s.DurationMs != 5000 {
		t.Fatalf("unexpected meeting info %+v", s.MeetingInfo)
	}
	if len(s.Participants) != 3 || len(s.Engagement) != 1 {
		t.Fatalf("unexpected rows: %d participants, %d engagement", len(s.Participants), len(s.Engagement))
	}
	want := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	if !s.Participants[0].JoinTime.Equal(want) || !s.Participants[1].JoinTime.Equal(want) {
		t.Fatalf("join times not normalized: %v %v", s.Participants[0].JoinTime, s.Participants[1].JoinTime)
	}
	if s.Participants[2].JoinTime.Ptr() != nil {
		t.Fatalf("null join time should map to nil")
	}
	if len(s.Raw) == 0 {
		t.Fatalf("raw payload not retained")
	}
}

func TestParseSessionRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "[]", "not json", `{"participants": [{"joinTime": "yesterday"}]}`} {
		if _, err := ParseSession([]byte(in)); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestHostEmailWithoutProfile(t *testing.T) {
	var s *SessionSnapshot
	if s.HostEmail() != "" {
		t.Fatalf("nil snapshot should have no host")
	}
	s = &SessionSnapshot{}
	if s.HostEmail() != "" {
		t.Fatalf("snapshot without profile should have no host")
	}
}
