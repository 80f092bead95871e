package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role tells the primary (local) stream apart from remote participants.
type Role string

const (
	RolePrimary Role = "primary"
	RoleRemote  Role = "remote"
)

// UploadedStream is one audio part of a submission. It lives for one run only.
type UploadedStream struct {
	Role        Role   `json:"role"`
	Field       string `json:"field"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// UserProfile is the host profile carried in the session snapshot.
type UserProfile struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Locale        string `json:"locale"`
	EmailVerified bool   `json:"email_verified"`
}

type MeetingInfo struct {
	MeetingCode  string `json:"meetingCode"`
	MeetingTitle string `json:"meetingTitle"`
	MeetURL      string `json:"meetUrl"`
}

type Participant struct {
	Name     string   `json:"name"`
	JoinTime FlexTime `json:"joinTime"`
}

type Engagement struct {
	Name    string `json:"name"`
	VideoOn bool   `json:"videoOn"`
}

// SessionSnapshot is the client-captured meetingData part. Raw keeps the
// exact submitted document so it can be stored verbatim.
type SessionSnapshot struct {
	UserProfile  *UserProfile    `json:"userProfile,omitempty"`
	MeetingInfo  MeetingInfo     `json:"meetingInfo"`
	Participants []Participant   `json:"participants,omitempty"`
	Engagement   []Engagement    `json:"engagement,omitempty"`
	DurationMs   int64           `json:"durationMs"`
	Raw          json.RawMessage `json:"-"`
}

// HostEmail returns the host's email or "" when the profile has none.
func (s *SessionSnapshot) HostEmail() string {
	if s == nil || s.UserProfile == nil {
		return ""
	}
	return strings.TrimSpace(s.UserProfile.Email)
}

// ParseSession decodes a meetingData payload. The payload must be a JSON object.
func ParseSession(data []byte) (*SessionSnapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("meetingData must be a JSON object")
	}
	var s SessionSnapshot
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, fmt.Errorf("decode meetingData: %w", err)
	}
	s.Raw = append(json.RawMessage(nil), trimmed...)
	return &s, nil
}

// AnalysisResult holds the transcript and the three derived texts.
type AnalysisResult struct {
	Transcript      string `json:"transcript"`
	Summary         string `json:"summary"`
	StructuredNote  string `json:"structured_note"`
	Recommendations string `json:"recommendations"`
}

// OriginalLocator records where one submitted stream was published.
type OriginalLocator struct {
	Field   string `json:"field"`
	Key     string `json:"key"`
	Locator string `json:"locator,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AudioLocators is embedded into the stored meeting payload.
type AudioLocators struct {
	Merged    string            `json:"merged"`
	Originals []OriginalLocator `json:"originals"`
}

// FlexTime accepts RFC3339 strings, epoch milliseconds, or null.
type FlexTime struct {
	time.Time
}

func (f *FlexTime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		f.Time = time.Time{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, unq); err == nil {
				f.Time = t
				return nil
			}
		}
		if ms, err := strconv.ParseInt(unq, 10, 64); err == nil {
			f.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		return fmt.Errorf("unrecognized time %q", unq)
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("unrecognized time %s", s)
	}
	f.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

func (f FlexTime) MarshalJSON() ([]byte, error) {
	if f.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(f.Time.Format(time.RFC3339Nano))
}

// Ptr returns nil for the zero time so it stores as NULL.
func (f FlexTime) Ptr() *time.Time {
	if f.IsZero() {
		return nil
	}
	t := f.Time
	return &t
}
