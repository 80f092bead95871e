package store

import (
	"time"

	"gorm.io/datatypes"
)

// User is a meeting host, keyed by email.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	Name          string    `json:"name"`
	Image         string    `json:"image"`
	GivenName     string    `json:"given_name"`
	FamilyName    string    `json:"family_name"`
	Locale        string    `json:"locale"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Meeting is written once per pipeline run. Deleting the host nulls user_id.
type Meeting struct {
	ID                uint               `gorm:"primaryKey" json:"id"`
	MeetingCode       string             `gorm:"column:meeting_code" json:"meeting_code"`
	MeetingTitle      string             `gorm:"column:meeting_title" json:"meeting_title"`
	MeetURL           string             `gorm:"column:meet_url" json:"meet_url"`
	UserID            *uint              `gorm:"column:user_id;index" json:"user_id"`
	User              *User              `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Timestamp         time.Time          `gorm:"column:timestamp;not null" json:"timestamp"`
	DurationMs        int64              `gorm:"column:duration_ms" json:"duration_ms"`
	RawJSON           datatypes.JSON     `gorm:"column:raw_json;type:jsonb" json:"raw_json"`
	Participants      []Participant      `gorm:"constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	EngagementSignals []EngagementSignal `gorm:"constraint:OnDelete:CASCADE" json:"engagement_signals,omitempty"`
}

func (Meeting) TableName() string { return "meetings" }

type Participant struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	MeetingID uint       `gorm:"column:meeting_id;not null;index" json:"meeting_id"`
	Name      string     `json:"name"`
	JoinTime  *time.Time `gorm:"column:join_time" json:"join_time"`
}

func (Participant) TableName() string { return "participants" }

type EngagementSignal struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	MeetingID       uint   `gorm:"column:meeting_id;not null;index" json:"meeting_id"`
	ParticipantName string `gorm:"column:participant_name" json:"participant_name"`
	VideoOn         bool   `gorm:"column:video_on" json:"video_on"`
}

func (EngagementSignal) TableName() string { return "engagement_signals" }
