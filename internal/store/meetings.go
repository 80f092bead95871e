package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"meeting-insights-go/internal/types"
)

// MeetingInput is everything one run persists.
type MeetingInput struct {
	Host         *types.UserProfile
	Info         types.MeetingInfo
	DurationMs   int64
	Payload      []byte
	Participants []types.Participant
	Engagement   []types.Engagement
}

type SaveResult struct {
	MeetingID uint
	HostID    *uint
}

// Meetings is the persistence layer for pipeline runs.
type Meetings struct {
	pool *Pool
	now  func() time.Time
}

func NewMeetings(pool *Pool) *Meetings {
	return &Meetings{pool: pool, now: time.Now}
}

// SetClock replaces the time source.
func (m *Meetings) SetClock(now func() time.Time) { m.now = now }

// Save upserts the host, then inserts the meeting, participants and
// engagement rows in one transaction. A profile without email stores the
// meeting with a null host.
func (m *Meetings) Save(ctx context.Context, in MeetingInput) (SaveResult, error) {
	var res SaveResult
	err := m.pool.WithDB(ctx, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			now := m.now()

			if in.Host != nil && strings.TrimSpace(in.Host.Email) != "" {
				id, err := upsertUser(tx, in.Host, now)
				if err != nil {
					return err
				}
				res.HostID = &id
			}

			payload := in.Payload
			if len(payload) == 0 {
				payload = []byte("{}")
			}
			meeting := Meeting{
				MeetingCode:  in.Info.MeetingCode,
				MeetingTitle: in.Info.MeetingTitle,
				MeetURL:      in.Info.MeetURL,
				UserID:       res.HostID,
				Timestamp:    now,
				DurationMs:   in.DurationMs,
				RawJSON:      datatypes.JSON(payload),
			}
			if err := tx.Omit(clause.Associations).Create(&meeting).Error; err != nil {
				return fmt.Errorf("insert meeting: %w", err)
			}
			res.MeetingID = meeting.ID

			if len(in.Participants) > 0 {
				rows := make([]Participant, 0, len(in.Participants))
				for _, p := range in.Participants {
					rows = append(rows, Participant{MeetingID: meeting.ID, Name: p.Name, JoinTime: p.JoinTime.Ptr()})
				}
				if err := tx.Create(&rows).Error; err != nil {
					return fmt.Errorf("insert participants: %w", err)
				}
			}

			if len(in.Engagement) > 0 {
				rows := make([]EngagementSignal, 0, len(in.Engagement))
				for _, e := range in.Engagement {
					rows = append(rows, EngagementSignal{MeetingID: meeting.ID, ParticipantName: e.Name, VideoOn: e.VideoOn})
				}
				if err := tx.Create(&rows).Error; err != nil {
					return fmt.Errorf("insert engagement signals: %w", err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return SaveResult{}, err
	}
	return res, nil
}

// UpsertUser stores a profile on its own, outside a meeting save.
func (m *Meetings) UpsertUser(ctx context.Context, p *types.UserProfile) (uint, error) {
	var id uint
	err := m.pool.WithDB(ctx, func(db *gorm.DB) error {
		var err error
		id, err = upsertUser(db, p, m.now())
		return err
	})
	return id, err
}

func upsertUser(tx *gorm.DB, p *types.UserProfile, now time.Time) (uint, error) {
	email := strings.TrimSpace(p.Email)
	u := User{
		Email:         email,
		Name:          p.Name,
		Image:         p.Picture,
		GivenName:     p.GivenName,
		FamilyName:    p.FamilyName,
		Locale:        p.Locale,
		EmailVerified: p.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "image", "given_name", "family_name", "locale", "email_verified", "updated_at"}),
	}).Create(&u).Error
	if err != nil {
		return 0, fmt.Errorf("upsert user: %w", err)
	}

	// the conflict path does not reliably report the existing id on every driver
	var stored User
	if err := tx.Select("id").Where("email = ?", email).Take(&stored).Error; err != nil {
		return 0, fmt.Errorf("read back user: %w", err)
	}
	return stored.ID, nil
}
