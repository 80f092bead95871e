package store

import (
	"context"

	"gorm.io/gorm"
)

// ListUsers returns every host, oldest first.
func (m *Meetings) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := m.pool.WithDB(ctx, func(db *gorm.DB) error {
		return db.Order("id").Find(&users).Error
	})
	return users, err
}

// ListMeetings returns meetings with their participant and engagement rows.
// limit <= 0 means all.
func (m *Meetings) ListMeetings(ctx context.Context, limit int) ([]Meeting, error) {
	var meetings []Meeting
	err := m.pool.WithDB(ctx, func(db *gorm.DB) error {
		q := db.Preload("Participants").Preload("EngagementSignals").Order("id")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&meetings).Error
	})
	return meetings, err
}

// GetMeeting loads one meeting with its child rows.
func (m *Meetings) GetMeeting(ctx context.Context, id uint) (Meeting, error) {
	var meeting Meeting
	err := m.pool.WithDB(ctx, func(db *gorm.DB) error {
		return db.Preload("Participants").Preload("EngagementSignals").Take(&meeting, id).Error
	})
	return meeting, err
}
