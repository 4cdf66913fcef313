// NotificationRecord persistence.
//
// Notification audit rows are append-only: there is deliberately no update
// or delete helper in this file.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carebridge/referral-watcher/internal/domain"
)

// CreateNotification appends one audit row for a newly persisted referral.
func CreateNotification(ctx context.Context, db *gorm.DB, ref *domain.ReferralRecord) (*domain.NotificationRecord, error) {
	rec := &domain.NotificationRecord{
		ID:         uuid.NewString(),
		ReferralID: ref.ID,
		MemberID:   ref.MemberID,
		RequestOn:  ref.RequestOn,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// ListNotificationsForReferral returns the audit trail for one referral,
// oldest first.
func ListNotificationsForReferral(ctx context.Context, db *gorm.DB, referralID string) ([]domain.NotificationRecord, error) {
	var recs []domain.NotificationRecord
	err := db.WithContext(ctx).
		Where("referral_id = ?", referralID).
		Order("created_at ASC").
		Find(&recs).Error
	return recs, err
}
