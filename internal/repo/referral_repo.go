// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for ReferralRecord,
// including the idempotent natural-key lookup/insert pair the deduplication
// engine is built on.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/carebridge/referral-watcher/internal/domain"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates a referral already exists for the given natural key
// (member_id, request_on).
var ErrDuplicate = errors.New("duplicate referral")

// GetReferralByKey returns the referral with the given natural key, or
// ErrNotFound. This is the lookup half of the idempotent upsert: callers
// check here before inserting so re-running an interrupted cycle is safe.
func GetReferralByKey(ctx context.Context, db *gorm.DB, memberID, requestOn string) (*domain.ReferralRecord, error) {
	var rec domain.ReferralRecord
	err := db.WithContext(ctx).
		Where("member_id = ? AND request_on = ?", memberID, requestOn).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateReferral inserts a referral and returns ErrDuplicate on a unique
// violation of the natural key. The store-level unique index is the final
// arbiter: even if two extraction paths race past GetReferralByKey, only one
// insert wins.
func CreateReferral(ctx context.Context, db *gorm.DB, rec *domain.ReferralRecord) error {
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// MarkNotified flips the notified flag after the dispatcher has been handed
// the record. Missing rows are reported as ErrNotFound rather than silently
// matching zero rows.
func MarkNotified(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.ReferralRecord{}).
		Where("id = ?", id).
		Update("notified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnnotified returns persisted referrals whose dispatch never completed
// (crash between persist and notify). The poller re-dispatches these at the
// start of the next cycle.
func ListUnnotified(ctx context.Context, db *gorm.DB) ([]domain.ReferralRecord, error) {
	var recs []domain.ReferralRecord
	err := db.WithContext(ctx).
		Where("notified = ?", false).
		Order("created_at ASC").
		Find(&recs).Error
	return recs, err
}

// CountReferrals returns the total number of persisted referrals.
func CountReferrals(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.ReferralRecord{}).Count(&n).Error
	return n, err
}

// ListReferralsPage returns a page of referrals, newest first, for the
// operator listing endpoint.
func ListReferralsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ReferralRecord, error) {
	var recs []domain.ReferralRecord
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
