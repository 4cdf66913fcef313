package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/carebridge/referral-watcher/internal/domain"
)

func TestCreateNotification_AppendsAuditRow(t *testing.T) {
	db := newRepoDB(t, &domain.ReferralRecord{}, &domain.NotificationRecord{})
	ctx := context.Background()

	ref := sampleCandidate("A1", "2024-01-01T00:00:00Z").Record(uuid.NewString(), "api")
	if err := CreateReferral(ctx, db, ref); err != nil {
		t.Fatalf("CreateReferral: %v", err)
	}

	rec, err := CreateNotification(ctx, db, ref)
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if rec.ReferralID != ref.ID || rec.MemberID != "A1" || rec.RequestOn != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected audit row: %+v", rec)
	}

	trail, err := ListNotificationsForReferral(ctx, db, ref.ID)
	if err != nil {
		t.Fatalf("ListNotificationsForReferral: %v", err)
	}
	if len(trail) != 1 || trail[0].ID != rec.ID {
		t.Fatalf("unexpected trail: %+v", trail)
	}
}

func TestCreateNotification_Error_MissingReferralFK(t *testing.T) {
	db := newRepoDB(t, &domain.ReferralRecord{}, &domain.NotificationRecord{})
	// The pragma is per-connection; pin the pool so the insert sees it.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	db.Exec("PRAGMA foreign_keys=ON;")

	orphan := &domain.ReferralRecord{ID: uuid.NewString(), MemberID: "ghost", RequestOn: "x"}
	if _, err := CreateNotification(context.Background(), db, orphan); err == nil {
		t.Fatal("expected FK violation for unpersisted referral")
	}
}
