// Package domain defines the persistence models for referrals and
// notification audit entries, plus the transient types shared between the
// session, source, and polling layers. Persisted types are mapped with GORM
// and form the core data layer of the watcher.
package domain

import (
	"time"
)

// ReferralRecord is the canonical unit of work: one referral observed on the
// portal, persisted at most once per natural key (member_id, request_on).
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - MemberID / RequestOn: the natural key. RequestOn is the portal-asserted
//     creation token and is stored verbatim as an opaque string; it is never
//     parsed as a calendar date.
//   - MemberName, ServiceName, RegionName, County, Plan, PreferredStartDate,
//     Status: portal metadata carried through for operators.
//   - Source: which extraction path produced the row ("api" or "ui").
//   - Notified: set true once the dispatcher has been handed the record.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type ReferralRecord struct {
	ID                 string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MemberID           string    `json:"member_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_referral_member_request,priority:1"`
	RequestOn          string    `json:"request_on" gorm:"type:varchar(64);not null;uniqueIndex:ux_referral_member_request,priority:2"`
	MemberName         string    `json:"member_name"          gorm:"type:varchar(255)"`
	ServiceName        string    `json:"service_name"         gorm:"type:varchar(255)"`
	RegionName         string    `json:"region_name"          gorm:"type:varchar(128)"`
	County             string    `json:"county"               gorm:"type:varchar(128)"`
	Plan               string    `json:"plan"                 gorm:"type:varchar(128)"`
	PreferredStartDate string    `json:"preferred_start_date" gorm:"type:varchar(64)"`
	Status             string    `json:"status"               gorm:"type:varchar(64)"`
	Source             string    `json:"source"               gorm:"type:varchar(16);not null;default:'api'"`
	Notified           bool      `json:"notified"             gorm:"not null;default:false"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName returns the database table name for ReferralRecord.
func (ReferralRecord) TableName() string { return "referrals" }

// NotificationRecord is an append-only audit entry written once per newly
// persisted referral. Rows are never updated or deleted.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ReferralID: foreign key to the referral that triggered the dispatch.
//   - MemberID / RequestOn: denormalized natural key, kept so the audit trail
//     survives even if the referral row is ever purged.
//   - CreatedAt: timestamp managed by GORM.
type NotificationRecord struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ReferralID string    `json:"referral_id" gorm:"type:char(36);not null;index"`
	MemberID   string    `json:"member_id"   gorm:"type:varchar(64);not null"`
	RequestOn  string    `json:"request_on"  gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time `json:"created_at"`

	// Referral is the FK association; audit rows follow their referral.
	Referral ReferralRecord `json:"-" gorm:"foreignKey:ReferralID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for NotificationRecord.
func (NotificationRecord) TableName() string { return "notifications" }

// CandidateReferral is one row returned by an extraction path before
// deduplication. The JSON tags mirror the portal's referral API payload.
type CandidateReferral struct {
	MemberName         string `json:"memberName"`
	MemberID           string `json:"memberID"`
	ServiceName        string `json:"serviceName"`
	RegionName         string `json:"regionName"`
	County             string `json:"county"`
	Plan               string `json:"plan"`
	PreferredStartDate string `json:"preferredStartDate"`
	Status             string `json:"status"`
	RequestOn          string `json:"requestOn"`
}

// Record converts a candidate into a persistable ReferralRecord with the
// given ID and extraction source. Notified starts false; the poller flips it
// after the dispatcher has been handed the record.
func (c CandidateReferral) Record(id, source string) *ReferralRecord {
	return &ReferralRecord{
		ID:                 id,
		MemberID:           c.MemberID,
		RequestOn:          c.RequestOn,
		MemberName:         c.MemberName,
		ServiceName:        c.ServiceName,
		RegionName:         c.RegionName,
		County:             c.County,
		Plan:               c.Plan,
		PreferredStartDate: c.PreferredStartDate,
		Status:             c.Status,
		Source:             source,
		Notified:           false,
	}
}
