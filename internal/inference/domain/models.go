// Package domain contains the touchpoint inference data model: raw partner
// activities and the batch contract that turns them into scored touchpoints.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PartnerActivity is raw secondary evidence: something a partner did that is
// loosely associated with an account, not explicitly tagged to a target.
type PartnerActivity struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	PartnerID string       `gorm:"type:text;not null;index" json:"partner_id"`
	// ActivityType is an open vocabulary (meeting, call, email, demo, ...).
	// Unknown types still score, at the default weight.
	ActivityType string `gorm:"type:text;not null" json:"activity_type"`
	// AccountName is the partner-reported account, matched fuzzily against
	// target account names.
	AccountName string `gorm:"type:text" json:"account_name"`
	// TargetExternalID, when present, pins the activity to a target
	// directly and skips account matching.
	TargetExternalID string     `gorm:"type:text;index" json:"target_external_id,omitempty"`
	Role             string     `gorm:"type:text" json:"role,omitempty"`
	OccurredAt       *time.Time `gorm:"index" json:"occurred_at,omitempty"`
	Payload          datatypes.JSON `json:"payload,omitempty"`
	// Processed marks activities already converted to touchpoints, so
	// batch runs are incremental.
	Processed bool      `gorm:"not null;default:false;index" json:"processed"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (PartnerActivity) TableName() string { return "partner_activities" }

// BatchResult summarizes one inference batch. Skips are counted per reason
// so data-quality issues surface as a summary, never a failure.
type BatchResult struct {
	RunID              string         `json:"run_id"`
	ActivitiesSeen     int            `json:"activities_seen"`
	TouchpointsCreated int            `json:"touchpoints_created"`
	Skipped            map[string]int `json:"skipped,omitempty"`
	Warnings           []string       `json:"warnings,omitempty"`
}

// Skip reasons recorded in BatchResult.Skipped.
const (
	SkipMalformed      = "malformed"
	SkipNoAccountMatch = "no_account_match"
	SkipLowConfidence  = "low_confidence"
	SkipNoTarget       = "target_not_found"
)

// Service converts unprocessed partner activities into inferred touchpoints.
type Service interface {
	// ProcessBatch scores every unprocessed activity and appends the
	// resulting touchpoints. Malformed activities are skipped and counted,
	// never fatal to the batch.
	ProcessBatch(ctx context.Context) (*BatchResult, error)
	// ProcessActivity runs inference for a single activity by ID.
	ProcessActivity(ctx context.Context, activityID snowflake.ID) (*BatchResult, error)
}

var (
	ErrActivityNotFound = errors.New("activity_not_found")
	ErrActivityMalformed = errors.New("activity_malformed")
)
