// services/moderation.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"growth-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultEscalationThreshold is the distinct-reporter count that flips an
// active case to reported automatically.
const DefaultEscalationThreshold = 5

// legalTransitions enumerates administrator-driven status moves. The
// automatic active → reported escalation is handled separately in Report.
var legalTransitions = map[models.ModerationStatus][]models.ModerationStatus{
	models.ModerationStatusPending:  {models.ModerationStatusActive, models.ModerationStatusHidden},
	models.ModerationStatusActive:   {models.ModerationStatusHidden, models.ModerationStatusReported},
	models.ModerationStatusReported: {models.ModerationStatusActive, models.ModerationStatusHidden},
}

// ModerationQueue runs the per-subject abuse state machine and gates which
// subjects still feed the aggregator.
type ModerationQueue struct {
	DB        *gorm.DB
	Threshold int64
}

func NewModerationQueue(db *gorm.DB) *ModerationQueue {
	return &ModerationQueue{DB: db, Threshold: DefaultEscalationThreshold}
}

// Report registers one report from reporterID against the subject. Repeat
// reports from the same reporter are no-ops. The first time the distinct
// count crosses the threshold while the case is active, the case escalates to
// reported; the trigger never re-fires.
func (m *ModerationQueue) Report(subjectID string, subjectType models.SubjectType, reporterID string) error {
	if subjectID == "" {
		return &ValidationError{Field: "subject_id", Reason: "required"}
	}
	if reporterID == "" {
		return &ValidationError{Field: "reporter_id", Reason: "required"}
	}

	return m.DB.Transaction(func(tx *gorm.DB) error {
		moderationCase := models.ModerationCase{
			SubjectID:   subjectID,
			SubjectType: subjectType,
			Status:      models.ModerationStatusActive,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&moderationCase).Error; err != nil {
			return &TransientStorageError{Op: "case ensure", Err: err}
		}

		report := models.ModerationReport{SubjectID: subjectID, ReporterID: reporterID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&report)
		if res.Error != nil {
			return &TransientStorageError{Op: "report insert", Err: res.Error}
		}
		if res.RowsAffected == 0 {
			// same reporter, same subject: count unchanged
			return nil
		}

		err := tx.Model(&models.ModerationCase{}).
			Where("subject_id = ?", subjectID).
			UpdateColumn("report_count", gorm.Expr("report_count + 1")).Error
		if err != nil {
			return &TransientStorageError{Op: "report count", Err: err}
		}

		// one-way escalation
		res = tx.Model(&models.ModerationCase{}).
			Where("subject_id = ? AND status = ? AND escalated = ? AND report_count >= ?",
				subjectID, models.ModerationStatusActive, false, m.Threshold).
			Updates(map[string]interface{}{
				"status":    models.ModerationStatusReported,
				"escalated": true,
			})
		if res.Error != nil {
			return &TransientStorageError{Op: "escalation", Err: res.Error}
		}
		if res.RowsAffected > 0 {
			log.Printf("🚨 Subject %s escalated to reported (%d distinct reports)", subjectID, m.Threshold)
		}
		return nil
	})
}

// Resolve applies an administrator decision. Reported cases are never
// self-resolving; this is the only way out of them.
func (m *ModerationQueue) Resolve(subjectID string, decision models.ModerationStatus, decidedBy, notes string) (*models.ModerationCase, error) {
	var moderationCase models.ModerationCase

	err := m.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subject_id = ?", subjectID).First(&moderationCase).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return &TransientStorageError{Op: "case lookup", Err: err}
		}

		if !transitionAllowed(moderationCase.Status, decision) {
			return &ValidationError{
				Field:  "decision",
				Reason: fmt.Sprintf("illegal transition %s → %s", moderationCase.Status, decision),
			}
		}

		now := time.Now()
		moderationCase.Status = decision
		moderationCase.DecidedBy = &decidedBy
		moderationCase.DecidedAt = &now
		if notes != "" {
			moderationCase.Notes = notes
		}
		if err := tx.Save(&moderationCase).Error; err != nil {
			return &TransientStorageError{Op: "case save", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("⚖️  Moderation decision: subject=%s status=%s by=%s", subjectID, decision, decidedBy)
	return &moderationCase, nil
}

// Delete removes the subject from all future aggregation. Terminal and legal
// from any status; historical counters already committed are untouched.
func (m *ModerationQueue) Delete(subjectID, decidedBy string) error {
	res := m.DB.Where("subject_id = ?", subjectID).Delete(&models.ModerationCase{})
	if res.Error != nil {
		return &TransientStorageError{Op: "case delete", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		// no case yet: record a tombstone so the subject stays out of aggregation
		tombstone := models.ModerationCase{
			SubjectID:   subjectID,
			SubjectType: models.SubjectTypeReview,
			Status:      models.ModerationStatusHidden,
		}
		if err := m.DB.Create(&tombstone).Error; err != nil {
			return &TransientStorageError{Op: "tombstone create", Err: err}
		}
		if err := m.DB.Where("subject_id = ?", subjectID).Delete(&models.ModerationCase{}).Error; err != nil {
			return &TransientStorageError{Op: "tombstone delete", Err: err}
		}
	}
	log.Printf("🗑️  Subject deleted from aggregation: %s (by %s)", subjectID, decidedBy)
	return nil
}

// IsCountable reports whether a subject may still feed the aggregator. A
// subject with no case is visible by default; hidden and soft-deleted
// subjects are not.
func (m *ModerationQueue) IsCountable(subjectID string) (bool, error) {
	if subjectID == "" {
		return true, nil
	}

	var moderationCase models.ModerationCase
	err := m.DB.Unscoped().Where("subject_id = ?", subjectID).First(&moderationCase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, &TransientStorageError{Op: "visibility check", Err: err}
	}

	if moderationCase.DeletedAt.Valid {
		return false, nil
	}
	return moderationCase.Status != models.ModerationStatusHidden, nil
}

// GetCase returns the case for a subject
func (m *ModerationQueue) GetCase(subjectID string) (*models.ModerationCase, error) {
	var moderationCase models.ModerationCase
	err := m.DB.Where("subject_id = ?", subjectID).First(&moderationCase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransientStorageError{Op: "case lookup", Err: err}
	}
	return &moderationCase, nil
}

func transitionAllowed(from, to models.ModerationStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
