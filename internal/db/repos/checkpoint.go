package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/logger"
)

// CheckpointRepository provides access to checkpoint persistence.
// Checkpoints are keyed by (job, category); stage values only ever move
// forward. The single stage runner driving a category is the only writer for
// its key, so a lower stage arriving here means a caller bug, not a race the
// store has to resolve. Regressing writes are dropped with a warning rather
// than applied (see Upsert).
type CheckpointRepository struct {
	db *gorm.DB
}

// NewCheckpointRepository creates a new checkpoint repository instance
func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// GetByJob returns the latest checkpoint of every category for a job
func (r *CheckpointRepository) GetByJob(ctx context.Context, jobID uint) ([]models.Checkpoint, error) {
	var checkpoints []models.Checkpoint
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("category ASC").
		Find(&checkpoints).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoints: %w", err)
	}
	return checkpoints, nil
}

// Get returns a single category's checkpoint for a job, or nil when the
// category has not recorded progress yet
func (r *CheckpointRepository) Get(ctx context.Context, jobID uint, category string) (*models.Checkpoint, error) {
	var checkpoint models.Checkpoint
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND category = ?", jobID, category).
		First(&checkpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// Upsert inserts the checkpoint if the (job, category) key is new, otherwise
// overwrites stage and stage data. A write carrying a lower stage than the
// stored one is ignored and logged; progress is never rolled back.
func (r *CheckpointRepository) Upsert(ctx context.Context, cp *models.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Checkpoint
		err := tx.Where("job_id = ? AND category = ?", cp.JobID, cp.Category).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(cp).Error; err != nil {
				return fmt.Errorf("failed to create checkpoint: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}

		if cp.Stage < existing.Stage {
			logger.WithFields(map[string]interface{}{
				"job_id":   cp.JobID,
				"category": cp.Category,
				"stored":   existing.Stage,
				"got":      cp.Stage,
			}).Warn("ignoring checkpoint write with regressing stage")
			cp.Stage = existing.Stage
			cp.StageData = existing.StageData
			cp.Model = existing.Model
			return nil
		}

		err = tx.Model(&existing).Updates(map[string]interface{}{
			"stage":      cp.Stage,
			"stage_data": cp.StageData,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to update checkpoint: %w", err)
		}
		cp.Model = existing.Model
		return nil
	})
}
