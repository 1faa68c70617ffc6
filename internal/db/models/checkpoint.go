package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CursorKind tags the shape of a resumption cursor
type CursorKind string

// Cursor kind constants
const (
	// CursorKindNone marks the zero cursor of a freshly started stage
	CursorKindNone CursorKind = ""
	// CursorKindTimestamp resumes from a last-synced watermark
	CursorKindTimestamp CursorKind = "timestamp"
	// CursorKindLastID resumes from the last processed entity id
	CursorKindLastID CursorKind = "last-id"
	// CursorKindOffset resumes from a page offset
	CursorKindOffset CursorKind = "offset"
)

// StageCursor is the tagged resumption state a porter hands back after each
// page of work. Only the field matching Kind is meaningful; a cursor is
// interpreted together with the checkpoint stage it was recorded against,
// never on its own.
type StageCursor struct {
	Kind   CursorKind `json:"kind"`
	Since  time.Time  `json:"since,omitempty"`
	LastID uint       `json:"last_id,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// IsZero reports whether the cursor carries no resumption state
func (c StageCursor) IsZero() bool {
	return c.Kind == CursorKindNone
}

// TimestampCursor builds a watermark cursor for incremental passes
func TimestampCursor(since time.Time) StageCursor {
	return StageCursor{Kind: CursorKindTimestamp, Since: since}
}

// LastIDCursor builds a cursor resuming after the given entity id
func LastIDCursor(id uint) StageCursor {
	return StageCursor{Kind: CursorKindLastID, LastID: id}
}

// OffsetCursor builds a cursor resuming at the given page offset
func OffsetCursor(offset int) StageCursor {
	return StageCursor{Kind: CursorKindOffset, Offset: offset}
}

// Checkpoint records how far a category has progressed within a job. It is
// keyed by (job, category), created lazily on first progress and only ever
// advanced, never regressed. The final checkpoint of a completed category is
// kept as a high-water mark for later incremental runs.
type Checkpoint struct {
	gorm.Model
	JobID     uint            `json:"job_id" gorm:"not null;uniqueIndex:idx_checkpoint_job_category"`
	Category  string          `json:"category" gorm:"not null;uniqueIndex:idx_checkpoint_job_category"`
	Stage     int             `json:"stage" gorm:"not null"`
	StageData json.RawMessage `json:"stage_data,omitempty" gorm:"type:jsonb"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Cursor decodes the stage data into its tagged cursor form
func (cp *Checkpoint) Cursor() (StageCursor, error) {
	var cursor StageCursor
	if len(cp.StageData) == 0 {
		return cursor, nil
	}
	if err := json.Unmarshal(cp.StageData, &cursor); err != nil {
		return cursor, fmt.Errorf("failed to decode stage data for category %s: %w", cp.Category, err)
	}
	return cursor, nil
}

// SetCursor encodes the tagged cursor into the stage data blob
func (cp *Checkpoint) SetCursor(cursor StageCursor) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("failed to encode stage data for category %s: %w", cp.Category, err)
	}
	cp.StageData = data
	return nil
}

// Validate ensures that the checkpoint data is valid
func (cp *Checkpoint) Validate() error {
	if cp.JobID == 0 {
		return fmt.Errorf("checkpoint job id cannot be zero")
	}
	if cp.Category == "" {
		return fmt.Errorf("checkpoint category cannot be empty")
	}
	if cp.Stage < 0 {
		return fmt.Errorf("checkpoint stage cannot be negative")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new checkpoint
func (cp *Checkpoint) BeforeCreate(_ *gorm.DB) error {
	return cp.Validate()
}
