package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/types"
)

// settingsFile is the payload file within a job's package directory
const settingsFile = "settings.jsonl"

// settingRecord is the wire form of one portal setting in the package
type settingRecord struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SettingsPorter is the reference porter. It moves portal settings as JSON
// lines in the job's package directory: exports page by last-id cursor
// (carrying an incremental watermark), imports page by offset cursor. The
// remaining categories plug in through the same Porter interface.
type SettingsPorter struct {
	db      *gorm.DB
	baseDir string
}

// NewSettingsPorter creates a settings porter writing packages under baseDir
func NewSettingsPorter(db *gorm.DB, baseDir string) *SettingsPorter {
	return &SettingsPorter{db: db, baseDir: baseDir}
}

// Category implements Porter
func (p *SettingsPorter) Category() string { return CategorySettings }

// Dependencies implements Porter; settings depend on nothing
func (p *SettingsPorter) Dependencies() []string { return nil }

// Stages implements Porter; settings move in a single stage
func (p *SettingsPorter) Stages() int { return 1 }

// RunStage implements Porter
func (p *SettingsPorter) RunStage(ctx context.Context, job *models.Job, stage int, cursor models.StageCursor, pageSize int) (StageResult, error) {
	if stage != 0 {
		return StageResult{}, fmt.Errorf("settings porter has no stage %d", stage)
	}
	switch job.Type {
	case models.JobTypeExport:
		return p.exportPage(ctx, job, cursor, pageSize)
	case models.JobTypeImport:
		return p.importPage(ctx, job, cursor, pageSize)
	default:
		return StageResult{}, fmt.Errorf("unsupported job type %s", job.Type)
	}
}

func (p *SettingsPorter) packagePath(job *models.Job) string {
	base := p.baseDir
	if cfg, err := types.ParseJobConfig(job.Config); err == nil && cfg.TargetDir != "" {
		base = cfg.TargetDir
	}
	return filepath.Join(base, job.PackageRef, settingsFile)
}

func (p *SettingsPorter) exportPage(ctx context.Context, job *models.Job, cursor models.StageCursor, pageSize int) (StageResult, error) {
	var since time.Time
	var lastID uint
	switch cursor.Kind {
	case models.CursorKindNone:
	case models.CursorKindTimestamp:
		since = cursor.Since
	case models.CursorKindLastID:
		lastID = cursor.LastID
		since = cursor.Since // watermark carried across pages
	default:
		return StageResult{}, fmt.Errorf("unexpected cursor kind %q for settings export", cursor.Kind)
	}

	var rows []models.PortalSetting
	query := p.db.WithContext(ctx).
		Where("portal_id = ? AND id > ?", job.PortalID, lastID)
	if !since.IsZero() {
		query = query.Where("updated_at > ?", since)
	}
	if err := query.Order("id ASC").Limit(pageSize).Find(&rows).Error; err != nil {
		return StageResult{}, fmt.Errorf("failed to read portal settings: %w", err)
	}

	if len(rows) == 0 {
		return StageResult{Completed: true, Cursor: cursor}, nil
	}

	if err := p.appendRecords(job, rows); err != nil {
		return StageResult{}, err
	}

	next := models.LastIDCursor(rows[len(rows)-1].ID)
	next.Since = since
	return StageResult{
		Completed: len(rows) < pageSize,
		Cursor:    next,
		Records:   len(rows),
	}, nil
}

func (p *SettingsPorter) appendRecords(job *models.Job, rows []models.PortalSetting) error {
	path := p.packagePath(job)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create package directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open package file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(settingRecord{Name: row.Name, Value: row.Value}); err != nil {
			return fmt.Errorf("failed to write setting %s: %w", row.Name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush package file: %w", err)
	}
	return nil
}

func (p *SettingsPorter) importPage(ctx context.Context, job *models.Job, cursor models.StageCursor, pageSize int) (StageResult, error) {
	offset := 0
	switch cursor.Kind {
	case models.CursorKindNone:
	case models.CursorKindTimestamp:
		// incremental seed has no meaning when reading a package; start fresh
	case models.CursorKindOffset:
		offset = cursor.Offset
	default:
		return StageResult{}, fmt.Errorf("unexpected cursor kind %q for settings import", cursor.Kind)
	}

	lines, err := p.readPackage(job)
	if err != nil {
		return StageResult{}, err
	}

	end := offset + pageSize
	if end > len(lines) {
		end = len(lines)
	}

	var transient *TransientError
	records := 0
	for i := offset; i < end; i++ {
		var rec settingRecord
		if err := json.Unmarshal(lines[i], &rec); err != nil {
			if transient == nil {
				transient = &TransientError{Unit: fmt.Sprintf("settings line %d", i+1), Err: err}
			}
			continue
		}
		setting := models.PortalSetting{PortalID: job.PortalID, Name: rec.Name, Value: rec.Value}
		err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "portal_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&setting).Error
		if err != nil {
			return StageResult{}, fmt.Errorf("failed to import setting %s: %w", rec.Name, err)
		}
		records++
	}

	result := StageResult{
		Completed: end >= len(lines),
		Cursor:    models.OffsetCursor(end),
		Records:   records,
	}
	if transient != nil {
		return result, transient
	}
	return result, nil
}

func (p *SettingsPorter) readPackage(job *models.Job) ([][]byte, error) {
	f, err := os.Open(p.packagePath(job))
	if err != nil {
		return nil, fmt.Errorf("failed to open package file: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read package file: %w", err)
	}
	return lines, nil
}
