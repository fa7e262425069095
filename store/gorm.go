package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/flowforge-ai/flowforge/types"
)

// runRecord is the persisted shape of a run. Frontier and outputs are stored
// as JSON blobs so the schema stays portable across dialects.
type runRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	WorkflowID  string `gorm:"index;size:64"`
	Status      string `gorm:"size:32;index"`
	Frontier    string
	Outputs     string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

func (runRecord) TableName() string { return "runs" }

type taskRecord struct {
	ID           string `gorm:"primaryKey;size:64"`
	RunID        string `gorm:"index;size:64"`
	NodeID       string `gorm:"size:128"`
	Status       string `gorm:"size:32"`
	AttemptCount int
	TokensUsed   int
	CostUSD      float64
	Output       string
	Error        string
	StartedAt    time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (taskRecord) TableName() string { return "tasks" }

// GormStore persists runs and tasks through GORM.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm opens a database by driver name ("sqlite", "postgres", "mysql")
// and DSN, migrates the schema, and returns the store.
func OpenGorm(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, types.Errorf(types.ErrInternal, "unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "opening %s database", driver).WithCause(err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing GORM handle and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&runRecord{}, &taskRecord{}); err != nil {
		return nil, types.NewError(types.ErrInternal, "migrating run store schema").WithCause(err)
	}
	return &GormStore{db: db}, nil
}

// SaveRun inserts or updates a run.
func (s *GormStore) SaveRun(ctx context.Context, run *types.Run) error {
	rec, err := toRunRecord(run)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		return types.Errorf(types.ErrInternal, "saving run %s", run.ID).WithCause(err)
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *GormStore) GetRun(ctx context.Context, id string) (*types.Run, error) {
	var rec runRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Errorf(types.ErrRunNotFound, "run %q not found", id)
	}
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "loading run %s", id).WithCause(err)
	}
	return fromRunRecord(&rec)
}

// SaveTask inserts or updates a task.
func (s *GormStore) SaveTask(ctx context.Context, task *types.Task) error {
	rec, err := toTaskRecord(task)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
	if err != nil {
		return types.Errorf(types.ErrInternal, "saving task %s", task.ID).WithCause(err)
	}
	return nil
}

// GetTask returns the task with the given id.
func (s *GormStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	var rec taskRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Errorf(types.ErrRunNotFound, "task %q not found", id)
	}
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "loading task %s", id).WithCause(err)
	}
	return fromTaskRecord(&rec)
}

// TasksForRun returns the run's tasks in creation order.
func (s *GormStore) TasksForRun(ctx context.Context, runID string) ([]*types.Task, error) {
	var recs []taskRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("started_at asc, created_at asc").
		Find(&recs).Error
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "loading tasks for run %s", runID).WithCause(err)
	}
	tasks := make([]*types.Task, 0, len(recs))
	for i := range recs {
		task, err := fromTaskRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// DeleteRun removes a run and all of its tasks.
func (s *GormStore) DeleteRun(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&runRecord{}, "id = ?", id)
	if res.Error != nil {
		return types.Errorf(types.ErrInternal, "deleting run %s", id).WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.Errorf(types.ErrRunNotFound, "run %q not found", id)
	}
	err := s.db.WithContext(ctx).Delete(&taskRecord{}, "run_id = ?", id).Error
	if err != nil {
		return types.Errorf(types.ErrInternal, "deleting tasks for run %s", id).WithCause(err)
	}
	return nil
}

func toRunRecord(run *types.Run) (*runRecord, error) {
	frontier, err := json.Marshal(run.Frontier)
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "encoding frontier for run %s", run.ID).WithCause(err)
	}
	outputs, err := json.Marshal(run.Outputs)
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "encoding outputs for run %s", run.ID).WithCause(err)
	}
	return &runRecord{
		ID:          run.ID,
		WorkflowID:  run.WorkflowID,
		Status:      string(run.Status),
		Frontier:    string(frontier),
		Outputs:     string(outputs),
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}, nil
}

func fromRunRecord(rec *runRecord) (*types.Run, error) {
	run := &types.Run{
		ID:          rec.ID,
		WorkflowID:  rec.WorkflowID,
		Status:      types.RunStatus(rec.Status),
		Error:       rec.Error,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
	if rec.Frontier != "" {
		if err := json.Unmarshal([]byte(rec.Frontier), &run.Frontier); err != nil {
			return nil, types.Errorf(types.ErrInternal, "decoding frontier for run %s", rec.ID).WithCause(err)
		}
	}
	if rec.Outputs != "" {
		if err := json.Unmarshal([]byte(rec.Outputs), &run.Outputs); err != nil {
			return nil, types.Errorf(types.ErrInternal, "decoding outputs for run %s", rec.ID).WithCause(err)
		}
	}
	return run, nil
}

func toTaskRecord(task *types.Task) (*taskRecord, error) {
	output, err := json.Marshal(task.Output)
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "encoding output for task %s", task.ID).WithCause(err)
	}
	return &taskRecord{
		ID:           task.ID,
		RunID:        task.RunID,
		NodeID:       task.NodeID,
		Status:       string(task.Status),
		AttemptCount: task.AttemptCount,
		TokensUsed:   task.TokensUsed,
		CostUSD:      task.CostUSD,
		Output:       string(output),
		Error:        task.Error,
		StartedAt:    task.StartedAt,
		CompletedAt:  task.CompletedAt,
	}, nil
}

func fromTaskRecord(rec *taskRecord) (*types.Task, error) {
	task := &types.Task{
		ID:           rec.ID,
		RunID:        rec.RunID,
		NodeID:       rec.NodeID,
		Status:       types.TaskStatus(rec.Status),
		AttemptCount: rec.AttemptCount,
		TokensUsed:   rec.TokensUsed,
		CostUSD:      rec.CostUSD,
		Error:        rec.Error,
		StartedAt:    rec.StartedAt,
		CompletedAt:  rec.CompletedAt,
	}
	if rec.Output != "" && rec.Output != "null" {
		if err := json.Unmarshal([]byte(rec.Output), &task.Output); err != nil {
			return nil, types.Errorf(types.ErrInternal, "decoding output for task %s", rec.ID).WithCause(err)
		}
	}
	return task, nil
}
