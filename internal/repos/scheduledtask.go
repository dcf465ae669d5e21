package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

type ScheduledTaskRepo interface {
	Create(ctx context.Context, tx *gorm.DB, task *types.ScheduledTask) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScheduledTask, error)
	ListDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*types.ScheduledTask, error)
	ListPendingByIdentity(ctx context.Context, tx *gorm.DB, id types.Identity) ([]*types.ScheduledTask, error)
	Claim(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error)
	MarkSent(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) error
	MarkAttemptFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time, terminal bool) error
	Cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type scheduledTaskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScheduledTaskRepo(db *gorm.DB, baseLog *logger.Logger) ScheduledTaskRepo {
	return &scheduledTaskRepo{db: db, log: baseLog.With("repo", "ScheduledTaskRepo")}
}

func (r *scheduledTaskRepo) Create(ctx context.Context, tx *gorm.DB, task *types.ScheduledTask) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(task).Error
}

func (r *scheduledTaskRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScheduledTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var task types.ScheduledTask
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *scheduledTaskRepo) ListDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*types.ScheduledTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var tasks []*types.ScheduledTask
	q := transaction.WithContext(ctx).
		Where("status = ? AND due_at <= ?", types.TaskPending, now).
		Order("due_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *scheduledTaskRepo) ListPendingByIdentity(ctx context.Context, tx *gorm.DB, id types.Identity) ([]*types.ScheduledTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var tasks []*types.ScheduledTask
	err := transaction.WithContext(ctx).
		Where("channel = ? AND external_id = ? AND status = ?", id.Channel, id.ExternalID, types.TaskPending).
		Order("due_at asc").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *scheduledTaskRepo) Claim(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	// Stale claims are reclaimable after ten minutes so a crashed tick does
	// not strand the row.
	staleBefore := now.Add(-10 * time.Minute)
	res := transaction.WithContext(ctx).
		Model(&types.ScheduledTask{}).
		Where("id = ? AND status = ? AND (claimed = ? OR last_attempt_at < ?)",
			id, types.TaskPending, false, staleBefore).
		Updates(map[string]interface{}{"claimed": true, "last_attempt_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *scheduledTaskRepo) MarkSent(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.ScheduledTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": types.TaskSent, "claimed": false, "updated_at": now}).Error
}

func (r *scheduledTaskRepo) MarkAttemptFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time, terminal bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	updates := map[string]interface{}{
		"attempts":        gorm.Expr("attempts + 1"),
		"claimed":         false,
		"last_attempt_at": now,
		"updated_at":      now,
	}
	if terminal {
		updates["status"] = types.TaskFailed
	}
	return transaction.WithContext(ctx).
		Model(&types.ScheduledTask{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *scheduledTaskRepo) Cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	// Only a pending task can be cancelled; sent/failed are terminal.
	return transaction.WithContext(ctx).
		Model(&types.ScheduledTask{}).
		Where("id = ? AND status = ?", id, types.TaskPending).
		Updates(map[string]interface{}{"status": types.TaskCancelled, "updated_at": time.Now().UTC()}).Error
}
