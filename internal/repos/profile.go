package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

type ProfileRepo interface {
	GetByIdentity(ctx context.Context, tx *gorm.DB, id types.Identity) (*types.UserProfile, error)
	Upsert(ctx context.Context, tx *gorm.DB, profile *types.UserProfile) error
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return &profileRepo{db: db, log: baseLog.With("repo", "ProfileRepo")}
}

func (r *profileRepo) GetByIdentity(ctx context.Context, tx *gorm.DB, id types.Identity) (*types.UserProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var profile types.UserProfile
	err := transaction.WithContext(ctx).
		Where("channel = ? AND external_id = ?", id.Channel, id.ExternalID).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepo) Upsert(ctx context.Context, tx *gorm.DB, profile *types.UserProfile) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "channel"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "birth_date", "birth_time", "birth_place",
				"derived_attributes", "locale", "notification_opt_in", "updated_at",
			}),
		}).
		Create(profile).Error
}
