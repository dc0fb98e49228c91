package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens-backend/internal/logger"
	"github.com/dermalens/dermalens-backend/internal/types"
)

type ScoreDeltaRepo interface {
	Create(ctx context.Context, tx *gorm.DB, deltas []*types.ScoreDelta) ([]*types.ScoreDelta, error)
	GetByCurrentScanIDs(ctx context.Context, tx *gorm.DB, scanIDs []uuid.UUID) ([]*types.ScoreDelta, error)
	GetByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.ScoreDelta, error)
}

type scoreDeltaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScoreDeltaRepo(db *gorm.DB, baseLog *logger.Logger) ScoreDeltaRepo {
	repoLog := baseLog.With("repo", "ScoreDeltaRepo")
	return &scoreDeltaRepo{db: db, log: repoLog}
}

func (dr *scoreDeltaRepo) Create(ctx context.Context, tx *gorm.DB, deltas []*types.ScoreDelta) ([]*types.ScoreDelta, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	if len(deltas) == 0 {
		return []*types.ScoreDelta{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&deltas).Error; err != nil {
		return nil, err
	}
	return deltas, nil
}

func (dr *scoreDeltaRepo) GetByCurrentScanIDs(ctx context.Context, tx *gorm.DB, scanIDs []uuid.UUID) ([]*types.ScoreDelta, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	var results []*types.ScoreDelta
	if len(scanIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("current_scan_id IN ?", scanIDs).
		Order("metric_name ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (dr *scoreDeltaRepo) GetByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.ScoreDelta, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}

	var results []*types.ScoreDelta
	query := transaction.WithContext(ctx).
		Joins("JOIN scan ON scan.id = score_delta.current_scan_id").
		Where("scan.user_id = ?", userID).
		Order("score_delta.created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
