package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens-backend/internal/logger"
	"github.com/dermalens/dermalens-backend/internal/types"
)

type TreatmentPlanRepo interface {
	Create(ctx context.Context, tx *gorm.DB, plans []*types.TreatmentPlan) ([]*types.TreatmentPlan, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, planIDs []uuid.UUID) ([]*types.TreatmentPlan, error)
	GetActiveByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.TreatmentPlan, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, offset, limit int) ([]*types.TreatmentPlan, int64, error)
	CloseOut(ctx context.Context, tx *gorm.DB, planID uuid.UUID, status types.PlanStatus, reason types.AdjustmentReason, notes string, endedAt time.Time) error
	SetCanAdjust(ctx context.Context, tx *gorm.DB, planID uuid.UUID, canAdjust bool) error
}

type treatmentPlanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTreatmentPlanRepo(db *gorm.DB, baseLog *logger.Logger) TreatmentPlanRepo {
	repoLog := baseLog.With("repo", "TreatmentPlanRepo")
	return &treatmentPlanRepo{db: db, log: repoLog}
}

func (pr *treatmentPlanRepo) Create(ctx context.Context, tx *gorm.DB, plans []*types.TreatmentPlan) ([]*types.TreatmentPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	if len(plans) == 0 {
		return []*types.TreatmentPlan{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (pr *treatmentPlanRepo) GetByIDs(ctx context.Context, tx *gorm.DB, planIDs []uuid.UUID) ([]*types.TreatmentPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var results []*types.TreatmentPlan
	if len(planIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", planIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetActiveByUser returns the single active plan, or nil when the user has
// none.
func (pr *treatmentPlanRepo) GetActiveByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.TreatmentPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var plan types.TreatmentPlan
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.PlanStatusActive).
		Order("created_at DESC").
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (pr *treatmentPlanRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, offset, limit int) ([]*types.TreatmentPlan, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var total int64
	if err := transaction.WithContext(ctx).
		Model(&types.TreatmentPlan{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*types.TreatmentPlan
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// CloseOut terminally transitions a plan out of active. It refuses to touch a
// plan that is no longer active so the single-active invariant cannot be
// violated by a racing adjustment.
func (pr *treatmentPlanRepo) CloseOut(ctx context.Context, tx *gorm.DB, planID uuid.UUID, status types.PlanStatus, reason types.AdjustmentReason, notes string, endedAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.TreatmentPlan{}).
		Where("id = ? AND status = ?", planID, types.PlanStatusActive).
		Updates(map[string]interface{}{
			"status":            status,
			"adjustment_reason": reason,
			"adjustment_notes":  notes,
			"actual_end_date":   endedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (pr *treatmentPlanRepo) SetCanAdjust(ctx context.Context, tx *gorm.DB, planID uuid.UUID, canAdjust bool) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	return transaction.WithContext(ctx).
		Model(&types.TreatmentPlan{}).
		Where("id = ?", planID).
		Update("can_adjust", canAdjust).Error
}
