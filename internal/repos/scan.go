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

type ScanRepo interface {
	Create(ctx context.Context, tx *gorm.DB, scans []*types.Scan) ([]*types.Scan, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, scanIDs []uuid.UUID) ([]*types.Scan, error)
	GetMostRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Scan, error)
	GetLatestCompletedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.Scan, error)
	GetPreviousCompleted(ctx context.Context, tx *gorm.DB, userID uuid.UUID, before time.Time, excludeID uuid.UUID) (*types.Scan, error)
	MarkBaseline(ctx context.Context, tx *gorm.DB, scanID uuid.UUID) error
	CountCompletedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, offset, limit int) ([]*types.Scan, int64, error)
	ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.Scan, error)
	SaveAnalysis(ctx context.Context, tx *gorm.DB, scan *types.Scan) error
	MarkFailed(ctx context.Context, tx *gorm.DB, scanID uuid.UUID, errorMessage string, retakeRequired bool, retakeReasons []byte) error
}

type scanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScanRepo(db *gorm.DB, baseLog *logger.Logger) ScanRepo {
	repoLog := baseLog.With("repo", "ScanRepo")
	return &scanRepo{db: db, log: repoLog}
}

func (sr *scanRepo) Create(ctx context.Context, tx *gorm.DB, scans []*types.Scan) ([]*types.Scan, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	if len(scans) == 0 {
		return []*types.Scan{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&scans).Error; err != nil {
		return nil, err
	}
	return scans, nil
}

func (sr *scanRepo) GetByIDs(ctx context.Context, tx *gorm.DB, scanIDs []uuid.UUID) ([]*types.Scan, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var results []*types.Scan
	if len(scanIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", scanIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetMostRecentByUser returns the newest scan of any status, or nil when the
// user has never scanned.
func (sr *scanRepo) GetMostRecentByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Scan, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var scan types.Scan
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("scan_date DESC").
		First(&scan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

func (sr *scanRepo) GetLatestCompletedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.Scan, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var results []*types.Scan
	query := transaction.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.ScanStatusCompleted).
		Order("scan_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetPreviousCompleted returns the nearest completed scan strictly before the
// given date, skipping failed scans in between. Nil when none exists.
func (sr *scanRepo) GetPreviousCompleted(ctx context.Context, tx *gorm.DB, userID uuid.UUID, before time.Time, excludeID uuid.UUID) (*types.Scan, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var scan types.Scan
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND status = ? AND scan_date < ? AND id <> ?",
			userID, types.ScanStatusCompleted, before, excludeID).
		Order("scan_date DESC").
		First(&scan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

// MarkBaseline flags a scan as the anchor of a treatment plan.
func (sr *scanRepo) MarkBaseline(ctx context.Context, tx *gorm.DB, scanID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Scan{}).
		Where("id = ?", scanID).
		Update("is_baseline", true).Error
}

func (sr *scanRepo) CountCompletedByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Scan{}).
		Where("user_id = ? AND status = ?", userID, types.ScanStatusCompleted).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (sr *scanRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, offset, limit int) ([]*types.Scan, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var total int64
	if err := transaction.WithContext(ctx).
		Model(&types.Scan{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*types.Scan
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("scan_date DESC").
		Offset(offset).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// ClaimNextPending picks the oldest pending scan whose user has nothing in
// flight and flips it to processing. The conditional update makes the claim
// safe against concurrent workers; nil means nothing claimable right now.
func (sr *scanRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB) (*types.Scan, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var scan types.Scan
	err := transaction.WithContext(ctx).
		Where("status = ?", types.ScanStatusPending).
		Where("user_id NOT IN (?)", transaction.
			Model(&types.Scan{}).
			Select("user_id").
			Where("status = ?", types.ScanStatusProcessing)).
		Order("scan_date ASC").
		First(&scan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res := transaction.WithContext(ctx).
		Model(&types.Scan{}).
		Where("id = ? AND status = ?", scan.ID, types.ScanStatusPending).
		Update("status", types.ScanStatusProcessing)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	scan.Status = types.ScanStatusProcessing
	return &scan, nil
}

// SaveAnalysis persists the full analysis outcome carried on the scan struct.
func (sr *scanRepo) SaveAnalysis(ctx context.Context, tx *gorm.DB, scan *types.Scan) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	return transaction.WithContext(ctx).Save(scan).Error
}

func (sr *scanRepo) MarkFailed(ctx context.Context, tx *gorm.DB, scanID uuid.UUID, errorMessage string, retakeRequired bool, retakeReasons []byte) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	updates := map[string]interface{}{
		"status":          types.ScanStatusFailed,
		"error_message":   errorMessage,
		"retake_required": retakeRequired,
	}
	if len(retakeReasons) > 0 {
		updates["retake_reasons"] = retakeReasons
	}

	return transaction.WithContext(ctx).
		Model(&types.Scan{}).
		Where("id = ?", scanID).
		Updates(updates).Error
}
