package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens-backend/internal/apierr"
	"github.com/dermalens/dermalens-backend/internal/logger"
	"github.com/dermalens/dermalens-backend/internal/repos"
	"github.com/dermalens/dermalens-backend/internal/types"
)

const (
	// Minimum days between scans. Scores move slowly; more frequent scans
	// produce noise, not signal.
	DefaultMinScanIntervalDays = 7

	uploadURLTTL = 15 * time.Minute
)

type PresignedUpload struct {
	ScanID    uuid.UUID         `json:"scan_id"`
	Keys      map[string]string `json:"keys"`
	URLs      map[string]string `json:"upload_urls"`
	ExpiresIn int               `json:"expires_in_seconds"`
}

type ScanService interface {
	PresignUpload(ctx context.Context, contentType string) (*PresignedUpload, error)
	SubmitScan(ctx context.Context, scanID uuid.UUID, frontKey, leftKey, rightKey string) (*types.Scan, error)
	GetScan(ctx context.Context, scanID uuid.UUID) (*types.Scan, error)
	ListScans(ctx context.Context, page, perPage int) ([]*types.Scan, int64, error)
	GetDeltas(ctx context.Context, scanID uuid.UUID) ([]*types.ScoreDelta, error)
}

type scanService struct {
	db              *gorm.DB
	log             *logger.Logger
	scanRepo        repos.ScanRepo
	deltaRepo       repos.ScoreDeltaRepo
	bucketService   BucketService
	minIntervalDays int
}

func NewScanService(
	db *gorm.DB,
	log *logger.Logger,
	scanRepo repos.ScanRepo,
	deltaRepo repos.ScoreDeltaRepo,
	bucketService BucketService,
	minIntervalDays int,
) ScanService {
	serviceLog := log.With("service", "ScanService")
	if minIntervalDays <= 0 {
		minIntervalDays = DefaultMinScanIntervalDays
	}
	return &scanService{
		db:              db,
		log:             serviceLog,
		scanRepo:        scanRepo,
		deltaRepo:       deltaRepo,
		bucketService:   bucketService,
		minIntervalDays: minIntervalDays,
	}
}

// PresignUpload reserves a scan id and hands back direct-to-bucket PUT URLs
// for the three required angles. Nothing is persisted until SubmitScan.
func (ss *scanService) PresignUpload(ctx context.Context, contentType string) (*PresignedUpload, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	scanID := uuid.New()
	keys := make(map[string]string, 3)
	urls := make(map[string]string, 3)
	for _, angle := range []types.ImageAngle{types.AngleFront, types.AngleLeft, types.AngleRight} {
		key := fmt.Sprintf("scans/%s/%s/%s.jpg", userID, scanID, angle)
		url, sErr := ss.bucketService.SignedUploadURL(key, contentType, uploadURLTTL)
		if sErr != nil {
			return nil, fmt.Errorf("Failed to presign upload for angle %s: %w", angle, sErr)
		}
		keys[string(angle)] = key
		urls[string(angle)] = url
	}

	return &PresignedUpload{
		ScanID:    scanID,
		Keys:      keys,
		URLs:      urls,
		ExpiresIn: int(uploadURLTTL.Seconds()),
	}, nil
}

// SubmitScan records an uploaded photo set as a pending scan. The analysis
// worker picks it up asynchronously.
func (ss *scanService) SubmitScan(ctx context.Context, scanID uuid.UUID, frontKey, leftKey, rightKey string) (*types.Scan, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	if scanID == uuid.Nil {
		return nil, apierr.New(http.StatusBadRequest, "missing_scan_id", fmt.Errorf("scan_id required"))
	}
	if frontKey == "" || leftKey == "" || rightKey == "" {
		return nil, apierr.New(http.StatusBadRequest, "missing_image_keys", fmt.Errorf("all three image angles are required"))
	}
	ownPrefix := fmt.Sprintf("scans/%s/", userID)
	for _, key := range []string{frontKey, leftKey, rightKey} {
		if len(key) < len(ownPrefix) || key[:len(ownPrefix)] != ownPrefix {
			return nil, apierr.New(http.StatusForbidden, "foreign_image_key", fmt.Errorf("image key does not belong to the caller"))
		}
	}

	latest, lErr := ss.scanRepo.GetMostRecentByUser(ctx, nil, userID)
	if lErr != nil {
		return nil, fmt.Errorf("Failed to load most recent scan: %w", lErr)
	}
	if latest != nil {
		elapsed := time.Since(latest.ScanDate)
		minInterval := time.Duration(ss.minIntervalDays) * 24 * time.Hour
		if elapsed < minInterval {
			nextAllowed := latest.ScanDate.Add(minInterval)
			return nil, apierr.New(http.StatusConflict, "scan_too_soon",
				fmt.Errorf("minimum interval between scans is %d days; next scan allowed at %s",
					ss.minIntervalDays, nextAllowed.UTC().Format(time.RFC3339)))
		}
	}

	scan := &types.Scan{
		ID:            scanID,
		UserID:        userID,
		Status:        types.ScanStatusPending,
		ScanDate:      time.Now().UTC(),
		FrontImageKey: frontKey,
		LeftImageKey:  leftKey,
		RightImageKey: rightKey,
	}
	if _, cErr := ss.scanRepo.Create(ctx, nil, []*types.Scan{scan}); cErr != nil {
		return nil, fmt.Errorf("Failed to create scan: %w", cErr)
	}

	ss.log.Info("Scan submitted", "scan_id", scan.ID, "user_id", userID)
	return scan, nil
}

func (ss *scanService) GetScan(ctx context.Context, scanID uuid.UUID) (*types.Scan, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	scans, gErr := ss.scanRepo.GetByIDs(ctx, nil, []uuid.UUID{scanID})
	if gErr != nil {
		return nil, fmt.Errorf("Failed to load scan: %w", gErr)
	}
	if len(scans) == 0 || scans[0].UserID != userID {
		return nil, apierr.New(http.StatusNotFound, "scan_not_found", fmt.Errorf("scan not found"))
	}
	return scans[0], nil
}

func (ss *scanService) ListScans(ctx context.Context, page, perPage int) ([]*types.Scan, int64, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	scans, total, lErr := ss.scanRepo.ListByUser(ctx, nil, userID, (page-1)*perPage, perPage)
	if lErr != nil {
		return nil, 0, fmt.Errorf("Failed to list scans: %w", lErr)
	}
	return scans, total, nil
}

func (ss *scanService) GetDeltas(ctx context.Context, scanID uuid.UUID) ([]*types.ScoreDelta, error) {
	if _, err := ss.GetScan(ctx, scanID); err != nil {
		return nil, err
	}

	deltas, dErr := ss.deltaRepo.GetByCurrentScanIDs(ctx, nil, []uuid.UUID{scanID})
	if dErr != nil {
		return nil, fmt.Errorf("Failed to load score deltas: %w", dErr)
	}
	return deltas, nil
}
