package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens-backend/internal/logger"
	"github.com/dermalens/dermalens-backend/internal/metrics"
	"github.com/dermalens/dermalens-backend/internal/repos"
	"github.com/dermalens/dermalens-backend/internal/services"
	"github.com/dermalens/dermalens-backend/internal/trend"
	"github.com/dermalens/dermalens-backend/internal/types"
)

const (
	pollInterval    = 5 * time.Second
	downloadURLTTL  = 10 * time.Minute
	analysisTimeout = 3 * time.Minute

	// Below this confidence the analysis is discarded and a retake requested,
	// even when the model did not ask for one itself.
	DefaultMinConfidence = 45.0
)

// AnalyzerWorker drains pending scans one at a time. Claiming skips users who
// already have a scan in flight, so a user's scans complete in order.
type AnalyzerWorker struct {
	db               *gorm.DB
	log              *logger.Logger
	scanRepo         repos.ScanRepo
	deltaRepo        repos.ScoreDeltaRepo
	planRepo         repos.TreatmentPlanRepo
	bucketService    services.BucketService
	openAIClient     services.OpenAIClient
	minConfidence    float64
	declineThreshold float64
}

func NewAnalyzerWorker(
	db *gorm.DB,
	baseLog *logger.Logger,
	scanRepo repos.ScanRepo,
	deltaRepo repos.ScoreDeltaRepo,
	planRepo repos.TreatmentPlanRepo,
	bucketService services.BucketService,
	openAIClient services.OpenAIClient,
	minConfidence float64,
	declineThreshold float64,
) *AnalyzerWorker {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if declineThreshold <= 0 {
		declineThreshold = services.DefaultScoreDeclineThreshold
	}
	return &AnalyzerWorker{
		db:               db,
		log:              baseLog.With("component", "AnalyzerWorker"),
		scanRepo:         scanRepo,
		deltaRepo:        deltaRepo,
		planRepo:         planRepo,
		bucketService:    bucketService,
		openAIClient:     openAIClient,
		minConfidence:    minConfidence,
		declineThreshold: declineThreshold,
	}
}

func (w *AnalyzerWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				scan, err := w.scanRepo.ClaimNextPending(ctx, nil)
				if err != nil {
					w.log.Warn("ClaimNextPending failed", "error", err)
					continue
				}
				if scan == nil {
					continue
				}

				func() {
					defer func() {
						if r := recover(); r != nil {
							w.log.Error("Analysis panic", "scan_id", scan.ID, "panic", r)
							_ = w.scanRepo.MarkFailed(ctx, nil, scan.ID, "internal analysis error", false, nil)
						}
					}()
					w.ProcessScan(ctx, scan)
				}()
			}
		}
	}()
}

// ProcessScan runs one claimed scan to a terminal status. Exported so tests
// can drive the pipeline without the ticker.
func (w *AnalyzerWorker) ProcessScan(ctx context.Context, scan *types.Scan) {
	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	started := time.Now()

	urls, uErr := w.signImageURLs(ctx, scan)
	if uErr != nil {
		w.log.Error("Failed to sign scan image URLs", "scan_id", scan.ID, "error", uErr)
		_ = w.scanRepo.MarkFailed(ctx, nil, scan.ID, fmt.Sprintf("image access failed: %v", uErr), false, nil)
		return
	}

	analysis, modelVersion, aErr := w.openAIClient.AnalyzeSkin(ctx, urls)
	if aErr != nil {
		w.log.Error("Skin analysis failed", "scan_id", scan.ID, "error", aErr)
		_ = w.scanRepo.MarkFailed(ctx, nil, scan.ID, fmt.Sprintf("analysis failed: %v", aErr), false, nil)
		return
	}

	if analysis.RetakeRequired || analysis.Confidence < w.minConfidence {
		reasons := analysis.RetakeReasons
		if analysis.Confidence < w.minConfidence {
			reasons = append(reasons, fmt.Sprintf("confidence %.0f below minimum %.0f", analysis.Confidence, w.minConfidence))
		}
		raw, _ := json.Marshal(reasons)
		w.log.Info("Scan requires retake", "scan_id", scan.ID, "confidence", analysis.Confidence, "reasons", reasons)
		_ = w.scanRepo.MarkFailed(ctx, nil, scan.ID, "retake required", true, raw)
		return
	}

	if err := w.completeScan(ctx, scan, analysis, modelVersion, started); err != nil {
		w.log.Error("Failed to persist analysis", "scan_id", scan.ID, "error", err)
		_ = w.scanRepo.MarkFailed(ctx, nil, scan.ID, fmt.Sprintf("persist failed: %v", err), false, nil)
		return
	}
	w.log.Info("Scan analysis completed", "scan_id", scan.ID, "took", time.Since(started).String())
}

// signImageURLs generates the three signed GET URLs concurrently.
func (w *AnalyzerWorker) signImageURLs(ctx context.Context, scan *types.Scan) ([]string, error) {
	keys := []string{scan.FrontImageKey, scan.LeftImageKey, scan.RightImageKey}
	urls := make([]string, len(keys))

	g, _ := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			url, err := w.bucketService.SignedDownloadURL(key, downloadURLTTL)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// completeScan writes scores, trend metadata, and delta rows in one
// transaction so readers never see a completed scan without its deltas.
func (w *AnalyzerWorker) completeScan(ctx context.Context, scan *types.Scan, analysis *services.SkinAnalysis, modelVersion string, started time.Time) error {
	scores := metrics.Clamp(metrics.Scores{
		Acne:      &analysis.Acne,
		Redness:   &analysis.Redness,
		Oiliness:  &analysis.Oiliness,
		Dryness:   &analysis.Dryness,
		Texture:   &analysis.Texture,
		PoreSize:  &analysis.PoreSize,
		DarkSpots: &analysis.DarkSpots,
	})
	scan.SetScores(scores)
	if overall, ok := metrics.Overall(scores); ok {
		scan.OverallScore = &overall
	}
	confidence := metrics.ClampValue(analysis.Confidence)
	scan.ConfidenceScore = &confidence
	scan.ModelVersion = modelVersion
	processingMS := int(time.Since(started).Milliseconds())
	scan.ProcessingTimeMS = &processingMS
	if raw, err := json.Marshal(analysis); err == nil {
		scan.RawAnalysis = raw
	}
	scan.Status = types.ScanStatusCompleted
	scan.ErrorMessage = ""
	scan.RetakeRequired = false

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, aErr := w.planRepo.GetActiveByUser(ctx, tx, scan.UserID)
		if aErr != nil {
			return fmt.Errorf("load active plan: %w", aErr)
		}

		// A scan outside any plan becomes a candidate baseline for the next
		// one; a scan under an active plan is a progress check for that plan.
		if plan == nil {
			scan.IsBaseline = true
			scan.WeekNumber = nil
		} else {
			week := trend.DaysBetween(plan.StartDate, scan.ScanDate)/7 + 1
			scan.WeekNumber = &week
		}

		if err := w.scanRepo.SaveAnalysis(ctx, tx, scan); err != nil {
			return fmt.Errorf("save analysis: %w", err)
		}

		previous, pErr := w.scanRepo.GetPreviousCompleted(ctx, tx, scan.UserID, scan.ScanDate, scan.ID)
		if pErr != nil {
			return fmt.Errorf("load previous completed scan: %w", pErr)
		}
		if previous == nil {
			return nil
		}

		var planID *uuid.UUID
		if plan != nil {
			planID = &plan.ID
		}

		prevSnap := trend.Snapshot{Scores: previous.Scores(), Overall: previous.OverallScore, CapturedAt: previous.ScanDate}
		curSnap := trend.Snapshot{Scores: scan.Scores(), Overall: scan.OverallScore, CapturedAt: scan.ScanDate}
		computed := trend.Compute(prevSnap, curSnap, w.declineThreshold)

		rows := make([]*types.ScoreDelta, 0, len(computed))
		for _, d := range computed {
			rows = append(rows, &types.ScoreDelta{
				ID:             uuid.New(),
				CurrentScanID:  scan.ID,
				PreviousScanID: previous.ID,
				MetricName:     d.Metric,
				PreviousScore:  d.PreviousScore,
				CurrentScore:   d.CurrentScore,
				Delta:          d.Delta,
				PercentChange:  d.PercentChange,
				Improvement:    d.Improvement,
				IsSignificant:  d.IsSignificant,
				DaysBetween:    d.DaysBetween,
				PlanID:         planID,
			})
		}
		if _, err := w.deltaRepo.Create(ctx, tx, rows); err != nil {
			return fmt.Errorf("create score deltas: %w", err)
		}
		return nil
	})
}
