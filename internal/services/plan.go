package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens-backend/internal/apierr"
	"github.com/dermalens/dermalens-backend/internal/logger"
	"github.com/dermalens/dermalens-backend/internal/repos"
	"github.com/dermalens/dermalens-backend/internal/routine"
	"github.com/dermalens/dermalens-backend/internal/trend"
	"github.com/dermalens/dermalens-backend/internal/types"
)

const (
	MinLockDurationDays     = 14
	MaxLockDurationDays     = 28
	DefaultLockDurationDays = 21

	// Percent worsening on any primary metric that justifies a mid-lock
	// adjustment.
	DefaultScoreDeclineThreshold = 10.0

	planLockTTL = 30 * time.Second
)

// PlanView is a plan plus its derived lock state, for read endpoints.
type PlanView struct {
	*types.TreatmentPlan
	Locked        bool `json:"locked"`
	DaysRemaining int  `json:"days_remaining"`
	DaysElapsed   int  `json:"days_elapsed"`
}

type AdjustResult struct {
	Allowed bool                 `json:"allowed"`
	Reason  string               `json:"reason,omitempty"`
	NewPlan *types.TreatmentPlan `json:"new_plan,omitempty"`
}

type PlanService interface {
	CreatePlan(ctx context.Context, lockDays int) (*types.TreatmentPlan, error)
	GetCurrentPlan(ctx context.Context) (*PlanView, error)
	ListPlans(ctx context.Context, page, perPage int) ([]*types.TreatmentPlan, int64, error)
	AdjustPlan(ctx context.Context, reason types.AdjustmentReason, notes string) (*AdjustResult, error)
	EnableAdjustment(ctx context.Context) (*types.TreatmentPlan, error)
	GetRecommendations(ctx context.Context) ([]routine.Recommendation, error)
}

type planService struct {
	db               *gorm.DB
	log              *logger.Logger
	planRepo         repos.TreatmentPlanRepo
	scanRepo         repos.ScanRepo
	userRepo         repos.UserRepo
	locker           UserLocker
	declineThreshold float64
}

func NewPlanService(
	db *gorm.DB,
	log *logger.Logger,
	planRepo repos.TreatmentPlanRepo,
	scanRepo repos.ScanRepo,
	userRepo repos.UserRepo,
	locker UserLocker,
	declineThreshold float64,
) PlanService {
	serviceLog := log.With("service", "PlanService")
	if declineThreshold <= 0 {
		declineThreshold = DefaultScoreDeclineThreshold
	}
	return &planService{
		db:               db,
		log:              serviceLog,
		planRepo:         planRepo,
		scanRepo:         scanRepo,
		userRepo:         userRepo,
		locker:           locker,
		declineThreshold: declineThreshold,
	}
}

// CreatePlan opens a new locked plan from the user's latest completed scan.
// The per-user lock keeps a double-tap from creating two active plans.
func (ps *planService) CreatePlan(ctx context.Context, lockDays int) (*types.TreatmentPlan, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	if lockDays == 0 {
		lockDays = DefaultLockDurationDays
	}
	if lockDays < MinLockDurationDays || lockDays > MaxLockDurationDays {
		return nil, apierr.New(http.StatusBadRequest, "invalid_lock_duration",
			fmt.Errorf("lock duration must be between %d and %d days", MinLockDurationDays, MaxLockDurationDays))
	}

	release, ok, lkErr := ps.locker.Acquire(ctx, userID, planLockTTL)
	if lkErr != nil {
		return nil, fmt.Errorf("Failed to acquire plan lock: %w", lkErr)
	}
	if !ok {
		return nil, apierr.New(http.StatusConflict, "plan_write_in_progress", fmt.Errorf("another plan operation is in progress"))
	}
	defer release()

	var created *types.TreatmentPlan
	txErr := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, gErr := ps.planRepo.GetActiveByUser(ctx, tx, userID)
		if gErr != nil {
			return fmt.Errorf("Failed to check active plan: %w", gErr)
		}
		if existing != nil {
			return apierr.New(http.StatusConflict, "active_plan_exists", fmt.Errorf("an active plan already exists"))
		}

		plan, bErr := ps.buildPlan(ctx, tx, userID, "", lockDays, 1, nil)
		if bErr != nil {
			return bErr
		}
		if _, cErr := ps.planRepo.Create(ctx, tx, []*types.TreatmentPlan{plan}); cErr != nil {
			return fmt.Errorf("Failed to create plan: %w", cErr)
		}
		created = plan
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	ps.log.Info("Plan created", "plan_id", created.ID, "user_id", userID, "lock_days", lockDays)
	return created, nil
}

func (ps *planService) GetCurrentPlan(ctx context.Context) (*PlanView, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	plan, gErr := ps.planRepo.GetActiveByUser(ctx, nil, userID)
	if gErr != nil {
		return nil, fmt.Errorf("Failed to load active plan: %w", gErr)
	}
	if plan == nil {
		return nil, apierr.New(http.StatusNotFound, "no_active_plan", fmt.Errorf("no active treatment plan"))
	}

	now := time.Now()
	return &PlanView{
		TreatmentPlan: plan,
		Locked:        plan.IsLocked(now),
		DaysRemaining: plan.DaysRemaining(now),
		DaysElapsed:   plan.DaysElapsed(now),
	}, nil
}

func (ps *planService) ListPlans(ctx context.Context, page, perPage int) ([]*types.TreatmentPlan, int64, error) {
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

	plans, total, lErr := ps.planRepo.ListByUser(ctx, nil, userID, (page-1)*perPage, perPage)
	if lErr != nil {
		return nil, 0, fmt.Errorf("Failed to list plans: %w", lErr)
	}
	return plans, total, nil
}

// AdjustPlan runs the adjustment policy and, when allowed, atomically closes
// the active plan and opens its successor.
//
// Policy: severe_irritation is always allowed. score_decline is allowed only
// when the trend engine confirms a real decline across the two most recent
// completed scans. user_request is allowed once the plan is unlocked or
// flagged adjustable. Everything else is denied.
func (ps *planService) AdjustPlan(ctx context.Context, reason types.AdjustmentReason, notes string) (*AdjustResult, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	release, ok, lkErr := ps.locker.Acquire(ctx, userID, planLockTTL)
	if lkErr != nil {
		return nil, fmt.Errorf("Failed to acquire plan lock: %w", lkErr)
	}
	if !ok {
		return nil, apierr.New(http.StatusConflict, "plan_write_in_progress", fmt.Errorf("another plan operation is in progress"))
	}
	defer release()

	plan, gErr := ps.planRepo.GetActiveByUser(ctx, nil, userID)
	if gErr != nil {
		return nil, fmt.Errorf("Failed to load active plan: %w", gErr)
	}
	if plan == nil {
		return nil, apierr.New(http.StatusNotFound, "no_active_plan", fmt.Errorf("no active treatment plan"))
	}

	allowed, denyReason, aErr := ps.adjustmentAllowed(ctx, plan, reason)
	if aErr != nil {
		return nil, aErr
	}
	if !allowed {
		ps.log.Info("Plan adjustment denied", "plan_id", plan.ID, "reason", reason, "denied_because", denyReason)
		return &AdjustResult{Allowed: false, Reason: denyReason}, nil
	}

	var newPlan *types.TreatmentPlan
	txErr := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The successor needs its own baseline: a completed scan newer than
		// the one the current plan was built from. Without one the whole
		// adjustment is refused, never half-applied.
		if nbErr := ps.requireNewerBaseline(ctx, tx, plan); nbErr != nil {
			return nbErr
		}

		now := time.Now()
		if coErr := ps.planRepo.CloseOut(ctx, tx, plan.ID, types.PlanStatusAdjusted, reason, notes, now); coErr != nil {
			return fmt.Errorf("Failed to close out plan: %w", coErr)
		}

		next, bErr := ps.buildPlan(ctx, tx, userID, routine.Concern(plan.PrimaryConcern), plan.LockDurationDays, plan.Version+1, &plan.ID)
		if bErr != nil {
			return bErr
		}
		if _, cErr := ps.planRepo.Create(ctx, tx, []*types.TreatmentPlan{next}); cErr != nil {
			return fmt.Errorf("Failed to create successor plan: %w", cErr)
		}
		newPlan = next
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	ps.log.Info("Plan adjusted", "old_plan_id", plan.ID, "new_plan_id", newPlan.ID, "reason", reason)
	return &AdjustResult{Allowed: true, NewPlan: newPlan}, nil
}

func (ps *planService) adjustmentAllowed(ctx context.Context, plan *types.TreatmentPlan, reason types.AdjustmentReason) (bool, string, error) {
	switch reason {
	case types.AdjustSevereIrritation:
		return true, "", nil

	case types.AdjustScoreDecline:
		declined, err := ps.scoreDeclined(ctx, plan)
		if err != nil {
			return false, "", err
		}
		if !declined {
			return false, "no significant score decline detected since the plan baseline", nil
		}
		return true, "", nil

	case types.AdjustUserRequest:
		if plan.CanAdjust {
			return true, "", nil
		}
		if plan.IsLocked(time.Now()) {
			days := plan.DaysRemaining(time.Now())
			return false, fmt.Sprintf("plan is locked for %d more days; consistency is what makes treatment measurable", days), nil
		}
		return false, "plan is not flagged adjustable", nil

	default:
		return false, fmt.Sprintf("adjustment reason %q is not accepted", reason), nil
	}
}

// scoreDeclined runs the trend engine over the user's two most recent
// completed scans and reports whether any primary metric worsened past the
// decline threshold.
func (ps *planService) scoreDeclined(ctx context.Context, plan *types.TreatmentPlan) (bool, error) {
	recent, lErr := ps.scanRepo.GetLatestCompletedByUser(ctx, nil, plan.UserID, 2)
	if lErr != nil {
		return false, fmt.Errorf("Failed to load recent completed scans: %w", lErr)
	}
	if len(recent) < 2 {
		return false, nil
	}
	cur, prev := recent[0], recent[1]

	prevSnap := trend.Snapshot{Scores: prev.Scores(), Overall: prev.OverallScore, CapturedAt: prev.ScanDate}
	curSnap := trend.Snapshot{Scores: cur.Scores(), Overall: cur.OverallScore, CapturedAt: cur.ScanDate}
	return trend.DeclineDetected(prevSnap, curSnap, ps.declineThreshold), nil
}

// EnableAdjustment flags the active plan as adjustable ahead of its lock
// expiry. It is the escape hatch for users who insist; the next user_request
// adjustment will pass.
func (ps *planService) EnableAdjustment(ctx context.Context) (*types.TreatmentPlan, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	plan, gErr := ps.planRepo.GetActiveByUser(ctx, nil, userID)
	if gErr != nil {
		return nil, fmt.Errorf("Failed to load active plan: %w", gErr)
	}
	if plan == nil {
		return nil, apierr.New(http.StatusNotFound, "no_active_plan", fmt.Errorf("no active treatment plan"))
	}

	if sErr := ps.planRepo.SetCanAdjust(ctx, nil, plan.ID, true); sErr != nil {
		return nil, fmt.Errorf("Failed to flag plan adjustable: %w", sErr)
	}
	plan.CanAdjust = true
	return plan, nil
}

func (ps *planService) GetRecommendations(ctx context.Context) ([]routine.Recommendation, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	plan, gErr := ps.planRepo.GetActiveByUser(ctx, nil, userID)
	if gErr != nil {
		return nil, fmt.Errorf("Failed to load active plan: %w", gErr)
	}

	concern := routine.Concern("")
	if plan != nil {
		concern = routine.Concern(plan.PrimaryConcern)
	}
	if concern == "" || !routine.ValidConcern(concern) {
		users, uErr := ps.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
		if uErr != nil {
			return nil, fmt.Errorf("Failed to load user: %w", uErr)
		}
		if len(users) > 0 {
			concern = routine.Concern(users[0].PrimaryConcern)
		}
	}
	if !routine.ValidConcern(concern) {
		return nil, apierr.New(http.StatusBadRequest, "no_concern",
			fmt.Errorf("no primary concern on the active plan or user profile"))
	}
	return routine.Recommendations(concern), nil
}

// requireNewerBaseline rejects an adjustment when no completed scan newer than
// the current plan's baseline exists to anchor the successor.
func (ps *planService) requireNewerBaseline(ctx context.Context, tx *gorm.DB, plan *types.TreatmentPlan) error {
	latest, lErr := ps.scanRepo.GetLatestCompletedByUser(ctx, tx, plan.UserID, 1)
	if lErr != nil {
		return fmt.Errorf("Failed to load latest completed scan: %w", lErr)
	}
	if len(latest) == 0 {
		return apierr.New(http.StatusConflict, "no_new_baseline",
			fmt.Errorf("a completed scan is required before the plan can be adjusted"))
	}
	if plan.BaselineScanID == nil {
		return nil
	}
	if latest[0].ID == *plan.BaselineScanID {
		return apierr.New(http.StatusConflict, "no_new_baseline",
			fmt.Errorf("a completed scan newer than the current baseline is required"))
	}
	baselines, bErr := ps.scanRepo.GetByIDs(ctx, tx, []uuid.UUID{*plan.BaselineScanID})
	if bErr != nil {
		return fmt.Errorf("Failed to load plan baseline scan: %w", bErr)
	}
	if len(baselines) > 0 && !latest[0].ScanDate.After(baselines[0].ScanDate) {
		return apierr.New(http.StatusConflict, "no_new_baseline",
			fmt.Errorf("a completed scan newer than the current baseline is required"))
	}
	return nil
}

// buildPlan assembles a plan entity from the user profile and the latest
// completed scan, and flags that scan as the plan's baseline. A successor plan
// passes the predecessor's concern as the hint so the focus carries over.
func (ps *planService) buildPlan(ctx context.Context, tx *gorm.DB, userID uuid.UUID, concernHint routine.Concern, lockDays, version int, previousPlanID *uuid.UUID) (*types.TreatmentPlan, error) {
	users, uErr := ps.userRepo.GetByIDs(ctx, tx, []uuid.UUID{userID})
	if uErr != nil {
		return nil, fmt.Errorf("Failed to load user: %w", uErr)
	}
	if len(users) == 0 {
		return nil, apierr.New(http.StatusNotFound, "user_not_found", fmt.Errorf("user not found"))
	}
	user := users[0]

	scans, sErr := ps.scanRepo.GetLatestCompletedByUser(ctx, tx, userID, 1)
	if sErr != nil {
		return nil, fmt.Errorf("Failed to load latest completed scan: %w", sErr)
	}
	if len(scans) == 0 {
		return nil, apierr.New(http.StatusConflict, "no_completed_scan",
			fmt.Errorf("a completed scan is required before a treatment plan can be created"))
	}
	baseline := scans[0]
	if mbErr := ps.scanRepo.MarkBaseline(ctx, tx, baseline.ID); mbErr != nil {
		return nil, fmt.Errorf("Failed to flag baseline scan: %w", mbErr)
	}

	priority := concernHint
	if !routine.ValidConcern(priority) {
		priority = routine.Concern(user.PrimaryConcern)
	}
	if !routine.ValidConcern(priority) {
		priority = ""
	}
	generated := routine.Generate(routine.Input{
		PrimaryConcern: priority,
		Priority:       priority,
		Scores:         baseline.Scores(),
		SkinType:       user.SkinType,
		Sensitivity:    user.Sensitivity,
	})

	planConcern := generated.ActiveConcern
	if planConcern == "" {
		planConcern = priority
	}

	amJSON, err := json.Marshal(generated.AM)
	if err != nil {
		return nil, fmt.Errorf("Failed to encode AM routine: %w", err)
	}
	pmJSON, err := json.Marshal(generated.PM)
	if err != nil {
		return nil, fmt.Errorf("Failed to encode PM routine: %w", err)
	}
	var productsJSON []byte
	if routine.ValidConcern(planConcern) {
		productsJSON, err = json.Marshal(routine.Recommendations(planConcern))
		if err != nil {
			return nil, fmt.Errorf("Failed to encode recommendations: %w", err)
		}
	}

	now := time.Now().UTC()
	plan := &types.TreatmentPlan{
		ID:                  uuid.New(),
		UserID:              userID,
		Status:              types.PlanStatusActive,
		Version:             version,
		PrimaryConcern:      string(planConcern),
		StartDate:           now,
		PlannedEndDate:      now.AddDate(0, 0, lockDays),
		LockDurationDays:    lockDays,
		BaselineScanID:      &baseline.ID,
		AMRoutine:           amJSON,
		PMRoutine:           pmJSON,
		RecommendedProducts: productsJSON,
		Instructions: fmt.Sprintf(
			"Follow both routines every day for %d days. Skin turnover is slow; visible change needs the full cycle.", lockDays),
		Warnings:       warningsFor(generated.IrritationRisk),
		PreviousPlanID: previousPlanID,
	}
	return plan, nil
}

func warningsFor(risk routine.IrritationRisk) string {
	switch risk {
	case routine.RiskHigh:
		return "High irritation risk: active frequency has been reduced. Stop any product that causes burning or persistent redness."
	case routine.RiskMedium:
		return "Moderate irritation risk: introduce the active on alternate days for the first week."
	default:
		return ""
	}
}
