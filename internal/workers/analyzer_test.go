package workers

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens-backend/internal/repos"
	"github.com/dermalens/dermalens-backend/internal/repos/testutil"
	"github.com/dermalens/dermalens-backend/internal/services"
	"github.com/dermalens/dermalens-backend/internal/types"
)

type fakeBucket struct{}

func (fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader) error { return nil }
func (fakeBucket) DeleteFile(ctx context.Context, key string) error                 { return nil }
func (fakeBucket) SignedUploadURL(key, contentType string, ttl time.Duration) (string, error) {
	return "https://signed.example/put/" + key, nil
}
func (fakeBucket) SignedDownloadURL(key string, ttl time.Duration) (string, error) {
	return "https://signed.example/get/" + key, nil
}
func (fakeBucket) GetPublicURL(key string) string { return "https://cdn.example/" + key }

type fakeAnalyzer struct {
	analysis *services.SkinAnalysis
	err      error
	gotURLs  []string
}

func (f *fakeAnalyzer) AnalyzeSkin(ctx context.Context, imageURLs []string) (*services.SkinAnalysis, string, error) {
	f.gotURLs = imageURLs
	if f.err != nil {
		return nil, "", f.err
	}
	return f.analysis, "vision-test-1", nil
}

func (f *fakeAnalyzer) ChatReply(ctx context.Context, system string, turns []services.ChatTurn) (string, string, error) {
	return "", "", errors.New("not used")
}

func uniformAnalysis(score, confidence float64) *services.SkinAnalysis {
	return &services.SkinAnalysis{
		Acne: score, Redness: score, Oiliness: score, Dryness: score,
		Texture: score, PoreSize: score, DarkSpots: score,
		Confidence: confidence,
	}
}

func newWorker(t *testing.T, client services.OpenAIClient) (*AnalyzerWorker, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	w := NewAnalyzerWorker(
		db,
		log,
		repos.NewScanRepo(db, log),
		repos.NewScoreDeltaRepo(db, log),
		repos.NewTreatmentPlanRepo(db, log),
		fakeBucket{},
		client,
		DefaultMinConfidence,
		services.DefaultScoreDeclineThreshold,
	)
	return w, db
}

func seedUser(t *testing.T, db *gorm.DB) *types.User {
	t.Helper()
	u := &types.User{
		ID:       uuid.New(),
		Email:    uuid.NewString() + "@example.com",
		Password: "irrelevant",
		IsActive: true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func seedScan(t *testing.T, db *gorm.DB, userID uuid.UUID, status types.ScanStatus, daysAgo int, score float64) *types.Scan {
	t.Helper()
	id := uuid.New()
	sc := &types.Scan{
		ID:            id,
		UserID:        userID,
		Status:        status,
		ScanDate:      time.Now().UTC().AddDate(0, 0, -daysAgo),
		FrontImageKey: "scans/" + userID.String() + "/" + id.String() + "/front.jpg",
		LeftImageKey:  "scans/" + userID.String() + "/" + id.String() + "/left.jpg",
		RightImageKey: "scans/" + userID.String() + "/" + id.String() + "/right.jpg",
	}
	if status == types.ScanStatusCompleted {
		sc.AcneScore = &score
		sc.RednessScore = &score
		sc.OilinessScore = &score
		sc.DrynessScore = &score
		sc.TextureScore = &score
		sc.PoreSizeScore = &score
		sc.DarkSpotsScore = &score
		sc.OverallScore = &score
	}
	if err := db.Create(sc).Error; err != nil {
		t.Fatalf("create scan: %v", err)
	}
	return sc
}

func seedActivePlan(t *testing.T, db *gorm.DB, userID, baselineScanID uuid.UUID, startedDaysAgo int) *types.TreatmentPlan {
	t.Helper()
	start := time.Now().UTC().AddDate(0, 0, -startedDaysAgo)
	plan := &types.TreatmentPlan{
		ID:               uuid.New(),
		UserID:           userID,
		Status:           types.PlanStatusActive,
		Version:          1,
		PrimaryConcern:   "acne",
		StartDate:        start,
		PlannedEndDate:   start.AddDate(0, 0, 21),
		LockDurationDays: 21,
		BaselineScanID:   &baselineScanID,
		AMRoutine:        datatypes.JSON([]byte("[]")),
		PMRoutine:        datatypes.JSON([]byte("[]")),
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return plan
}

func TestProcessScanBaseline(t *testing.T) {
	client := &fakeAnalyzer{analysis: uniformAnalysis(40, 90)}
	w, db := newWorker(t, client)
	user := seedUser(t, db)
	scan := seedScan(t, db, user.ID, types.ScanStatusProcessing, 0, 0)

	w.ProcessScan(context.Background(), scan)

	var got types.Scan
	if err := db.First(&got, "id = ?", scan.ID).Error; err != nil {
		t.Fatalf("reload scan: %v", err)
	}
	if got.Status != types.ScanStatusCompleted {
		t.Fatalf("status = %s, want completed (error=%q)", got.Status, got.ErrorMessage)
	}
	if !got.IsBaseline {
		t.Fatal("a scan completed outside any plan must be a baseline candidate")
	}
	if got.WeekNumber != nil {
		t.Fatalf("week = %v, want nil without an active plan", got.WeekNumber)
	}
	if got.OverallScore == nil || *got.OverallScore != 40 {
		t.Fatalf("overall = %v, want 40", got.OverallScore)
	}
	if got.ModelVersion != "vision-test-1" {
		t.Fatalf("model version = %q", got.ModelVersion)
	}
	if len(client.gotURLs) != 3 {
		t.Fatalf("analyzer got %d image URLs, want 3", len(client.gotURLs))
	}

	var deltaCount int64
	db.Model(&types.ScoreDelta{}).Where("current_scan_id = ?", scan.ID).Count(&deltaCount)
	if deltaCount != 0 {
		t.Fatalf("baseline scan produced %d deltas, want 0", deltaCount)
	}
}

func TestProcessScanComputesDeltas(t *testing.T) {
	client := &fakeAnalyzer{analysis: uniformAnalysis(45, 90)}
	w, db := newWorker(t, client)
	user := seedUser(t, db)

	prev := seedScan(t, db, user.ID, types.ScanStatusCompleted, 14, 50)
	prev.IsBaseline = true
	if err := db.Save(prev).Error; err != nil {
		t.Fatalf("mark baseline: %v", err)
	}
	plan := seedActivePlan(t, db, user.ID, prev.ID, 7)
	scan := seedScan(t, db, user.ID, types.ScanStatusProcessing, 0, 0)

	w.ProcessScan(context.Background(), scan)

	var got types.Scan
	if err := db.First(&got, "id = ?", scan.ID).Error; err != nil {
		t.Fatalf("reload scan: %v", err)
	}
	if got.Status != types.ScanStatusCompleted {
		t.Fatalf("status = %s, want completed (error=%q)", got.Status, got.ErrorMessage)
	}
	if got.IsBaseline {
		t.Fatal("a scan under an active plan must not be a baseline")
	}
	// plan started 7 days ago: floor(7/7)+1
	if got.WeekNumber == nil || *got.WeekNumber != 2 {
		t.Fatalf("week = %v, want 2", got.WeekNumber)
	}

	var deltas []types.ScoreDelta
	if err := db.Where("current_scan_id = ?", scan.ID).Find(&deltas).Error; err != nil {
		t.Fatalf("load deltas: %v", err)
	}
	// 7 metrics plus the overall row
	if len(deltas) != 8 {
		t.Fatalf("delta rows = %d, want 8", len(deltas))
	}
	for _, d := range deltas {
		if d.PreviousScanID != prev.ID {
			t.Fatalf("delta links %s, want %s", d.PreviousScanID, prev.ID)
		}
		if d.PlanID == nil || *d.PlanID != plan.ID {
			t.Fatalf("metric %s: delta not linked to the active plan", d.MetricName)
		}
		if d.Delta != -5 || !d.Improvement {
			t.Fatalf("metric %s: delta=%v improvement=%v, want -5/true", d.MetricName, d.Delta, d.Improvement)
		}
		if d.PercentChange != -10 {
			t.Fatalf("metric %s: percent=%v, want -10", d.MetricName, d.PercentChange)
		}
	}
}

func TestProcessScanRetakeRequested(t *testing.T) {
	client := &fakeAnalyzer{analysis: &services.SkinAnalysis{
		Confidence:     80,
		RetakeRequired: true,
		RetakeReasons:  []string{"face partially obstructed"},
	}}
	w, db := newWorker(t, client)
	user := seedUser(t, db)
	scan := seedScan(t, db, user.ID, types.ScanStatusProcessing, 0, 0)

	w.ProcessScan(context.Background(), scan)

	var got types.Scan
	if err := db.First(&got, "id = ?", scan.ID).Error; err != nil {
		t.Fatalf("reload scan: %v", err)
	}
	if got.Status != types.ScanStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !got.RetakeRequired {
		t.Fatal("retake flag must be set")
	}
	if !strings.Contains(string(got.RetakeReasons), "obstructed") {
		t.Fatalf("retake reasons = %s", string(got.RetakeReasons))
	}
	if got.AcneScore != nil {
		t.Fatal("a retake outcome must not persist scores")
	}
}

func TestProcessScanLowConfidence(t *testing.T) {
	client := &fakeAnalyzer{analysis: uniformAnalysis(40, 30)}
	w, db := newWorker(t, client)
	user := seedUser(t, db)
	scan := seedScan(t, db, user.ID, types.ScanStatusProcessing, 0, 0)

	w.ProcessScan(context.Background(), scan)

	var got types.Scan
	if err := db.First(&got, "id = ?", scan.ID).Error; err != nil {
		t.Fatalf("reload scan: %v", err)
	}
	if got.Status != types.ScanStatusFailed || !got.RetakeRequired {
		t.Fatalf("low confidence must fail with retake, got status=%s retake=%v", got.Status, got.RetakeRequired)
	}
	if !strings.Contains(string(got.RetakeReasons), "confidence") {
		t.Fatalf("retake reasons = %s", string(got.RetakeReasons))
	}
}

func TestProcessScanAnalysisError(t *testing.T) {
	client := &fakeAnalyzer{err: errors.New("model unavailable")}
	w, db := newWorker(t, client)
	user := seedUser(t, db)
	scan := seedScan(t, db, user.ID, types.ScanStatusProcessing, 0, 0)

	w.ProcessScan(context.Background(), scan)

	var got types.Scan
	if err := db.First(&got, "id = ?", scan.ID).Error; err != nil {
		t.Fatalf("reload scan: %v", err)
	}
	if got.Status != types.ScanStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.RetakeRequired {
		t.Fatal("an infrastructure failure is not a retake")
	}
	if got.ErrorMessage == "" {
		t.Fatal("failure must record an error message")
	}
}

func TestClaimSkipsUsersWithScanInFlight(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	scanRepo := repos.NewScanRepo(db, log)

	busy := seedUser(t, db)
	seedScan(t, db, busy.ID, types.ScanStatusProcessing, 0, 0)
	blocked := seedScan(t, db, busy.ID, types.ScanStatusPending, 0, 0)

	idle := seedUser(t, db)
	seedScan(t, db, idle.ID, types.ScanStatusPending, 0, 0)

	claimed, err := scanRepo.ClaimNextPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimable scan")
	}
	if claimed.ID == blocked.ID {
		t.Fatal("claimed a scan for a user with one already in flight")
	}
	// older pending scans from other users may win the claim; what matters is
	// that the busy user's scan stays queued
	if claimed.UserID == busy.ID {
		t.Fatal("claimed scan belongs to a user with one already in flight")
	}
	if claimed.Status != types.ScanStatusProcessing {
		t.Fatalf("claimed status = %s, want processing", claimed.Status)
	}
}
