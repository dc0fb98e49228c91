package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dermalens/dermalens-backend/internal/apierr"
	"github.com/dermalens/dermalens-backend/internal/repos"
	"github.com/dermalens/dermalens-backend/internal/repos/testutil"
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

func newScanService(t *testing.T) ScanService {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return NewScanService(
		db,
		log,
		repos.NewScanRepo(db, log),
		repos.NewScoreDeltaRepo(db, log),
		fakeBucket{},
		DefaultMinScanIntervalDays,
	)
}

func TestPresignUploadCoversAllAngles(t *testing.T) {
	ss := newScanService(t)
	user := createTestUser(t, testutil.DB(t), "acne", false)

	presigned, err := ss.PresignUpload(authedCtx(user.ID), "")
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if presigned.ScanID == uuid.Nil {
		t.Fatal("presign must reserve a scan id")
	}
	for _, angle := range []string{"front", "left", "right"} {
		key, ok := presigned.Keys[angle]
		if !ok {
			t.Fatalf("missing key for angle %s", angle)
		}
		if !strings.HasPrefix(key, "scans/"+user.ID.String()+"/") {
			t.Fatalf("key %q not namespaced to the caller", key)
		}
		if presigned.URLs[angle] == "" {
			t.Fatalf("missing upload URL for angle %s", angle)
		}
	}
}

func TestSubmitScanEnforcesMinInterval(t *testing.T) {
	db := testutil.DB(t)
	ss := newScanService(t)
	user := createTestUser(t, db, "acne", false)

	// a failed scan 3 days ago still counts against the interval
	createScan(t, db, user.ID, types.ScanStatusFailed, 3, fullScores(0))

	presigned, err := ss.PresignUpload(authedCtx(user.ID), "")
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	_, err = ss.SubmitScan(authedCtx(user.ID), presigned.ScanID,
		presigned.Keys["front"], presigned.Keys["left"], presigned.Keys["right"])
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "scan_too_soon" {
		t.Fatalf("expected scan_too_soon, got %v", err)
	}
}

func TestSubmitScanAfterInterval(t *testing.T) {
	db := testutil.DB(t)
	ss := newScanService(t)
	user := createTestUser(t, db, "acne", false)
	createScan(t, db, user.ID, types.ScanStatusCompleted, 8, fullScores(50))

	presigned, err := ss.PresignUpload(authedCtx(user.ID), "")
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	scan, sErr := ss.SubmitScan(authedCtx(user.ID), presigned.ScanID,
		presigned.Keys["front"], presigned.Keys["left"], presigned.Keys["right"])
	if sErr != nil {
		t.Fatalf("submit: %v", sErr)
	}
	if scan.Status != types.ScanStatusPending {
		t.Fatalf("submitted scan status = %s, want pending", scan.Status)
	}
}

func TestSubmitScanRejectsForeignKeys(t *testing.T) {
	db := testutil.DB(t)
	ss := newScanService(t)
	user := createTestUser(t, db, "acne", false)
	other := createTestUser(t, db, "acne", false)

	foreign := "scans/" + other.ID.String() + "/" + uuid.NewString()
	_, err := ss.SubmitScan(authedCtx(user.ID), uuid.New(),
		foreign+"/front.jpg", foreign+"/left.jpg", foreign+"/right.jpg")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "foreign_image_key" {
		t.Fatalf("expected foreign_image_key, got %v", err)
	}
}

func TestGetScanEnforcesOwnership(t *testing.T) {
	db := testutil.DB(t)
	ss := newScanService(t)
	owner := createTestUser(t, db, "acne", false)
	intruder := createTestUser(t, db, "acne", false)
	scan := createScan(t, db, owner.ID, types.ScanStatusCompleted, 1, fullScores(40))

	if _, err := ss.GetScan(authedCtx(owner.ID), scan.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	_, err := ss.GetScan(authedCtx(intruder.ID), scan.ID)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "scan_not_found" {
		t.Fatalf("expected scan_not_found for foreign reader, got %v", err)
	}
}

func TestGetDeltasReturnsPersistedRows(t *testing.T) {
	db := testutil.DB(t)
	ss := newScanService(t)
	user := createTestUser(t, db, "acne", false)
	prev := createScan(t, db, user.ID, types.ScanStatusCompleted, 10, fullScores(50))
	cur := createScan(t, db, user.ID, types.ScanStatusCompleted, 1, fullScores(45))

	row := &types.ScoreDelta{
		ID:             uuid.New(),
		CurrentScanID:  cur.ID,
		PreviousScanID: prev.ID,
		MetricName:     "acne",
		PreviousScore:  50,
		CurrentScore:   45,
		Delta:          -5,
		PercentChange:  -10,
		Improvement:    true,
		IsSignificant:  true,
		DaysBetween:    9,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed delta: %v", err)
	}

	deltas, err := ss.GetDeltas(authedCtx(user.ID), cur.ID)
	if err != nil {
		t.Fatalf("get deltas: %v", err)
	}
	if len(deltas) != 1 || deltas[0].MetricName != "acne" || !deltas[0].Improvement {
		t.Fatalf("unexpected deltas: %+v", deltas)
	}
}
