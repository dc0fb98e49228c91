package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens-backend/internal/metrics"
	"github.com/dermalens/dermalens-backend/internal/requestdata"
	"github.com/dermalens/dermalens-backend/internal/types"
)

func f64(v float64) *float64 { return &v }

func authedCtx(userID uuid.UUID) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{UserID: userID})
}

func createTestUser(t *testing.T, db *gorm.DB, primaryConcern string, sensitivity bool) *types.User {
	t.Helper()
	u := &types.User{
		ID:             uuid.New(),
		Email:          uuid.NewString() + "@example.com",
		Password:       "irrelevant",
		FullName:       "Test User",
		SkinType:       "combination",
		PrimaryConcern: primaryConcern,
		Sensitivity:    sensitivity,
		IsActive:       true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func createScan(t *testing.T, db *gorm.DB, userID uuid.UUID, status types.ScanStatus, daysAgo int, scores metrics.Scores) *types.Scan {
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
		sc.SetScores(scores)
		if overall, ok := metrics.Overall(scores); ok {
			sc.OverallScore = &overall
		}
		sc.ConfidenceScore = f64(90)
	}
	if err := db.Create(sc).Error; err != nil {
		t.Fatalf("create scan: %v", err)
	}
	return sc
}

func fullScores(base float64) metrics.Scores {
	return metrics.Scores{
		Acne:      f64(base),
		Redness:   f64(base),
		Oiliness:  f64(base),
		Dryness:   f64(base),
		Texture:   f64(base),
		PoreSize:  f64(base),
		DarkSpots: f64(base),
	}
}
