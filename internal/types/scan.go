package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dermalens/dermalens-backend/internal/metrics"
)

type ScanStatus string

const (
	ScanStatusPending    ScanStatus = "pending"
	ScanStatusProcessing ScanStatus = "processing"
	ScanStatusCompleted  ScanStatus = "completed"
	ScanStatusFailed     ScanStatus = "failed"
)

type ImageAngle string

const (
	AngleFront ImageAngle = "front"
	AngleLeft  ImageAngle = "left"
	AngleRight ImageAngle = "right"
)

// Scan is one submitted photo set and its analysis outcome. Scans are
// append-only: once completed or failed only the trend-linking metadata
// (is_baseline, week_number) may change.
type Scan struct {
	ID     uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID  `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	Status ScanStatus `gorm:"not null;default:pending;column:status" json:"status"`

	ScanDate time.Time `gorm:"not null;default:now();index;column:scan_date" json:"scan_date"`

	FrontImageKey string `gorm:"not null;column:front_image_key" json:"front_image_key"`
	LeftImageKey  string `gorm:"not null;column:left_image_key" json:"left_image_key"`
	RightImageKey string `gorm:"not null;column:right_image_key" json:"right_image_key"`

	// Severity scores, 0-100, nil until analysis completes. Populated
	// atomically as a set when the scan transitions to completed.
	AcneScore      *float64 `gorm:"column:acne_score" json:"acne_score"`
	RednessScore   *float64 `gorm:"column:redness_score" json:"redness_score"`
	OilinessScore  *float64 `gorm:"column:oiliness_score" json:"oiliness_score"`
	DrynessScore   *float64 `gorm:"column:dryness_score" json:"dryness_score"`
	TextureScore   *float64 `gorm:"column:texture_score" json:"texture_score"`
	PoreSizeScore  *float64 `gorm:"column:pore_size_score" json:"pore_size_score"`
	DarkSpotsScore *float64 `gorm:"column:dark_spots_score" json:"dark_spots_score"`

	OverallScore    *float64 `gorm:"column:overall_score" json:"overall_score"`
	ConfidenceScore *float64 `gorm:"column:confidence_score" json:"confidence_score"`

	ModelVersion     string         `gorm:"column:model_version" json:"model_version,omitempty"`
	ProcessingTimeMS *int           `gorm:"column:processing_time_ms" json:"processing_time_ms,omitempty"`
	RawAnalysis      datatypes.JSON `gorm:"column:raw_analysis" json:"-"`

	ErrorMessage   string         `gorm:"column:error_message" json:"error_message,omitempty"`
	RetakeRequired bool           `gorm:"column:retake_required;default:false" json:"retake_required"`
	RetakeReasons  datatypes.JSON `gorm:"column:retake_reasons" json:"retake_reasons,omitempty"`

	IsBaseline bool `gorm:"column:is_baseline;default:false" json:"is_baseline"`
	WeekNumber *int `gorm:"column:week_number" json:"week_number,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Scan) TableName() string {
	return "scan"
}

// Scores assembles the fixed metric record from the scan columns.
func (s *Scan) Scores() metrics.Scores {
	return metrics.Scores{
		Acne:      s.AcneScore,
		Redness:   s.RednessScore,
		Oiliness:  s.OilinessScore,
		Dryness:   s.DrynessScore,
		Texture:   s.TextureScore,
		PoreSize:  s.PoreSizeScore,
		DarkSpots: s.DarkSpotsScore,
	}
}

// SetScores writes the metric record back onto the scan columns.
func (s *Scan) SetScores(sc metrics.Scores) {
	s.AcneScore = sc.Acne
	s.RednessScore = sc.Redness
	s.OilinessScore = sc.Oiliness
	s.DrynessScore = sc.Dryness
	s.TextureScore = sc.Texture
	s.PoreSizeScore = sc.PoreSize
	s.DarkSpotsScore = sc.DarkSpots
}
