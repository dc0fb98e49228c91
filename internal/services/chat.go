package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens-backend/internal/apierr"
	"github.com/dermalens/dermalens-backend/internal/logger"
	"github.com/dermalens/dermalens-backend/internal/metrics"
	"github.com/dermalens/dermalens-backend/internal/repos"
	"github.com/dermalens/dermalens-backend/internal/trend"
	"github.com/dermalens/dermalens-backend/internal/types"
)

const chatHistoryWindow = 20

type ChatService interface {
	SendMessage(ctx context.Context, sessionID, content string, reportedConcerns []string) (*types.ChatMessage, error)
	GetSessionHistory(ctx context.Context, sessionID string) ([]*types.ChatMessage, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

type chatService struct {
	db           *gorm.DB
	log          *logger.Logger
	chatRepo     repos.ChatMessageRepo
	scanRepo     repos.ScanRepo
	planRepo     repos.TreatmentPlanRepo
	openAIClient OpenAIClient
}

func NewChatService(
	db *gorm.DB,
	log *logger.Logger,
	chatRepo repos.ChatMessageRepo,
	scanRepo repos.ScanRepo,
	planRepo repos.TreatmentPlanRepo,
	openAIClient OpenAIClient,
) ChatService {
	serviceLog := log.With("service", "ChatService")
	return &chatService{
		db:           db,
		log:          serviceLog,
		chatRepo:     chatRepo,
		scanRepo:     scanRepo,
		planRepo:     planRepo,
		openAIClient: openAIClient,
	}
}

const chatSystemPromptBase = `You are a skincare assistant inside a skin-tracking app. You explain the user's scan scores, their treatment plan, and general skincare practice. You never diagnose conditions and never prescribe medication; when symptoms sound severe or persistent, tell the user to see a dermatologist. Keep answers short and practical.`

// SendMessage persists the user turn, builds the scan and plan context for the
// model, and persists the assistant turn. Both rows share the session id.
func (cs *chatService) SendMessage(ctx context.Context, sessionID, content string, reportedConcerns []string) (*types.ChatMessage, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apierr.New(http.StatusBadRequest, "empty_message", fmt.Errorf("message content required"))
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	scanCtx, planCtx, system, cErr := cs.assembleContext(ctx, userID)
	if cErr != nil {
		return nil, cErr
	}

	var concernsJSON []byte
	if len(reportedConcerns) > 0 {
		concernsJSON, err = json.Marshal(reportedConcerns)
		if err != nil {
			return nil, fmt.Errorf("Failed to encode reported concerns: %w", err)
		}
	}

	userMsg := &types.ChatMessage{
		ID:               uuid.New(),
		UserID:           userID,
		Role:             "user",
		Content:          content,
		SessionID:        sessionID,
		CurrentScanID:    scanCtx,
		CurrentPlanID:    planCtx,
		ReportedConcerns: concernsJSON,
	}
	if _, mErr := cs.chatRepo.Create(ctx, nil, []*types.ChatMessage{userMsg}); mErr != nil {
		return nil, fmt.Errorf("Failed to persist user message: %w", mErr)
	}

	history, hErr := cs.chatRepo.ListBySession(ctx, nil, userID, sessionID, chatHistoryWindow)
	if hErr != nil {
		return nil, fmt.Errorf("Failed to load session history: %w", hErr)
	}
	turns := make([]ChatTurn, 0, len(history))
	for _, m := range history {
		turns = append(turns, ChatTurn{Role: m.Role, Content: m.Content})
	}

	started := time.Now()
	reply, model, rErr := cs.openAIClient.ChatReply(ctx, system, turns)
	if rErr != nil {
		return nil, fmt.Errorf("Assistant request failed: %w", rErr)
	}
	responseMS := int(time.Since(started).Milliseconds())

	assistantMsg := &types.ChatMessage{
		ID:                    uuid.New(),
		UserID:                userID,
		Role:                  "assistant",
		Content:               reply,
		SessionID:             sessionID,
		CurrentScanID:         scanCtx,
		CurrentPlanID:         planCtx,
		ModelUsed:             model,
		ResponseTimeMS:        &responseMS,
		ContainsMedicalAdvice: mentionsMedicalCare(reply),
		RequiresFollowUp:      severeConcernReported(reportedConcerns),
	}
	if _, mErr := cs.chatRepo.Create(ctx, nil, []*types.ChatMessage{assistantMsg}); mErr != nil {
		return nil, fmt.Errorf("Failed to persist assistant message: %w", mErr)
	}

	return assistantMsg, nil
}

func (cs *chatService) GetSessionHistory(ctx context.Context, sessionID string) ([]*types.ChatMessage, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, apierr.New(http.StatusBadRequest, "missing_session_id", fmt.Errorf("session id required"))
	}

	messages, hErr := cs.chatRepo.ListBySession(ctx, nil, userID, sessionID, 0)
	if hErr != nil {
		return nil, fmt.Errorf("Failed to load session history: %w", hErr)
	}
	return messages, nil
}

func (cs *chatService) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	userID, err := CurrentUserID(ctx)
	if err != nil {
		return 0, err
	}
	if sessionID == "" {
		return 0, apierr.New(http.StatusBadRequest, "missing_session_id", fmt.Errorf("session id required"))
	}

	deleted, dErr := cs.chatRepo.DeleteSession(ctx, nil, userID, sessionID)
	if dErr != nil {
		return 0, fmt.Errorf("Failed to delete session: %w", dErr)
	}
	return deleted, nil
}

// assembleContext builds the system prompt from the latest scan, the active
// plan, and the score trend between the last two completed scans.
func (cs *chatService) assembleContext(ctx context.Context, userID uuid.UUID) (*uuid.UUID, *uuid.UUID, string, error) {
	var b strings.Builder
	b.WriteString(chatSystemPromptBase)

	var scanID, planID *uuid.UUID

	scans, sErr := cs.scanRepo.GetLatestCompletedByUser(ctx, nil, userID, 2)
	if sErr != nil {
		return nil, nil, "", fmt.Errorf("Failed to load completed scans: %w", sErr)
	}
	if len(scans) > 0 {
		latest := scans[0]
		scanID = &latest.ID
		b.WriteString("\n\nLatest scan scores (0-100 severity, lower is better):")
		scores := latest.Scores()
		for _, m := range metrics.All {
			if v := scores.Get(m); v != nil {
				fmt.Fprintf(&b, " %s=%.1f", m, *v)
			}
		}
		if latest.OverallScore != nil {
			fmt.Fprintf(&b, " overall=%.1f", *latest.OverallScore)
		}
	}
	if len(scans) > 1 {
		prev := trend.Snapshot{Scores: scans[1].Scores(), Overall: scans[1].OverallScore, CapturedAt: scans[1].ScanDate}
		cur := trend.Snapshot{Scores: scans[0].Scores(), Overall: scans[0].OverallScore, CapturedAt: scans[0].ScanDate}
		directions := trend.Classify(prev, cur)
		b.WriteString("\nTrend since previous scan:")
		for metric, dir := range directions {
			fmt.Fprintf(&b, " %s=%s", metric, dir)
		}
	}

	plan, pErr := cs.planRepo.GetActiveByUser(ctx, nil, userID)
	if pErr != nil {
		return nil, nil, "", fmt.Errorf("Failed to load active plan: %w", pErr)
	}
	if plan != nil {
		planID = &plan.ID
		now := time.Now()
		fmt.Fprintf(&b, "\nActive treatment plan: concern=%s version=%d day %d of %d",
			plan.PrimaryConcern, plan.Version, plan.DaysElapsed(now), plan.LockDurationDays)
		if plan.IsLocked(now) {
			fmt.Fprintf(&b, " (locked, %d days remaining; discourage mid-plan changes)", plan.DaysRemaining(now))
		}
	}

	return scanID, planID, b.String(), nil
}

var medicalTerms = []string{
	"prescription", "dermatologist", "antibiotic", "isotretinoin", "accutane",
	"steroid", "cortisone", "medication", "tretinoin",
}

func mentionsMedicalCare(reply string) bool {
	lower := strings.ToLower(reply)
	for _, term := range medicalTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func severeConcernReported(concerns []string) bool {
	for _, c := range concerns {
		lower := strings.ToLower(c)
		if strings.Contains(lower, "severe") || strings.Contains(lower, "allergic") || strings.Contains(lower, "burning") {
			return true
		}
	}
	return false
}
