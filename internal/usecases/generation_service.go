package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"reqforge/internal/entities"
	"reqforge/internal/infrastructure"
	"reqforge/internal/interfaces"
	"reqforge/internal/repository"
)

const (
	maxTranscriptChars    = 40000
	transcriptFetchLimit  = 500
	generationTemperature = 0.2
)

var (
	// ErrNoMessages means the project has no conversation to generate from.
	ErrNoMessages = errors.New("project has no chat messages")
	// ErrNoDraft means no requirement version exists for the project yet.
	ErrNoDraft = errors.New("no requirements document exists")
	// ErrNotApproved means the latest requirement has not been approved.
	ErrNotApproved = errors.New("requirements document is not approved")
)

// GenerationService turns a project's chat transcript into a requirements
// document and, once approved, into an implementation plan.
type GenerationService struct {
	ai           interfaces.ChatCompleter
	messages     *repository.MessageRepository
	requirements *repository.RequirementRepository
	plans        *repository.PlanRepository
	promptsDir   string
	log          *zap.Logger
}

func NewGenerationService(
	ai interfaces.ChatCompleter,
	messages *repository.MessageRepository,
	requirements *repository.RequirementRepository,
	plans *repository.PlanRepository,
	promptsDir string,
	log *zap.Logger,
) *GenerationService {
	return &GenerationService{
		ai:           ai,
		messages:     messages,
		requirements: requirements,
		plans:        plans,
		promptsDir:   promptsDir,
		log:          log,
	}
}

func (s *GenerationService) loadPrompt(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.promptsDir, name))
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", name, err)
	}
	return string(data), nil
}

// buildTranscript renders the conversation as labeled lines and keeps the
// tail when it exceeds the character budget, so the newest decisions always
// make it into the prompt.
func (s *GenerationService) buildTranscript(ctx context.Context, projectID, userID string) (string, error) {
	msgs, err := s.messages.List(ctx, projectID, userID, transcriptFetchLimit)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}
	if len(msgs) == 0 {
		return "", ErrNoMessages
	}

	var b strings.Builder
	for _, m := range msgs {
		label := "User"
		if m.Role == entities.RoleAssistant {
			label = "Assistant"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	transcript := b.String()
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[len(transcript)-maxTranscriptChars:]
	}
	return transcript, nil
}

func (s *GenerationService) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.ai.GenerateCompletion(ctx, []infrastructure.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, generationTemperature)
}

// GetLatestRequirement returns the newest requirement version, or nil.
func (s *GenerationService) GetLatestRequirement(ctx context.Context, projectID string) (*entities.Requirement, error) {
	return s.requirements.GetLatest(ctx, projectID)
}

// GenerateRequirements produces a fresh requirements draft from the chat
// transcript. When the latest version is an unapproved draft it is
// overwritten in place; generating over an approved version needs the
// explicit reopen flag, which starts version+1.
func (s *GenerationService) GenerateRequirements(ctx context.Context, projectID, userID string, reopen bool) (*entities.Requirement, error) {
	// Check the approval gate before spending an upstream call.
	latest, err := s.requirements.GetLatest(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if latest.Approved() && !reopen {
		return nil, repository.ErrApprovedImmutable
	}

	transcript, err := s.buildTranscript(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := s.loadPrompt("requirements.md")
	if err != nil {
		return nil, err
	}

	content, err := s.complete(ctx, systemPrompt, transcript)
	if err != nil {
		return nil, fmt.Errorf("generate requirements: %w", err)
	}

	req, err := s.SaveRequirement(ctx, projectID, content, reopen)
	if err != nil {
		return nil, err
	}
	s.log.Info("generation: requirements generated",
		zap.String("project_id", projectID), zap.Int("version", req.VersionInt))
	return req, nil
}

// SaveRequirement writes requirement content under the version rules: no
// versions yet starts at 1; an unapproved latest draft is edited in place;
// an approved latest version is immutable, and a write against it needs the
// explicit reopen flag to start the next version.
func (s *GenerationService) SaveRequirement(ctx context.Context, projectID, contentMd string, reopen bool) (*entities.Requirement, error) {
	latest, err := s.requirements.GetLatest(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if latest == nil {
		return s.requirements.CreateVersion(ctx, projectID, contentMd, 1)
	}
	if latest.Approved() {
		if !reopen {
			return nil, repository.ErrApprovedImmutable
		}
		return s.requirements.CreateVersion(ctx, projectID, contentMd, latest.VersionInt+1)
	}
	return s.requirements.UpdateContent(ctx, latest.ID, contentMd)
}

// ApproveRequirement approves the latest requirement version. Approving an
// already-approved version is a no-op that returns the same document.
func (s *GenerationService) ApproveRequirement(ctx context.Context, projectID string, now time.Time) (*entities.Requirement, error) {
	latest, err := s.requirements.GetLatest(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrNoDraft
	}
	return s.requirements.Approve(ctx, latest.ID, now)
}

// GeneratePlan produces an implementation plan from the approved
// requirements document. Plan generation is gated on approval so the plan
// always derives from a frozen document.
func (s *GenerationService) GeneratePlan(ctx context.Context, projectID string) (*entities.Plan, error) {
	latest, err := s.requirements.GetLatest(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrNoDraft
	}
	if !latest.Approved() {
		return nil, ErrNotApproved
	}

	systemPrompt, err := s.loadPrompt("plan.md")
	if err != nil {
		return nil, err
	}

	content, err := s.complete(ctx, systemPrompt, latest.ContentMd)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	plan, err := s.plans.Upsert(ctx, projectID, content)
	if err != nil {
		return nil, err
	}
	s.log.Info("generation: plan generated", zap.String("project_id", projectID))
	return plan, nil
}

// SavePlan stores manually edited plan content.
func (s *GenerationService) SavePlan(ctx context.Context, projectID, contentMd string) (*entities.Plan, error) {
	return s.plans.Upsert(ctx, projectID, contentMd)
}

// GetPlan returns the project's plan, or nil when none exists.
func (s *GenerationService) GetPlan(ctx context.Context, projectID string) (*entities.Plan, error) {
	return s.plans.GetByProject(ctx, projectID)
}
