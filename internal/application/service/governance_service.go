package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/store"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/workflow"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	domainwf "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/pkg/utils"
)

// ErrInvalidInput is returned when draft fields fail validation
var ErrInvalidInput = errors.New("invalid input")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequestStore is the part of the store the service drives
type RequestStore interface {
	Get(ctx context.Context, id string) (*entity.InvestmentRequest, error)
	List(ctx context.Context, filter port.RequestFilter) ([]*entity.InvestmentRequest, error)
	Create(ctx context.Context, req *entity.InvestmentRequest, actorID string) (*entity.InvestmentRequest, error)
	Apply(ctx context.Context, id string, fn store.MutateFunc) (*entity.InvestmentRequest, error)
	Delete(ctx context.Context, id string, fn store.MutateFunc) error
	ApprovalHistory(ctx context.Context, id string) ([]entity.ApprovalHistoryEntry, error)
	AuditTrail(ctx context.Context, id string) ([]*entity.AuditEntry, error)
}

// RequestInput carries the editable fields of a draft
type RequestInput struct {
	Title           string           `json:"title"`
	AccountID       string           `json:"account_id"`
	InvestmentType  string           `json:"investment_type"`
	Quarter         string           `json:"quarter"`
	Theater         string           `json:"theater"`
	IndustrySegment string           `json:"industry_segment"`
	RequestedAmount decimal.Decimal  `json:"requested_amount"`
	Narrative       entity.Narrative `json:"narrative"`
	Contributors    []string         `json:"contributors"`
	OnBehalfOf      string           `json:"on_behalf_of"`
}

// Normalize trims free text and drops control characters
func (in *RequestInput) Normalize() {
	in.Title = utils.SanitizeString(in.Title)
	in.AccountID = strings.TrimSpace(in.AccountID)
	in.Quarter = strings.TrimSpace(in.Quarter)
	in.OnBehalfOf = strings.TrimSpace(in.OnBehalfOf)
	in.Narrative.Justification = utils.SanitizeString(in.Narrative.Justification)
	in.Narrative.ExpectedOutcome = utils.SanitizeString(in.Narrative.ExpectedOutcome)
	in.Narrative.RiskAssessment = utils.SanitizeString(in.Narrative.RiskAssessment)
}

// Validate checks the fields a draft must always carry. Drafts may be
// incomplete, so only the title is required.
func (in RequestInput) Validate() error {
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Quarter != "" {
		if err := utils.ValidateQuarter(in.Quarter); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if err := utils.ValidateAmount(in.RequestedAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// IntentPayload is the optional data sent with an intent
type IntentPayload struct {
	Comment   string            `json:"comment"`
	Narrative *entity.Narrative `json:"narrative,omitempty"`
	// Submit resubmits straight away after a revise
	Submit bool `json:"submit"`
}

// GovernanceService is the entry point for every request operation
type GovernanceService interface {
	CreateRequest(ctx context.Context, actorID string, input RequestInput, autoSubmit bool) (*entity.InvestmentRequest, error)
	UpdateDraft(ctx context.Context, id, actorID string, input RequestInput) (*entity.InvestmentRequest, error)
	DeleteDraft(ctx context.Context, id, actorID string) error
	SubmitIntent(ctx context.Context, id string, kind workflow.IntentKind, actorID string, payload IntentPayload) (*entity.InvestmentRequest, error)
	GetRequest(ctx context.Context, id string) (*entity.InvestmentRequest, error)
	ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.InvestmentRequest, error)
	GetApprovalHistory(ctx context.Context, id string) ([]entity.ApprovalHistoryEntry, error)
	GetAuditTrail(ctx context.Context, id string) ([]*entity.AuditEntry, error)
	PendingApprovals(ctx context.Context, actorID string) ([]*entity.InvestmentRequest, error)
	AvailableIntents(ctx context.Context, id, actorID string) ([]workflow.IntentKind, error)
	PreviewApprovalChain(ctx context.Context, ownerID, theater string) ([]workflow.ChainStep, error)
}

type governanceServiceImpl struct {
	store     RequestStore
	engine    workflow.Engine
	directory port.Directory
	logger    Logger
	now       func() time.Time
	newID     func() (string, error)
}

// Option configures the governance service
type Option func(*governanceServiceImpl)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *governanceServiceImpl) {
		s.now = now
	}
}

// WithIDGenerator replaces the UUIDv7 request id generator
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *governanceServiceImpl) {
		s.newID = fn
	}
}

// NewGovernanceService creates a new GovernanceService
func NewGovernanceService(
	store RequestStore,
	engine workflow.Engine,
	directory port.Directory,
	logger Logger,
	opts ...Option,
) GovernanceService {
	s := &governanceServiceImpl{
		store:     store,
		engine:    engine,
		directory: directory,
		logger:    logger,
		now:       time.Now,
		newID:     newRequestID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newRequestID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CreateRequest stores a new draft. With autoSubmit the draft is submitted
// right away; if that fails the draft is kept and returned with the error.
func (s *governanceServiceImpl) CreateRequest(ctx context.Context, actorID string, input RequestInput, autoSubmit bool) (*entity.InvestmentRequest, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: anonymous create", domainwf.ErrNotAuthorized)
	}
	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate request id: %w", err)
	}

	dir := s.view()
	now := s.now().UTC()
	req := &entity.InvestmentRequest{
		ID:            id,
		Phase:         entity.Draft{},
		CreatedBy:     actorID,
		CreatedByName: displayName(dir, actorID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	applyInput(dir, req, input)

	created, err := s.store.Create(ctx, req, actorID)
	if err != nil {
		s.logger.Error("Failed to create request", "error", err, "actor_id", actorID)
		return nil, err
	}
	s.logger.Info("Request created", "id", created.ID, "actor_id", actorID, "auto_submit", autoSubmit)

	if !autoSubmit {
		return created, nil
	}
	submitted, err := s.SubmitIntent(ctx, created.ID, workflow.IntentSubmit, actorID, IntentPayload{})
	if err != nil {
		return created, fmt.Errorf("request %s created but not submitted: %w", created.ID, err)
	}
	return submitted, nil
}

// UpdateDraft replaces the editable fields of a draft
func (s *governanceServiceImpl) UpdateDraft(ctx context.Context, id, actorID string, input RequestInput) (*entity.InvestmentRequest, error) {
	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}
	updated, err := s.store.Apply(ctx, id, func(current *entity.InvestmentRequest) (*entity.Mutation, error) {
		if err := checkDraftOwner(current, actorID, "edit"); err != nil {
			return nil, err
		}
		next := current.Clone()
		applyInput(s.view(), next, input)
		now := s.now().UTC()
		next.UpdatedAt = now
		return &entity.Mutation{
			Action:  entity.AuditUpdateDraft,
			ActorID: actorID,
			Before:  current,
			After:   next,
			At:      now,
		}, nil
	})
	if err != nil {
		s.logger.Error("Failed to update draft", "error", err, "id", id, "actor_id", actorID)
		return nil, err
	}
	return updated, nil
}

// DeleteDraft removes a draft locally and remotely
func (s *governanceServiceImpl) DeleteDraft(ctx context.Context, id, actorID string) error {
	err := s.store.Delete(ctx, id, func(current *entity.InvestmentRequest) (*entity.Mutation, error) {
		if err := checkDraftOwner(current, actorID, "delete"); err != nil {
			return nil, err
		}
		return &entity.Mutation{
			Action:  entity.AuditDeleteDraft,
			ActorID: actorID,
			Before:  current,
			At:      s.now().UTC(),
		}, nil
	})
	if err != nil {
		s.logger.Error("Failed to delete draft", "error", err, "id", id, "actor_id", actorID)
		return err
	}
	s.logger.Info("Draft deleted", "id", id, "actor_id", actorID)
	return nil
}

// SubmitIntent runs the workflow engine against the current request under
// the store's per-request lock and commits the result
func (s *governanceServiceImpl) SubmitIntent(ctx context.Context, id string, kind workflow.IntentKind, actorID string, payload IntentPayload) (*entity.InvestmentRequest, error) {
	intent := workflow.Intent{
		Kind:      kind,
		ActorID:   actorID,
		Comment:   payload.Comment,
		Narrative: payload.Narrative,
		Submit:    payload.Submit,
	}

	updated, err := s.store.Apply(ctx, id, func(current *entity.InvestmentRequest) (*entity.Mutation, error) {
		intent.At = s.now().UTC()
		return s.engine.Apply(ctx, current, s.view(), intent)
	})
	if err != nil {
		s.logger.Error("Intent refused", "id", id, "intent", kind, "actor_id", actorID, "error", err)
		return nil, err
	}

	s.logger.Info("Intent applied",
		"id", id,
		"intent", kind,
		"actor_id", actorID,
		"status", updated.Status())
	return updated, nil
}

func (s *governanceServiceImpl) GetRequest(ctx context.Context, id string) (*entity.InvestmentRequest, error) {
	return s.store.Get(ctx, id)
}

func (s *governanceServiceImpl) ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.InvestmentRequest, error) {
	return s.store.List(ctx, filter)
}

func (s *governanceServiceImpl) GetApprovalHistory(ctx context.Context, id string) ([]entity.ApprovalHistoryEntry, error) {
	return s.store.ApprovalHistory(ctx, id)
}

func (s *governanceServiceImpl) GetAuditTrail(ctx context.Context, id string) ([]*entity.AuditEntry, error) {
	return s.store.AuditTrail(ctx, id)
}

// PendingApprovals lists requests waiting on actorID
func (s *governanceServiceImpl) PendingApprovals(ctx context.Context, actorID string) ([]*entity.InvestmentRequest, error) {
	return s.store.List(ctx, port.RequestFilter{
		NextApproverID: actorID,
		Statuses: []domainwf.State{
			domainwf.StateSubmitted,
			domainwf.StateDMApproved,
			domainwf.StateRDApproved,
			domainwf.StateAVPApproved,
		},
	})
}

func (s *governanceServiceImpl) AvailableIntents(ctx context.Context, id, actorID string) ([]workflow.IntentKind, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.AvailableIntents(req, actorID), nil
}

// PreviewApprovalChain lists who would approve a request ownerID submits in
// theater, resolved against the directory as it is now
func (s *governanceServiceImpl) PreviewApprovalChain(ctx context.Context, ownerID, theater string) ([]workflow.ChainStep, error) {
	ownerID = strings.TrimSpace(ownerID)
	theater = strings.TrimSpace(theater)
	if ownerID == "" || theater == "" {
		return nil, fmt.Errorf("%w: owner and theater are required", ErrInvalidInput)
	}
	return s.engine.PreviewChain(s.view(), ownerID, theater)
}

// view pins the directory for one decision when the source can hand out
// snapshots, so a concurrent refresh cannot change it halfway through
func (s *governanceServiceImpl) view() port.Directory {
	if v, ok := s.directory.(port.DirectoryViewer); ok {
		return v.View()
	}
	return s.directory
}

// applyInput copies the editable fields, filling account details from the
// directory when the caller left them out
func applyInput(dir port.Directory, req *entity.InvestmentRequest, input RequestInput) {
	req.Title = input.Title
	req.AccountID = input.AccountID
	req.InvestmentType = input.InvestmentType
	req.Quarter = input.Quarter
	req.Theater = input.Theater
	req.IndustrySegment = input.IndustrySegment
	req.RequestedAmount = input.RequestedAmount
	req.Narrative = input.Narrative
	req.Contributors = append([]string(nil), input.Contributors...)
	req.OnBehalfOf = input.OnBehalfOf
	req.AccountName = ""

	if account, ok := dir.Account(input.AccountID); ok {
		req.AccountName = account.Name
		if req.Theater == "" {
			req.Theater = account.Theater
		}
		if req.IndustrySegment == "" {
			req.IndustrySegment = account.IndustrySegment
		}
	}
}

func displayName(dir port.Directory, userID string) string {
	if u, ok := dir.User(userID); ok && u.DisplayName != "" {
		return u.DisplayName
	}
	return userID
}

func checkDraftOwner(req *entity.InvestmentRequest, actorID, verb string) error {
	if status := req.Status(); status != domainwf.StateDraft {
		return fmt.Errorf("%w: cannot %s request %s in %s", domainwf.ErrInvalidTransition, verb, req.ID, status)
	}
	if !req.CanEdit(actorID) {
		return fmt.Errorf("%w: %s cannot %s request %s", domainwf.ErrNotAuthorized, actorID, verb, req.ID)
	}
	return nil
}
