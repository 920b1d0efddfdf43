package workflow

import (
	"context"
	"fmt"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/application/port"
	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	domainwf "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	maxChainDepth int
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithMaxChainDepth bounds how far up the org tree resolution walks
func WithMaxChainDepth(depth int) EngineOption {
	return func(e *engineImpl) {
		if depth > 0 {
			e.maxChainDepth = depth
		}
	}
}

// NewEngine creates a new workflow engine
func NewEngine(opts ...EngineOption) Engine {
	e := &engineImpl{
		maxChainDepth: DefaultMaxChainDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engineImpl) ResolveApprover(req *entity.InvestmentRequest, dir port.Directory, level int) (*entity.User, error) {
	return resolveApprover(dir, req, level, e.maxChainDepth)
}

func (e *engineImpl) Apply(ctx context.Context, req *entity.InvestmentRequest, dir port.Directory, intent Intent) (*entity.Mutation, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", domainwf.ErrNotFound)
	}
	trigger, ok := intent.Kind.Trigger()
	if !ok {
		return nil, fmt.Errorf("%w: unknown intent %q", domainwf.ErrInvalidTransition, intent.Kind)
	}
	if intent.At.IsZero() {
		return nil, fmt.Errorf("intent %s on %s has no timestamp", intent.Kind, req.ID)
	}

	from := req.Status()
	if !BuildInvestmentStateMachine(from, nil).CanFire(trigger) {
		return nil, fmt.Errorf("%w: cannot %s request %s in %s", domainwf.ErrInvalidTransition, intent.Kind, req.ID, from)
	}
	if err := authorize(req, intent.Kind, intent.ActorID); err != nil {
		return nil, err
	}

	next := req.Clone()
	var action entity.AuditAction
	var err error

	switch intent.Kind {
	case IntentSubmit:
		action = entity.AuditSubmit
		err = e.submit(ctx, next, dir, intent)
	case IntentApprove:
		action, err = e.approve(ctx, next, dir, intent)
	case IntentReject:
		action = entity.AuditReject
		err = e.reject(ctx, next, dir, intent)
	case IntentWithdraw:
		action = entity.AuditWithdraw
		err = e.withdraw(ctx, next, dir, intent, false)
	case IntentSendBack:
		action = entity.AuditSendBack
		err = e.withdraw(ctx, next, dir, intent, true)
	case IntentRevise:
		action = entity.AuditRevise
		err = e.revise(ctx, next, dir, intent)
	}
	if err != nil {
		return nil, err
	}

	next.UpdatedAt = intent.At
	if err := next.Validate(); err != nil {
		return nil, err
	}

	return &entity.Mutation{
		Action:  action,
		ActorID: intent.ActorID,
		Comment: intent.Comment,
		Before:  req.Clone(),
		After:   next,
		At:      intent.At,
	}, nil
}

func (e *engineImpl) AvailableIntents(req *entity.InvestmentRequest, actorID string) []IntentKind {
	if req == nil || actorID == "" {
		return nil
	}
	machine := BuildInvestmentStateMachine(req.Status(), nil)

	var kinds []IntentKind
	for _, kind := range AllIntents {
		trigger, _ := kind.Trigger()
		if !machine.CanFire(trigger) {
			continue
		}
		if authorize(req, kind, actorID) != nil {
			continue
		}
		kinds = append(kinds, kind)
	}
	return kinds
}

// authorize checks who may perform the intent. Approver actions belong to
// the designated next approver; owner actions to anyone with edit rights.
func authorize(req *entity.InvestmentRequest, kind IntentKind, actorID string) error {
	switch kind {
	case IntentApprove, IntentReject, IntentSendBack:
		next, ok := req.NextApprover()
		if !ok || next.ID != actorID {
			return fmt.Errorf("%w: %s is not the next approver of %s", domainwf.ErrNotAuthorized, actorID, req.ID)
		}
	case IntentSubmit, IntentWithdraw, IntentRevise:
		if !req.CanEdit(actorID) {
			return fmt.Errorf("%w: %s cannot %s request %s", domainwf.ErrNotAuthorized, actorID, kind, req.ID)
		}
	}
	return nil
}

func (e *engineImpl) fire(ctx context.Context, req *entity.InvestmentRequest, trigger domainwf.Trigger, terminal bool) (domainwf.State, error) {
	machine := BuildInvestmentStateMachine(req.Status(), func(context.Context) bool { return terminal })
	if err := machine.Fire(ctx, trigger); err != nil {
		return "", err
	}
	return machine.State(), nil
}

func (e *engineImpl) submit(ctx context.Context, req *entity.InvestmentRequest, dir port.Directory, intent Intent) error {
	if _, err := e.fire(ctx, req, domainwf.TriggerSubmit, false); err != nil {
		return err
	}

	approver, err := e.ResolveApprover(req, dir, entity.LevelDM)
	if err != nil {
		return err
	}

	req.ClearSlots()
	req.Rejection = nil
	req.Withdrawal = nil
	req.Submission = &entity.ActionRecord{
		ActorID:   intent.ActorID,
		ActorName: displayName(dir, intent.ActorID),
		At:        intent.At,
		Comment:   intent.Comment,
	}
	req.Phase = entity.Pending{NextApprover: refOf(approver)}
	return nil
}

func (e *engineImpl) approve(ctx context.Context, req *entity.InvestmentRequest, dir port.Directory, intent Intent) (entity.AuditAction, error) {
	level := req.CurrentApprovalLevel() + 1

	actor, known := dir.User(intent.ActorID)
	terminal := level == entity.SlotCount || isTheaterFinal(dir, req.Theater, intent.ActorID)
	if known && actor.IsFinalApprover {
		terminal = true
	}

	to, err := e.fire(ctx, req, domainwf.TriggerApprove, terminal)
	if err != nil {
		return "", err
	}

	at := intent.At
	slot := entity.ApprovalSlot{
		ApproverID:   intent.ActorID,
		ApproverName: displayName(dir, intent.ActorID),
		ApprovedAt:   &at,
		Comment:      intent.Comment,
	}
	if known {
		slot.ApproverTitle = actor.Title
	}

	if to == domainwf.StateFinalApproved {
		slot.Final = true
		req.Slots[level-1] = slot
		req.Phase = entity.FinalApproved{}
		return entity.AuditFinalApprove, nil
	}

	req.Slots[level-1] = slot
	approver, err := e.ResolveApprover(req, dir, level+1)
	if err != nil {
		return "", err
	}
	req.Phase = entity.Pending{NextApprover: refOf(approver)}
	return entity.AuditApprove, nil
}

func (e *engineImpl) reject(ctx context.Context, req *entity.InvestmentRequest, dir port.Directory, intent Intent) error {
	if _, err := e.fire(ctx, req, domainwf.TriggerReject, false); err != nil {
		return err
	}

	req.Rejection = &entity.Rejection{
		Level:     req.CurrentApprovalLevel() + 1,
		ActorID:   intent.ActorID,
		ActorName: displayName(dir, intent.ActorID),
		At:        intent.At,
		Comment:   intent.Comment,
	}
	req.Phase = entity.Rejected{}
	return nil
}

// withdraw resets approval progress entirely; history before the reset is
// only kept in the audit log.
func (e *engineImpl) withdraw(ctx context.Context, req *entity.InvestmentRequest, dir port.Directory, intent Intent, sentBack bool) error {
	trigger := domainwf.TriggerWithdraw
	if sentBack {
		trigger = domainwf.TriggerSendBack
	}
	if _, err := e.fire(ctx, req, trigger, false); err != nil {
		return err
	}

	req.ClearSlots()
	req.Withdrawal = &entity.Withdrawal{
		ActorID:   intent.ActorID,
		ActorName: displayName(dir, intent.ActorID),
		At:        intent.At,
		Comment:   intent.Comment,
		SentBack:  sentBack,
	}
	req.Phase = entity.Draft{}
	return nil
}

func (e *engineImpl) revise(ctx context.Context, req *entity.InvestmentRequest, dir port.Directory, intent Intent) error {
	if _, err := e.fire(ctx, req, domainwf.TriggerRevise, false); err != nil {
		return err
	}

	if intent.Narrative != nil {
		req.Narrative = *intent.Narrative
	}
	req.ClearSlots()
	req.Rejection = nil
	req.Phase = entity.Draft{}

	if !intent.Submit {
		return nil
	}
	return e.submit(ctx, req, dir, intent)
}

func refOf(u *entity.User) entity.ApproverRef {
	name := u.DisplayName
	if name == "" {
		name = u.ID
	}
	return entity.ApproverRef{ID: u.ID, Name: name}
}

func displayName(dir port.Directory, userID string) string {
	if u, ok := dir.User(userID); ok && u.DisplayName != "" {
		return u.DisplayName
	}
	return userID
}
