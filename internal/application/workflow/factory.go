package workflow

import (
	"context"

	domainwf "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

func never(context.Context) bool { return false }

// BuildInvestmentStateMachine creates the approval lifecycle machine.
// isTerminal decides whether an approval closes the chain.
func BuildInvestmentStateMachine(initialState domainwf.State, isTerminal domainwf.GuardFunc) domainwf.StateMachine {
	if isTerminal == nil {
		isTerminal = never
	}

	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted).
		Permit(domainwf.TriggerRevise, domainwf.StateDraft)

	pending := []struct {
		from, next domainwf.State
	}{
		{domainwf.StateSubmitted, domainwf.StateDMApproved},
		{domainwf.StateDMApproved, domainwf.StateRDApproved},
		{domainwf.StateRDApproved, domainwf.StateAVPApproved},
	}
	for _, p := range pending {
		builder.Configure(p.from).
			PermitIf(domainwf.TriggerApprove, domainwf.StateFinalApproved, isTerminal).
			Permit(domainwf.TriggerApprove, p.next).
			Permit(domainwf.TriggerReject, domainwf.StateRejected).
			Permit(domainwf.TriggerWithdraw, domainwf.StateDraft).
			Permit(domainwf.TriggerSendBack, domainwf.StateDraft)
	}

	// The GVP slot is the last one, so its approval always closes the chain
	builder.Configure(domainwf.StateAVPApproved).
		Permit(domainwf.TriggerApprove, domainwf.StateFinalApproved).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerWithdraw, domainwf.StateDraft).
		Permit(domainwf.TriggerSendBack, domainwf.StateDraft)

	builder.Configure(domainwf.StateRejected).
		Permit(domainwf.TriggerRevise, domainwf.StateDraft)

	// FINAL_APPROVED has no outgoing transitions

	return builder.Build(initialState)
}
