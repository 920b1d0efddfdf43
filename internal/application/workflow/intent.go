package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"
	domainwf "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/workflow"
)

// IntentKind is a caller-facing mutation name
type IntentKind string

const (
	IntentSubmit   IntentKind = "submit"
	IntentApprove  IntentKind = "approve"
	IntentReject   IntentKind = "reject"
	IntentWithdraw IntentKind = "withdraw"
	IntentRevise   IntentKind = "revise"
	IntentSendBack IntentKind = "send_back"
)

// AllIntents in the order they are offered to callers
var AllIntents = []IntentKind{
	IntentSubmit,
	IntentApprove,
	IntentReject,
	IntentSendBack,
	IntentWithdraw,
	IntentRevise,
}

var intentTriggers = map[IntentKind]domainwf.Trigger{
	IntentSubmit:   domainwf.TriggerSubmit,
	IntentApprove:  domainwf.TriggerApprove,
	IntentReject:   domainwf.TriggerReject,
	IntentWithdraw: domainwf.TriggerWithdraw,
	IntentRevise:   domainwf.TriggerRevise,
	IntentSendBack: domainwf.TriggerSendBack,
}

// ParseIntentKind accepts the API spelling, case-insensitively, with "-" or "_"
func ParseIntentKind(s string) (IntentKind, error) {
	k := IntentKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if _, ok := intentTriggers[k]; !ok {
		return "", fmt.Errorf("%w: unknown intent %q", domainwf.ErrInvalidTransition, s)
	}
	return k, nil
}

// Trigger maps the intent to its state machine trigger
func (k IntentKind) Trigger() (domainwf.Trigger, bool) {
	t, ok := intentTriggers[k]
	return t, ok
}

// Intent is one requested mutation. At is supplied by the caller so the
// engine never reads a clock.
type Intent struct {
	Kind    IntentKind
	ActorID string
	Comment string

	// Narrative replaces the narrative fields on revise when set
	Narrative *entity.Narrative
	// Submit makes revise resubmit immediately
	Submit bool

	At time.Time
}
