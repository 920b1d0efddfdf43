package workflow

// Trigger is an intent that can move a request between states
type Trigger string

const (
	TriggerSubmit   Trigger = "SUBMIT"
	TriggerApprove  Trigger = "APPROVE"
	TriggerReject   Trigger = "REJECT"
	TriggerWithdraw Trigger = "WITHDRAW"
	TriggerSendBack Trigger = "SEND_BACK"
	TriggerRevise   Trigger = "REVISE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
