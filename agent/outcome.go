package agent

// TurnOutcome is the only state handed back to the conversational UI for a
// turn. When an approval was requested, ApprovalID is the handle the client
// polls; it is never set from anything but a gate request made this turn.
type TurnOutcome struct {
	ReplyText        string  `json:"reply"`
	ApprovalRequired bool    `json:"requiredApproval"`
	ApprovalID       *string `json:"approvalId"`
}
