package assistant

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/services"
)

// State is where a user's request stands after a turn
type State string

const (
	StateIdle                 State = "IDLE"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateExecuting            State = "EXECUTING"
	StateDone                 State = "DONE"
	StateCancelled            State = "CANCELLED"
	StateDenied               State = "DENIED"
	StateError                State = "ERROR"
)

// IsTerminal reports whether the request is finished
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateCancelled, StateDenied, StateError:
		return true
	}
	return false
}

// Outcome is the result of one assistant turn
type Outcome struct {
	RequestID       string                `json:"request_id,omitempty"`
	State           State                 `json:"state"`
	Symbol          string                `json:"symbol,omitempty"`
	Estimate        *models.CostEstimate  `json:"estimate,omitempty"`
	Actual          *models.CostEstimate  `json:"actual,omitempty"`
	Answer          string                `json:"answer,omitempty"`
	RemainingBudget *decimal.Decimal      `json:"remaining_budget,omitempty"`
	Reason          services.DenialReason `json:"reason,omitempty"`
	Error           string                `json:"error,omitempty"`

	// Unrecorded is set when the answer was delivered but the charge could
	// not be written to the ledger
	Unrecorded bool `json:"unrecorded,omitempty"`

	// Err carries the domain error behind a failed turn
	Err error `json:"-"`
}

// fail records err on the outcome
func (o *Outcome) fail(state State, err error) *Outcome {
	o.State = state
	o.Err = err
	o.Error = err.Error()
	o.Reason = services.GetDenialReason(err)
	return o
}

// affirmative replies; anything else cancels
var affirmative = map[string]struct{}{
	"yes": {},
	"y":   {},
	"כן":  {},
	"כ":   {},
}

// IsAffirmative reports whether reply confirms a pending analysis
func IsAffirmative(reply string) bool {
	_, ok := affirmative[strings.ToLower(strings.TrimSpace(reply))]
	return ok
}
