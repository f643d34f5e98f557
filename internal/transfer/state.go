package transfer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// State is a step of the transfer flow.
//
// Failed is only ever reported as Result.Outcome. A failed request
// returns the flow to Draft with the form intact, so a Snapshot never
// shows Failed and the last error is read from Snapshot.Message.
type State int

const (
	Draft State = iota
	Confirming
	Submitted
	ChallengePending
	Verifying
	Succeeded
	Failed
)

var stateNames = map[State]string{
	Draft:            "DRAFT",
	Confirming:       "CONFIRMING",
	Submitted:        "SUBMITTED",
	ChallengePending: "CHALLENGE_PENDING",
	Verifying:        "VERIFYING",
	Succeeded:        "SUCCEEDED",
	Failed:           "FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// inFlight reports whether a request is outstanding in s.
func (s State) inFlight() bool {
	return s == Submitted || s == Verifying
}

var (
	ErrInvalidState   = errors.New("action not allowed in current state")
	ErrBusy           = errors.New("a request is already in flight")
	ErrCooldownActive = errors.New("resend is not available yet")
	ErrCancelled      = errors.New("transfer cancelled")
)

// ValidationError names the form field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Form is the editable part of a transfer.
type Form struct {
	To     string
	Amount string
	PIN    string
}

// validate checks the form and returns the parsed amount.
func (f Form) validate() (decimal.Decimal, error) {
	if strings.TrimSpace(f.To) == "" {
		return decimal.Decimal{}, &ValidationError{Field: "recipient", Reason: "enter a UPI id"}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(f.Amount))
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, &ValidationError{Field: "amount", Reason: "enter an amount greater than zero"}
	}

	if !fourDigits(f.PIN) {
		return decimal.Decimal{}, &ValidationError{Field: "pin", Reason: "PIN must be exactly 4 digits"}
	}

	return amount, nil
}

func fourDigits(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
