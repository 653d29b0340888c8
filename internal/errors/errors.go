// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

func IsCampaignNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}

// QuotaExceededError is a policy rejection from the quota guard. It is never a provider fault.
// CurrentCount and Limit are nil when the guard could not read the counter (fail-closed).
type QuotaExceededError struct {
	CurrentCount *int
	Limit        *int
	Reason       string
}

func (e *QuotaExceededError) Error() string {
	if e.CurrentCount != nil && e.Limit != nil {
		return fmt.Sprintf("daily conversation limit reached (%d/%d)", *e.CurrentCount, *e.Limit)
	}
	if e.Reason != "" {
		return "quota check rejected send: " + e.Reason
	}
	return "quota check rejected send"
}

func NewQuotaExceeded(count, limit *int, reason string) error {
	return &QuotaExceededError{CurrentCount: count, Limit: limit, Reason: reason}
}

// AsQuotaExceeded unwraps err into a *QuotaExceededError.
func AsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// InvalidPhoneError is raised before any quota or provider call when a number cannot be
// normalised to international format.
type InvalidPhoneError struct {
	Phone string
	Err   error
}

func (e *InvalidPhoneError) Error() string {
	return fmt.Sprintf("invalid phone %q: %v", e.Phone, e.Err)
}

func (e *InvalidPhoneError) Unwrap() error { return e.Err }
