package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvestmentStatus is the ledger state of an investment
type InvestmentStatus string

const (
	InvestmentStatusPending   InvestmentStatus = "pending"
	InvestmentStatusActive    InvestmentStatus = "active"
	InvestmentStatusCompleted InvestmentStatus = "completed"
	InvestmentStatusFailed    InvestmentStatus = "failed"
	InvestmentStatusCancelled InvestmentStatus = "cancelled"
	InvestmentStatusDefaulted InvestmentStatus = "defaulted"
	InvestmentStatusRefunded  InvestmentStatus = "refunded"
)

// IsTerminal reports whether no further transition can leave this status
func (s InvestmentStatus) IsTerminal() bool {
	switch s {
	case InvestmentStatusFailed, InvestmentStatusCancelled, InvestmentStatusDefaulted, InvestmentStatusRefunded:
		return true
	}
	return false
}

// InvestmentType distinguishes single payments from recurring plans
type InvestmentType string

const (
	InvestmentTypeOneTime   InvestmentType = "one_time"
	InvestmentTypeRecurring InvestmentType = "recurring"
)

// LedgerEvent drives investment transitions
type LedgerEvent string

const (
	// EventSucceeded confirms the initial charge (one-time completes, recurring activates)
	EventSucceeded       LedgerEvent = "payment_succeeded"
	EventFailed          LedgerEvent = "payment_failed"
	EventChargeSucceeded LedgerEvent = "charge_succeeded"
	EventChargeFailed    LedgerEvent = "charge_failed"
	EventCancel          LedgerEvent = "cancel"
	EventRefund          LedgerEvent = "refund"
)

// chargeClaimPrefix marks a scheduled charge sent to the provider that has
// no provider reference yet
const chargeClaimPrefix = "claim:"

// RecurringState tracks the schedule of a recurring investment
type RecurringState struct {
	Frequency         Frequency
	NextChargeDate    *time.Time
	EndDate           *time.Time
	LastChargedAt     *time.Time
	// AnchorDay is the day of month the plan bills on; 0 until activation
	AnchorDay         int
	SubscriptionRef   string
	// PendingChargeRef is the provider reference of a charge awaiting
	// confirmation, or a claim while the charge call is in progress
	PendingChargeRef  string
	FailedAttempts    int
	// TransientFailures counts consecutive sweeps whose charge never reached
	// a provider decision
	TransientFailures int
}

// Investment is a single investor contribution to a campaign.
// Amounts are integer minor units; for recurring plans Amount is the per-charge amount.
type Investment struct {
	ID              uuid.UUID
	CampaignID      uuid.UUID
	ReservationID   *uuid.UUID
	InvestorID      string
	PaymentMethod   string
	PayerRef        string
	ExternalRef     string
	IdempotencyKey  string
	Currency        string
	FailureReason   string
	Type            InvestmentType
	Status          InvestmentStatus
	Recurring       *RecurringState
	AppliedEventIDs []string
	Amount          int64
	CommittedTotal  int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsRecurring reports whether the investment is a recurring plan
func (i *Investment) IsRecurring() bool {
	return i.Type == InvestmentTypeRecurring
}

// HasApplied reports whether an external event was already applied
func (i *Investment) HasApplied(eventID string) bool {
	for _, id := range i.AppliedEventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

// MarkApplied records an external event id
func (i *Investment) MarkApplied(eventID string) {
	if eventID == "" || i.HasApplied(eventID) {
		return
	}
	i.AppliedEventIDs = append(i.AppliedEventIDs, eventID)
}

// HasChargeInFlight reports whether a recurring charge awaits provider confirmation
func (i *Investment) HasChargeInFlight() bool {
	return i.Recurring != nil && i.Recurring.PendingChargeRef != ""
}

// ClaimCharge marks the scheduled charge identified by key as in flight and
// returns the claim. The claim is persisted before the provider is called so
// that every process sees the charge in flight.
func (i *Investment) ClaimCharge(key string) string {
	claim := chargeClaimPrefix + key
	i.Recurring.PendingChargeRef = claim
	return claim
}

// ChargeClaimed reports whether a scheduled charge is claimed but the
// provider has not yet returned a reference for it
func (i *Investment) ChargeClaimed() bool {
	return i.Recurring != nil && strings.HasPrefix(i.Recurring.PendingChargeRef, chargeClaimPrefix)
}

// AwaitsSettlement reports whether the investment holds campaign capacity for
// a payment the provider has not yet settled
func (i *Investment) AwaitsSettlement() bool {
	switch i.Status {
	case InvestmentStatusPending:
		return true
	case InvestmentStatusActive:
		return i.HasChargeInFlight()
	}
	return false
}

// Reflects reports whether the investment already records the outcome that
// event reports, as when a provider confirms a charge whose result was
// applied synchronously.
func (i *Investment) Reflects(event LedgerEvent) bool {
	switch event {
	case EventSucceeded:
		switch i.Status {
		case InvestmentStatusCompleted, InvestmentStatusRefunded, InvestmentStatusActive:
			return true
		case InvestmentStatusCancelled, InvestmentStatusDefaulted:
			return i.IsRecurring() && i.CommittedTotal > 0
		}
	case EventFailed:
		return i.Status == InvestmentStatusFailed
	case EventChargeSucceeded:
		return i.IsRecurring() && !i.HasChargeInFlight() && i.Status != InvestmentStatusPending &&
			i.Recurring.LastChargedAt != nil
	case EventChargeFailed:
		return i.IsRecurring() && !i.HasChargeInFlight() &&
			(i.Recurring.FailedAttempts > 0 || i.Status == InvestmentStatusDefaulted)
	case EventRefund:
		return i.Status == InvestmentStatusRefunded
	}
	return false
}

// IsDue reports whether a recurring charge should be attempted at now
func (i *Investment) IsDue(now time.Time) bool {
	if i.Status != InvestmentStatusActive || i.Recurring == nil || i.Recurring.NextChargeDate == nil {
		return false
	}
	if i.HasChargeInFlight() {
		return false
	}
	next := *i.Recurring.NextChargeDate
	if i.Recurring.EndDate != nil && next.After(*i.Recurring.EndDate) {
		return false
	}
	return !next.After(now)
}

// ChargeIdempotencyKey returns the gateway key for the charge due on dueDate
func (i *Investment) ChargeIdempotencyKey(dueDate time.Time) string {
	return fmt.Sprintf("inv-%s-%s", i.ID, dueDate.UTC().Format("2006-01-02"))
}

// Validate checks a new investment before it is persisted
func (i *Investment) Validate() error {
	if i.Amount <= 0 {
		return ErrValidationAmountInvalid
	}
	if len(i.Currency) != 3 {
		return ErrValidationCurrency
	}
	if i.InvestorID == "" {
		return NewValidationError("investor_id", "investor_id is required")
	}
	if i.PaymentMethod == "" {
		return NewValidationError("payment_method", "payment_method is required")
	}
	switch i.Type {
	case InvestmentTypeOneTime:
	case InvestmentTypeRecurring:
		if i.Recurring == nil || !i.Recurring.Frequency.IsValid() {
			return NewValidationError("frequency", "recurring investment needs a supported frequency")
		}
	default:
		return NewValidationError("investment_type", "unsupported investment type")
	}
	return nil
}

// TransitionOptions carries inputs the state machine needs but does not own
type TransitionOptions struct {
	Now         time.Time
	MaxAttempts int
	Reason      string
}

// Transition describes an applied state change
type Transition struct {
	From  InvestmentStatus
	To    InvestmentStatus
	Event LedgerEvent
}

// StatusChanged reports whether the transition moved the investment to a new status
func (t Transition) StatusChanged() bool {
	return t.To != t.From
}

// Apply moves the investment through the ledger state graph. On error the
// investment is left untouched.
func (i *Investment) Apply(event LedgerEvent, opts TransitionOptions) (Transition, error) {
	next, err := i.nextStatus(event, opts)
	if err != nil {
		return Transition{}, err
	}

	var nextCharge *time.Time
	switch {
	case event == EventSucceeded && i.IsRecurring():
		d, err := ComputeNextChargeDate(i.Recurring.Frequency, opts.Now)
		if err != nil {
			return Transition{}, err
		}
		nextCharge = clampToEnd(d, i.Recurring.EndDate)
	case event == EventChargeSucceeded:
		if i.Recurring.NextChargeDate == nil {
			return Transition{}, NewInvalidTransition(i.Status, event)
		}
		d, err := NextChargeDateOnDay(i.Recurring.Frequency, *i.Recurring.NextChargeDate, i.Recurring.AnchorDay)
		if err != nil {
			return Transition{}, err
		}
		nextCharge = clampToEnd(d, i.Recurring.EndDate)
	}

	tr := Transition{From: i.Status, To: next, Event: event}
	charged := opts.Now

	switch event {
	case EventSucceeded:
		i.CommittedTotal += i.Amount
		i.FailureReason = ""
		if i.IsRecurring() {
			i.Recurring.LastChargedAt = &charged
			i.Recurring.NextChargeDate = nextCharge
			i.Recurring.AnchorDay = opts.Now.Day()
		}
	case EventFailed:
		i.FailureReason = opts.Reason
	case EventChargeSucceeded:
		i.CommittedTotal += i.Amount
		i.FailureReason = ""
		i.Recurring.LastChargedAt = &charged
		i.Recurring.FailedAttempts = 0
		i.Recurring.TransientFailures = 0
		i.Recurring.PendingChargeRef = ""
		i.Recurring.NextChargeDate = nextCharge
	case EventChargeFailed:
		i.Recurring.FailedAttempts++
		i.Recurring.TransientFailures = 0
		i.Recurring.PendingChargeRef = ""
		i.FailureReason = opts.Reason
		if next == InvestmentStatusDefaulted {
			i.Recurring.NextChargeDate = nil
		}
	case EventCancel:
		i.Recurring.NextChargeDate = nil
		i.FailureReason = opts.Reason
	}

	i.Status = next
	i.UpdatedAt = opts.Now
	return tr, nil
}

func (i *Investment) nextStatus(event LedgerEvent, opts TransitionOptions) (InvestmentStatus, error) {
	switch i.Status {
	case InvestmentStatusPending:
		switch event {
		case EventSucceeded:
			if i.IsRecurring() {
				return InvestmentStatusActive, nil
			}
			return InvestmentStatusCompleted, nil
		case EventFailed:
			return InvestmentStatusFailed, nil
		}
	case InvestmentStatusActive:
		if i.Recurring == nil {
			break
		}
		switch event {
		case EventChargeSucceeded:
			return InvestmentStatusActive, nil
		case EventChargeFailed:
			if opts.MaxAttempts > 0 && i.Recurring.FailedAttempts+1 >= opts.MaxAttempts {
				return InvestmentStatusDefaulted, nil
			}
			return InvestmentStatusActive, nil
		case EventCancel:
			return InvestmentStatusCancelled, nil
		}
	case InvestmentStatusCompleted:
		if event == EventRefund {
			return InvestmentStatusRefunded, nil
		}
	}
	return "", NewInvalidTransition(i.Status, event)
}

// clampToEnd drops the next date when it falls past the plan's end date
func clampToEnd(next time.Time, end *time.Time) *time.Time {
	if end != nil && next.After(*end) {
		return nil
	}
	return &next
}
