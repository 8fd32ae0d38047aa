package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus is the state of a capacity hold
type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusReversed  ReservationStatus = "reversed"
)

// Reservation is a provisional hold against a campaign's remaining capacity.
// Its ID is the token handed back by the funding aggregator.
type Reservation struct {
	ID           uuid.UUID
	CampaignID   uuid.UUID
	InvestmentID *uuid.UUID
	Status       ReservationStatus
	Amount       int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsHeld reports whether the reservation still holds capacity without being committed
func (r *Reservation) IsHeld() bool {
	return r.Status == ReservationStatusHeld
}
