package services

import (
	"fmt"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/models"
)

// Event is an action that moves a job between statuses.
type Event string

const (
	EventAcceptOffer   Event = "accept an offer on"
	EventPickup        Event = "pick up"
	EventCancel        Event = "cancel"
	EventStart         Event = "start"
	EventMarkDone      Event = "mark done"
	EventPay           Event = "pay for"
	EventFullyComplete Event = "fully complete"
)

// Initial status is open; fully_completed and cancelled have no way out.
var transitions = map[string]map[Event]string{
	models.JobStatusOpen: {
		EventAcceptOffer: models.JobStatusAssigned,
		EventPickup:      models.JobStatusAssigned,
		EventCancel:      models.JobStatusCancelled,
	},
	models.JobStatusAssigned: {
		EventStart:    models.JobStatusInProgress,
		EventMarkDone: models.JobStatusWorkDone,
	},
	models.JobStatusInProgress: {
		EventMarkDone: models.JobStatusWorkDone,
	},
	models.JobStatusWorkDone: {
		EventPay: models.JobStatusCompleted,
	},
	models.JobStatusCompleted: {
		EventFullyComplete: models.JobStatusFullyCompleted,
	},
}

// NextStatus returns the status a job in from reaches on ev.
func NextStatus(from string, ev Event) (string, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// CanTransition reports whether ev is allowed from status from.
func CanTransition(from string, ev Event) bool {
	_, ok := NextStatus(from, ev)
	return ok
}

// IsTerminal reports whether no event leaves status.
func IsTerminal(status string) bool {
	return len(transitions[status]) == 0
}

func advance(j *models.Job, ev Event) error {
	to, ok := NextStatus(j.Status, ev)
	if !ok {
		return apperr.Precondition("invalid_transition", fmt.Sprintf("cannot %s a job that is %s", ev, j.Status))
	}
	j.Status = to
	return nil
}

// checkEditable guards edit, delete and cancel: terms are frozen once a
// worker has committed to them.
func checkEditable(j *models.Job) error {
	if j.Status != models.JobStatusOpen || j.HasAcceptedOffer() {
		return apperr.Precondition("job_locked", "job can only be changed while open and before an offer is accepted")
	}
	return nil
}
