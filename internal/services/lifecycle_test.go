package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/workmandi/backend/internal/models"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from string
		ev   Event
		to   string
		ok   bool
	}{
		{models.JobStatusOpen, EventAcceptOffer, models.JobStatusAssigned, true},
		{models.JobStatusOpen, EventPickup, models.JobStatusAssigned, true},
		{models.JobStatusOpen, EventCancel, models.JobStatusCancelled, true},
		{models.JobStatusOpen, EventMarkDone, "", false},
		{models.JobStatusAssigned, EventStart, models.JobStatusInProgress, true},
		{models.JobStatusAssigned, EventMarkDone, models.JobStatusWorkDone, true},
		{models.JobStatusAssigned, EventPay, "", false},
		{models.JobStatusInProgress, EventMarkDone, models.JobStatusWorkDone, true},
		{models.JobStatusWorkDone, EventPay, models.JobStatusCompleted, true},
		{models.JobStatusCompleted, EventPay, "", false},
		{models.JobStatusCompleted, EventFullyComplete, models.JobStatusFullyCompleted, true},
		{models.JobStatusFullyCompleted, EventCancel, "", false},
		{models.JobStatusCancelled, EventAcceptOffer, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"/"+string(tt.ev), func(t *testing.T) {
			to, ok := NextStatus(tt.from, tt.ev)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.to, to)
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.ev))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.JobStatusFullyCompleted))
	assert.True(t, IsTerminal(models.JobStatusCancelled))
	assert.False(t, IsTerminal(models.JobStatusOpen))
	assert.False(t, IsTerminal(models.JobStatusCompleted))
}
