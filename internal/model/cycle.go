package model

import (
	"time"

	"github.com/google/uuid"
)

// CycleState is a position in the uploader state machine.
type CycleState string

const (
	StateIdle       CycleState = "idle"
	StateCollecting CycleState = "collecting"
	StateUploading  CycleState = "uploading"
)

// IngestionCycle summarises one run of the uploader.
type IngestionCycle struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Collected  int
	Acked      int
	Applied    []string
	Failed     map[string]error
}

// Succeeded reports whether every symbol applied.
func (c IngestionCycle) Succeeded() bool {
	return len(c.Failed) == 0
}
