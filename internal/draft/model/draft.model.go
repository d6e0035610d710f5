package model

import (
	"errors"
	"time"
)

// SaveStatus is the controller's view of persistence freshness.
type SaveStatus string

const (
	StatusUnsaved     SaveStatus = "unsaved"
	StatusSaving      SaveStatus = "saving"
	StatusSaved       SaveStatus = "saved"
	StatusLoadedDraft SaveStatus = "loaded-draft"
	StatusError       SaveStatus = "error"
)

// Persisted reports whether the content is confirmed stored.
func (s SaveStatus) Persisted() bool {
	return s == StatusSaved || s == StatusLoadedDraft
}

// Phase is the editing-surface sub-machine.
type Phase string

const (
	PhaseClosed      Phase = "closed"
	PhaseLoading     Phase = "loading"
	PhaseEditing     Phase = "editing"
	PhaseClosing     Phase = "closing"      // forced save on close in flight
	PhaseConfirmExit Phase = "confirm-exit" // "draft preserved" prompt shown
	PhaseFinalizing  Phase = "finalizing"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

var (
	ErrLoadFailure   = errors.New("draft load failed")
	ErrSaveFailure   = errors.New("draft save failed")
	ErrDeleteFailure = errors.New("draft delete failed")
)

type StatusLabel struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Tone string `json:"tone"`
}

// Snapshot is what the host UI renders.
type Snapshot struct {
	SessionID  string      `json:"session_id"`
	RecordID   string      `json:"record_id"`
	Phase      Phase       `json:"phase"`
	Status     SaveStatus  `json:"status"`
	Content    string      `json:"content"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
	LoadFailed bool        `json:"load_failed,omitempty"`
	Label      StatusLabel `json:"label"`
}

type DraftResponse struct {
	RecordID  string    `json:"record_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}
