package review

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/intake/internal/domain/intake"
	"github.com/ehr/intake/internal/formflow"
)

// Submission statuses.
const (
	StatusQueued   = "queued"
	StatusInReview = "in_review"
	StatusApproved = "approved"
	StatusDeclined = "declined"
)

// Queue priorities, most urgent first.
const (
	PriorityUrgent   = "urgent"
	PriorityElevated = "elevated"
	PriorityRoutine  = "routine"
)

var (
	ErrNotFound          = errors.New("submission not found")
	ErrInvalidTransition = errors.New("invalid review status transition")
	ErrStaleReview       = errors.New("submission status changed since it was read")
)

var transitions = map[string][]string{
	StatusQueued:   {StatusInReview},
	StatusInReview: {StatusApproved, StatusDeclined},
}

// CanTransition reports whether a submission in status from may move to to.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known submission status.
func ValidStatus(s string) bool {
	switch s {
	case StatusQueued, StatusInReview, StatusApproved, StatusDeclined:
		return true
	}
	return false
}

// Submission is a finished intake waiting for, or holding, a clinician's
// decision. Answers, calculations and flags are frozen at submit time.
type Submission struct {
	ID             uuid.UUID             `json:"id"`
	SessionID      uuid.UUID             `json:"session_id"`
	Program        string                `json:"program"`
	FormVersion    string                `json:"form_version"`
	PatientID      string                `json:"patient_id"`
	Answers        formflow.Answers      `json:"answers"`
	Calculations   formflow.Calculations `json:"calculations"`
	Flags          formflow.FlagSet      `json:"flags"`
	FlagEvents     []formflow.FlagEvent  `json:"flag_events"`
	RequiresReview bool                  `json:"requires_review"`
	Priority       string                `json:"priority"`
	Status         string                `json:"status"`
	ReviewerID     *string               `json:"reviewer_id,omitempty"`
	Note           *string               `json:"note,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Priority ranks a submission by the most severe rule that raised one of
// its flags. Flags with no recorded rule count as routine.
func Priority(events []formflow.FlagEvent) string {
	p := PriorityRoutine
	for _, ev := range events {
		switch ev.Severity {
		case formflow.SeverityCritical:
			return PriorityUrgent
		case formflow.SeverityHigh, formflow.SeverityWarning:
			p = PriorityElevated
		}
	}
	return p
}

// FromSession freezes a submitted session into a queued submission.
func FromSession(s *intake.Session) *Submission {
	st := s.State
	flags := st.Flags
	if flags == nil {
		flags = formflow.NewFlagSet()
	}
	events := st.FlagEvents
	if events == nil {
		events = []formflow.FlagEvent{}
	}
	answers := st.Answers
	if answers == nil {
		answers = formflow.Answers{}
	}
	calcs := st.Calculations
	if calcs == nil {
		calcs = formflow.Calculations{}
	}
	return &Submission{
		SessionID:      s.ID,
		Program:        s.Program,
		FormVersion:    s.FormVersion,
		PatientID:      s.PatientID,
		Answers:        answers,
		Calculations:   calcs,
		Flags:          flags,
		FlagEvents:     events,
		RequiresReview: len(flags) > 0,
		Priority:       Priority(events),
		Status:         StatusQueued,
	}
}
