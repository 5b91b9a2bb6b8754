package intake

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/intake/internal/formflow"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusSubmitted = "submitted"
	StatusAbandoned = "abandoned"
)

var (
	ErrNotFound       = errors.New("intake session not found")
	ErrConflict       = errors.New("intake session was modified by another request")
	ErrUnknownProgram = errors.New("unknown program")
	ErrNotSubmittable = errors.New("intake session can only be submitted from a review or final screen")
	ErrClosed         = errors.New("intake session is no longer active")
)

// Session is a persisted intake: the engine snapshot plus ownership and
// lifecycle columns. VersionID increments on every save and guards against
// lost updates from concurrent tabs.
type Session struct {
	ID          uuid.UUID      `json:"id"`
	Program     string         `json:"program"`
	FormVersion string         `json:"form_version"`
	PatientID   string         `json:"patient_id"`
	Status      string         `json:"status"`
	State       formflow.State `json:"state"`
	VersionID   int            `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Active reports whether the session still accepts navigation.
func (s *Session) Active() bool {
	return s.Status == StatusActive
}

// View is what the renderer receives: the current screen definition and
// everything it needs to draw progress and the back button.
type View struct {
	ID           uuid.UUID             `json:"id"`
	Program      string                `json:"program"`
	FormVersion  string                `json:"form_version"`
	Status       string                `json:"status"`
	Version      int                   `json:"version"`
	Screen       *formflow.Screen      `json:"screen"`
	Answers      formflow.Answers      `json:"answers"`
	Calculations formflow.Calculations `json:"calculations"`
	Flags        formflow.FlagSet      `json:"flags"`
	Progress     float64               `json:"progress"`
	CurrentStep  int                   `json:"current_step"`
	TotalSteps   int                   `json:"total_steps"`
	History      []string              `json:"history"`
	Direction    formflow.Direction    `json:"direction"`
	ReturnTo     string                `json:"return_to,omitempty"`
	CanSubmit    bool                  `json:"can_submit"`
	Moved        *bool                 `json:"moved,omitempty"`
	SubmissionID *uuid.UUID            `json:"submission_id,omitempty"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Submittable reports whether the engine sits on a screen from which the
// intake may be sent to clinical review.
func Submittable(e *formflow.Engine) bool {
	s := e.CurrentScreen()
	return s != nil && (s.Type == formflow.ScreenReview || s.Type == formflow.ScreenTerminal)
}

// NewView renders s and its live engine.
func NewView(s *Session, e *formflow.Engine) *View {
	history := e.History()
	if history == nil {
		history = []string{}
	}
	return &View{
		ID:           s.ID,
		Program:      s.Program,
		FormVersion:  s.FormVersion,
		Status:       s.Status,
		Version:      s.VersionID,
		Screen:       e.CurrentScreen(),
		Answers:      e.Answers(),
		Calculations: e.Calculations(),
		Flags:        e.Flags(),
		Progress:     e.Progress(),
		CurrentStep:  e.CurrentStep(),
		TotalSteps:   e.TotalSteps(),
		History:      history,
		Direction:    e.Direction(),
		ReturnTo:     e.ReturnTo(),
		CanSubmit:    s.Active() && Submittable(e),
		UpdatedAt:    s.UpdatedAt,
	}
}
