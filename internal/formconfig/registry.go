package formconfig

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/formflow"
)

//go:embed programs/*.yaml
var builtinPrograms embed.FS

// Summary describes one registered program for listings.
type Summary struct {
	Program        string `json:"program"`
	FormID         string `json:"form_id"`
	Version        string `json:"version"`
	Title          string `json:"title,omitempty"`
	Screens        int    `json:"screens"`
	EstimatedSteps int    `json:"estimated_steps"`
}

// Registry maps program names to their active form configuration. It is
// safe for concurrent use; forms handed out must be treated as read-only.
type Registry struct {
	mu     sync.RWMutex
	forms  map[string]*formflow.Form
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		forms:  make(map[string]*formflow.Form),
		logger: logger,
	}
}

// Load builds a registry from the embedded programs, then overlays any
// configurations found in dir. An empty dir loads the built-ins only.
func Load(dir string, logger zerolog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.LoadBuiltin(); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := r.LoadDir(dir); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadBuiltin registers the programs compiled into the binary.
func (r *Registry) LoadBuiltin() error {
	forms, err := LoadFS(builtinPrograms, "programs")
	if err != nil {
		return fmt.Errorf("load built-in programs: %w", err)
	}
	for _, f := range forms {
		r.Register(f)
	}
	return nil
}

// LoadDir registers every configuration in dir, replacing built-ins that
// share a program name.
func (r *Registry) LoadDir(dir string) error {
	forms, err := LoadFS(os.DirFS(dir), ".")
	if err != nil {
		return fmt.Errorf("load programs from %s: %w", dir, err)
	}
	for _, f := range forms {
		r.Register(f)
	}
	return nil
}

// Register adds form under its program name. Lint errors are logged but do
// not block registration; the engine degrades on them at runtime.
func (r *Registry) Register(form *formflow.Form) {
	for _, issue := range Lint(form) {
		ev := r.logger.Warn()
		if issue.Severity == SeverityError {
			ev = r.logger.Error()
		}
		ev.Str("program", form.Program).Str("screen_id", issue.ScreenID).Msg(issue.Message)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.forms[form.Program]; ok {
		r.logger.Info().Str("program", form.Program).
			Str("old_version", prev.Version).Str("new_version", form.Version).
			Msg("replacing form configuration")
	}
	r.forms[form.Program] = form
}

// Get returns the form for program.
func (r *Registry) Get(program string) (*formflow.Form, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.forms[program]
	return f, ok
}

// Programs returns the registered program names in lexical order.
func (r *Registry) Programs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.forms))
	for p := range r.forms {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// List summarises every registered program in lexical order.
func (r *Registry) List() []Summary {
	programs := r.Programs()
	out := make([]Summary, 0, len(programs))
	for _, p := range programs {
		f, ok := r.Get(p)
		if !ok {
			continue
		}
		out = append(out, Summary{
			Program:        f.Program,
			FormID:         f.ID,
			Version:        f.Version,
			Title:          f.Title,
			Screens:        len(f.Screens),
			EstimatedSteps: f.StepEstimate(),
		})
	}
	return out
}
