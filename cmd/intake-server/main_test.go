package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/intake/internal/config"
	"github.com/ehr/intake/internal/formconfig"
	"github.com/ehr/intake/internal/formflow"
)

func init() {
	color.NoColor = true
}

func builtinRegistry(t *testing.T) *formconfig.Registry {
	t.Helper()
	reg, err := formconfig.Load("", zerolog.Nop())
	require.NoError(t, err)
	return reg
}

func builtinForm(t *testing.T, program string) *formflow.Form {
	t.Helper()
	form, ok := builtinRegistry(t).Get(program)
	require.True(t, ok)
	return form
}

func TestLintRegistry_BuiltinsHaveNoErrors(t *testing.T) {
	results := lintRegistry(builtinRegistry(t))
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Zero(t, r.errors(), "%s: %v", r.Form.Program, r.Issues)
	}

	var buf bytes.Buffer
	assert.Zero(t, printLint(&buf, results))
	assert.Contains(t, buf.String(), "weight_loss")
}

func TestPrintLint_CountsFailedForms(t *testing.T) {
	form := &formflow.Form{ID: "broken", Program: "broken", Version: "1", Screens: []formflow.Screen{
		{ID: "a", Type: formflow.ScreenContent, Next: "missing"},
	}}
	form.Index()
	results := []lintResult{{Form: form, Issues: formconfig.Lint(form)}}

	var buf bytes.Buffer
	assert.Equal(t, 1, printLint(&buf, results))
	assert.Contains(t, buf.String(), "missing")
}

func TestWalkForm_Exit(t *testing.T) {
	r := walkForm(builtinForm(t, "weight_loss"), formflow.Answers{"state": "HI"})

	assert.Equal(t, []string{"welcome", "qualify.state", "end.unavailable_state"}, r.Path)
	assert.True(t, r.Terminal)
	assert.Equal(t, "end.unavailable_state", r.Final)
}

func TestWalkForm_HappyPath(t *testing.T) {
	answers := formflow.Answers{
		"state": "CA", "sex_birth": "female", "pregnancy_status": "none",
		"profile.dob": "1985-03-10", "height_ft": 5, "height_in": 6, "weight": 250,
		"conditions": []any{"pancreatitis"}, "takes_medication": "no",
		"glp1_experience": "never", "goals": []any{"energy"},
		"email": "pat@example.com", "first_name": "Pat", "last_name": "Lee",
		"plan": "monthly", "consent_telehealth": true,
	}
	r := walkForm(builtinForm(t, "weight_loss"), answers)

	assert.True(t, r.Terminal)
	assert.Equal(t, "done", r.Final)
	assert.Contains(t, r.Path, "review")
	// A valid email skips the capture screen.
	assert.NotContains(t, r.Path, "account.email")
	assert.Contains(t, r.Flags, "flag_bmi_severe")
	bmi, ok := r.Calculations.Value("bmi")
	require.True(t, ok)
	assert.Equal(t, 40.3, bmi)

	var buf bytes.Buffer
	printWalk(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "Reached terminal screen done")
	assert.Contains(t, out, "bmi = 40.3")
	assert.Contains(t, out, "flag_bmi_severe")
}

func TestReadAnswers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state: CA\nweight: 180\ngoals: [energy, sleep]\n"), 0o600))

	answers, err := readAnswers(path)
	require.NoError(t, err)
	assert.Equal(t, "CA", answers["state"])
	assert.Equal(t, 180, answers["weight"])
	assert.Len(t, answers["goals"], 2)

	_, err = readAnswers(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestResumeEngine_RoundTrip(t *testing.T) {
	form := builtinForm(t, "weight_loss")
	path := filepath.Join(t.TempDir(), "state.json")

	e, err := resumeEngine(form, path)
	require.NoError(t, err)
	require.True(t, e.GoToNext())
	e.UpdateAnswers(map[string]any{"state": "CA"})
	require.NoError(t, saveState(path, e.Snapshot()))

	resumed, err := resumeEngine(form, path)
	require.NoError(t, err)
	assert.Equal(t, "qualify.state", resumed.CurrentScreenID())
	assert.Equal(t, "CA", resumed.Answers()["state"])
}

func testServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Env:            "development",
		StoreDriver:    config.StoreSQLite,
		SQLitePath:     filepath.Join(t.TempDir(), "intake.db"),
		BodyLimit:      "64K",
		RequestTimeout: 5 * time.Second,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
	st, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(st.close)
	return newServer(cfg, zerolog.Nop(), st, builtinRegistry(t))
}

func TestServer_Health(t *testing.T) {
	srv := testServer(t)

	for _, path := range []string{"/health", "/health/db"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), path)
	}
}

func TestServer_IntakeToReview(t *testing.T) {
	srv := testServer(t)

	do := func(method, path, body, user, roles string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("X-Dev-User", user)
		req.Header.Set("X-Dev-Roles", roles)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/api/v1/intake-sessions", `{"program":"weight_loss"}`, "pat-1", "patient")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
		Screen  struct {
			ID string `json:"id"`
		} `json:"screen"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "welcome", view.Screen.ID)

	// Another patient cannot see the session.
	rec = do(http.MethodGet, "/api/v1/intake-sessions/"+view.ID, "", "pat-2", "patient")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Patients cannot read the review queue.
	rec = do(http.MethodGet, "/api/v1/review-queue", "", "pat-1", "patient")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(http.MethodGet, "/api/v1/review-queue", "", "doc-1", "physician")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
