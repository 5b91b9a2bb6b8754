package review

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/formflow"
	"github.com/ehr/intake/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func clinicianContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "dr-1")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"physician"})
	rec := httptest.NewRecorder()
	return e.NewContext(req.WithContext(ctx), rec), rec
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d", code, he.Code)
	}
}

func TestHandler_ListQueue(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.Enqueue(context.Background(), submittedSession(formflow.SeverityHigh))

	req := httptest.NewRequest(http.MethodGet, "/?status=queued", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.ListQueue(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one queued submission, got %s", rec.Body.String())
	}
}

func TestHandler_ListQueue_InvalidStatus(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?status=lost", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	expectStatus(t, h.ListQueue(c), http.StatusBadRequest)
}

func TestHandler_GetSubmission(t *testing.T) {
	h, svc, e := newTestHandler()
	id, _ := svc.Enqueue(context.Background(), submittedSession(""))

	c, rec := clinicianContext(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	if err := h.GetSubmission(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetSubmission_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := clinicianContext(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectStatus(t, h.GetSubmission(c), http.StatusNotFound)
}

func TestHandler_GetSummary(t *testing.T) {
	h, svc, e := newTestHandler()
	id, _ := svc.Enqueue(context.Background(), submittedSession(formflow.SeverityWarning))

	c, rec := clinicianContext(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	if err := h.GetSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMETextHTML) {
		t.Errorf("expected html content type, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "<h1>Weight loss intake</h1>") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_ReviewSubmission(t *testing.T) {
	h, svc, e := newTestHandler()
	id, _ := svc.Enqueue(context.Background(), submittedSession(formflow.SeverityHigh))

	c, rec := clinicianContext(e, http.MethodPut, `{"status":"in_review"}`)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	if err := h.ReviewSubmission(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"reviewer_id":"dr-1"`) {
		t.Errorf("expected reviewer recorded, got %s", rec.Body.String())
	}

	c, _ = clinicianContext(e, http.MethodPut, `{"status":"in_review"}`)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	expectStatus(t, h.ReviewSubmission(c), http.StatusConflict)
}

func TestHandler_ReviewSubmission_BadStatus(t *testing.T) {
	h, svc, e := newTestHandler()
	id, _ := svc.Enqueue(context.Background(), submittedSession(""))
	c, _ := clinicianContext(e, http.MethodPut, `{"status":"maybe"}`)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	expectStatus(t, h.ReviewSubmission(c), http.StatusBadRequest)
}

func TestHTTPError_StaleReviewConflicts(t *testing.T) {
	expectStatus(t, httpError(fmt.Errorf("update submission: %w", ErrStaleReview)), http.StatusConflict)
}
