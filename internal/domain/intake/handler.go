package intake

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/formconfig"
	"github.com/ehr/intake/internal/platform/auth"
	"github.com/ehr/intake/pkg/pagination"
)

// Catalog is the program registry as seen by the HTTP layer.
type Catalog interface {
	FormSource
	List() []formconfig.Summary
}

type Handler struct {
	svc     *Service
	catalog Catalog
}

func NewHandler(svc *Service, catalog Catalog) *Handler {
	return &Handler{svc: svc, catalog: catalog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Form catalog – every signed-in role
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RolePatient))
	readGroup.GET("/forms", h.ListForms)
	readGroup.GET("/forms/:program", h.GetForm)

	// Intake sessions – patients drive their own, admin may act on any
	patientGroup := api.Group("", auth.RequireRole(auth.RolePatient))
	patientGroup.GET("/intake-sessions", h.ListSessions)
	patientGroup.POST("/intake-sessions", h.StartSession)
	patientGroup.GET("/intake-sessions/:id", h.GetSession)
	patientGroup.PATCH("/intake-sessions/:id/answers", h.UpdateAnswers)
	patientGroup.POST("/intake-sessions/:id/next", h.Next)
	patientGroup.POST("/intake-sessions/:id/prev", h.Prev)
	patientGroup.POST("/intake-sessions/:id/goto", h.GoTo)
	patientGroup.POST("/intake-sessions/:id/submit", h.Submit)
	patientGroup.POST("/intake-sessions/:id/abandon", h.Abandon)
}

type startRequest struct {
	Program   string         `json:"program"`
	PatientID string         `json:"patient_id,omitempty"`
	Prefill   map[string]any `json:"prefill,omitempty"`
}

type answersRequest struct {
	Answers map[string]any `json:"answers"`
	Version int            `json:"version"`
}

type navigateRequest struct {
	ScreenID string `json:"screen_id,omitempty"`
	Version  int    `json:"version"`
}

func isAdmin(c echo.Context) bool {
	return auth.HasRole(c.Request().Context(), auth.RoleAdmin)
}

// owner returns the patient id a request is confined to, or "" for admins.
func owner(c echo.Context) string {
	return auth.PatientScope(c.Request().Context())
}

func sessionRef(c echo.Context, version int) (Ref, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return Ref{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return Ref{ID: id, Owner: owner(c), Version: version}, nil
}

func httpError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "intake session not found")
	case errors.Is(err, ErrConflict), errors.Is(err, ErrClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownProgram):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotSubmittable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// -- Forms --

func (h *Handler) ListForms(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.List())
}

func (h *Handler) GetForm(c echo.Context) error {
	form, ok := h.catalog.Get(c.Param("program"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "program not found")
	}
	return c.JSON(http.StatusOK, form)
}

// -- Sessions --

func (h *Handler) ListSessions(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID := auth.UserIDFromContext(c.Request().Context())
	if isAdmin(c) && c.QueryParam("patient_id") != "" {
		patientID = c.QueryParam("patient_id")
	}
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) StartSession(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Program == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "program is required")
	}
	patientID := auth.UserIDFromContext(c.Request().Context())
	if isAdmin(c) && req.PatientID != "" {
		patientID = req.PatientID
	}
	res, err := h.svc.Start(c.Request().Context(), req.Program, patientID, req.Prefill)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res.View())
}

func (h *Handler) GetSession(c echo.Context) error {
	ref, err := sessionRef(c, 0)
	if err != nil {
		return err
	}
	res, err := h.svc.Get(c.Request().Context(), ref)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res.View())
}

func (h *Handler) UpdateAnswers(c echo.Context) error {
	var req answersRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Answers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "answers are required")
	}
	ref, err := sessionRef(c, req.Version)
	if err != nil {
		return err
	}
	res, err := h.svc.UpdateAnswers(c.Request().Context(), ref, req.Answers)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res.View())
}

func (h *Handler) navigate(c echo.Context, op func(ref Ref, req navigateRequest) (*Result, error)) error {
	var req navigateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ref, err := sessionRef(c, req.Version)
	if err != nil {
		return err
	}
	res, err := op(ref, req)
	if err != nil {
		return httpError(err)
	}
	v := res.View()
	moved := res.Moved
	v.Moved = &moved
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Next(c echo.Context) error {
	return h.navigate(c, func(ref Ref, _ navigateRequest) (*Result, error) {
		return h.svc.Next(c.Request().Context(), ref)
	})
}

func (h *Handler) Prev(c echo.Context) error {
	return h.navigate(c, func(ref Ref, _ navigateRequest) (*Result, error) {
		return h.svc.Prev(c.Request().Context(), ref)
	})
}

func (h *Handler) GoTo(c echo.Context) error {
	return h.navigate(c, func(ref Ref, req navigateRequest) (*Result, error) {
		if req.ScreenID == "" {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "screen_id is required")
		}
		return h.svc.GoTo(c.Request().Context(), ref, req.ScreenID)
	})
}

func (h *Handler) Submit(c echo.Context) error {
	var req navigateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ref, err := sessionRef(c, req.Version)
	if err != nil {
		return err
	}
	res, err := h.svc.Submit(c.Request().Context(), ref)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res.View())
}

func (h *Handler) Abandon(c echo.Context) error {
	var req navigateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ref, err := sessionRef(c, req.Version)
	if err != nil {
		return err
	}
	res, err := h.svc.Abandon(c.Request().Context(), ref)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res.View())
}
