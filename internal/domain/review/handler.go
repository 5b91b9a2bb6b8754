package review

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/platform/auth"
	"github.com/ehr/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Clinical review – physician, nurse, admin
	clinicianGroup := api.Group("", auth.RequireClinician())
	clinicianGroup.GET("/review-queue", h.ListQueue)
	clinicianGroup.GET("/submissions/:id", h.GetSubmission)
	clinicianGroup.GET("/submissions/:id/summary", h.GetSummary)
	clinicianGroup.PUT("/submissions/:id/review", h.ReviewSubmission)
}

type reviewRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrStaleReview):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func submissionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) ListQueue(c echo.Context) error {
	pg := pagination.FromContext(c)
	status := c.QueryParam("status")
	if status != "" && !ValidStatus(status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	items, total, err := h.svc.Queue(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetSubmission(c echo.Context) error {
	id, err := submissionID(c)
	if err != nil {
		return err
	}
	sub, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) GetSummary(c echo.Context) error {
	id, err := submissionID(c)
	if err != nil {
		return err
	}
	html, err := h.svc.Summary(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.HTMLBlob(http.StatusOK, html)
}

func (h *Handler) ReviewSubmission(c echo.Context) error {
	id, err := submissionID(c)
	if err != nil {
		return err
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !ValidStatus(req.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	reviewer := auth.UserIDFromContext(c.Request().Context())
	sub, err := h.svc.Review(c.Request().Context(), id, reviewer, req.Status, req.Note)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}
