package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/iot-monitor/dashboard/internal/history"
	"github.com/iot-monitor/dashboard/internal/i18n"
	"github.com/iot-monitor/dashboard/internal/models"
	"github.com/iot-monitor/dashboard/internal/snapshot"
	"github.com/iot-monitor/dashboard/internal/token"
	"github.com/iot-monitor/dashboard/internal/upstream"
	"github.com/iot-monitor/dashboard/internal/watch"
)

// Handler handles API requests.
type Handler struct {
	auth       *upstream.AuthClient
	devices    *upstream.DeviceClient
	categories *upstream.CategoryClient
	alerts     *upstream.AlertClient
	watches    *watch.Manager
	archive    *history.Store  // nil when persistence is disabled
	snapshots  *snapshot.Store // nil when persistence is disabled
	tokens     *token.Store
	labels     *i18n.Bundle
}

// NewHandler creates a new API handler.
func NewHandler(
	auth *upstream.AuthClient,
	devices *upstream.DeviceClient,
	categories *upstream.CategoryClient,
	alerts *upstream.AlertClient,
	watches *watch.Manager,
	archive *history.Store,
	snapshots *snapshot.Store,
	tokens *token.Store,
	labels *i18n.Bundle,
) *Handler {
	return &Handler{
		auth:       auth,
		devices:    devices,
		categories: categories,
		alerts:     alerts,
		watches:    watches,
		archive:    archive,
		snapshots:  snapshots,
		tokens:     tokens,
		labels:     labels,
	}
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HandleLogin authenticates against the upstream token endpoint and persists
// the issued pair.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Username == "" {
		return NewValidationError("username")
	}
	if req.Password == "" {
		return NewValidationError("password")
	}

	pair, err := h.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return FromUpstream(err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": true,
		"role":          h.tokens.Role(),
		"access":        pair.Access,
	})
}

// HandleRegister creates an account upstream and authenticates immediately.
func (h *Handler) HandleRegister(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Username == "" {
		return NewValidationError("username")
	}
	if req.Email == "" {
		return NewValidationError("email")
	}
	if req.Password == "" {
		return NewValidationError("password")
	}

	resp, err := h.auth.Register(c.Request().Context(), req)
	if err != nil {
		return FromUpstream(err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"authenticated": true,
		"user":          resp.User,
		"role":          h.tokens.Role(),
	})
}

// HandleLogout clears the persisted credentials. All live watches stop; the
// sockets must not outlive the session.
func (h *Handler) HandleLogout(c echo.Context) error {
	h.watches.StopAll()
	h.auth.Logout()
	return c.JSON(http.StatusOK, map[string]string{
		"redirect": "/login",
	})
}

// HandleSession reports the cached authentication state and role.
func (h *Handler) HandleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": h.auth.IsAuthenticated(),
		"role":          h.tokens.Role(),
		"language":      h.currentLanguage(),
	})
}

// HandleVerifyToken explicitly validates the stored access token upstream.
func (h *Handler) HandleVerifyToken(c echo.Context) error {
	if err := h.auth.VerifyToken(c.Request().Context()); err != nil {
		return FromUpstream(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"valid": true})
}

// HandleCurrentUser returns the upstream account details (/me/).
func (h *Handler) HandleCurrentUser(c echo.Context) error {
	user, err := h.auth.CurrentUser(c.Request().Context())
	if err != nil {
		return FromUpstream(err)
	}
	return c.JSON(http.StatusOK, user)
}

// HandleGetLanguage returns the active language and its label bundle.
func (h *Handler) HandleGetLanguage(c echo.Context) error {
	lang := h.currentLanguage()
	return c.JSON(http.StatusOK, map[string]any{
		"language":  lang,
		"supported": i18n.SupportedLanguages,
		"labels":    h.labels.Labels(lang),
	})
}

// HandleSetLanguage persists the language preference. The preference survives
// logout.
func (h *Handler) HandleSetLanguage(c echo.Context) error {
	var req struct {
		Language string `json:"language"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if !h.labels.Supported(req.Language) {
		return NewValidationError("language")
	}
	h.tokens.SetLanguage(req.Language)
	return c.JSON(http.StatusOK, map[string]string{"language": req.Language})
}

func (h *Handler) currentLanguage() string {
	if lang := h.tokens.Language(); lang != "" && h.labels.Supported(lang) {
		return lang
	}
	return i18n.DefaultLanguage
}
