package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/claim-bot/internal/config"
	"github.com/iliyamo/claim-bot/internal/repository"
	"github.com/iliyamo/claim-bot/internal/utils"
)

// AdminHandler registers new admins.  An admin created without a
// password can still issue message-channel commands but cannot log in to
// this API.
type AdminHandler struct {
	Cfg    config.Config
	Admins *repository.AdminRepo
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(cfg config.Config, admins *repository.AdminRepo) *AdminHandler {
	if admins == nil {
		panic("nil repository passed to NewAdminHandler")
	}
	return &AdminHandler{Cfg: cfg, Admins: admins}
}

type adminReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Create handles POST /v1/admins.
func (h *AdminHandler) Create(c echo.Context) error {
	var req adminReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username required"})
	}

	var hash string
	if req.Password != "" {
		var err error
		hash, err = utils.HashPassword(req.Password, h.Cfg.BcryptCost)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash password failed"})
		}
	}

	id, err := h.Admins.Create(c.Request().Context(), req.Username, hash)
	if errors.Is(err, repository.ErrConflict) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "admin already exists"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id, "username": req.Username})
}
