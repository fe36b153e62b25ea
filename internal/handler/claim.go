package handler

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/claim-bot/internal/lifecycle"
	"github.com/iliyamo/claim-bot/internal/model"
	"github.com/iliyamo/claim-bot/internal/repository"
)

// maxReportedViolations caps how many bulk-load violations a single
// response carries; the full list still reaches the logs.
const maxReportedViolations = 100

// ClaimHandler exposes claim-pool administration over HTTP: bulk upload,
// listing, pre-reservation, clearing and deletion.
type ClaimHandler struct {
	Lifecycle *lifecycle.Manager
	Claims    *repository.ClaimRepo
}

// NewClaimHandler constructs a ClaimHandler.
func NewClaimHandler(lc *lifecycle.Manager, claims *repository.ClaimRepo) *ClaimHandler {
	if lc == nil || claims == nil {
		panic("nil dependency passed to NewClaimHandler")
	}
	return &ClaimHandler{Lifecycle: lc, Claims: claims}
}

// Upload handles POST /v1/events/:id/claims.  The body is a CSV file
// under the "file" form field; each record is a claim link with an
// optional username in the second column to pre-reserve it.  Validation
// is all-or-nothing: any invalid row rejects the whole upload.
func (h *ClaimHandler) Upload(c echo.Context) error {
	eventID := c.Param("id")

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing file field"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable upload"})
	}
	defer f.Close()

	seeds, err := readSeeds(f)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed csv: " + err.Error()})
	}

	created, err := h.Lifecycle.BulkLoadClaims(c.Request().Context(), eventID, seeds)
	var bulkErr *lifecycle.BulkError
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, echo.Map{"count": len(created)})
	case errors.As(err, &bulkErr):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"count":  len(bulkErr.Violations),
			"errors": bulkErr.Report(maxReportedViolations),
		})
	case errors.Is(err, repository.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
}

// readSeeds parses CSV records into claim seeds.  Records may have a
// single link column or a link,username pair; extra columns are ignored.
func readSeeds(r io.Reader) ([]model.ClaimSeed, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	seeds := make([]model.ClaimSeed, 0)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		seed := model.ClaimSeed{}
		if len(rec) > 0 {
			seed.Link = rec[0]
		}
		if len(rec) > 1 {
			seed.Username = rec[1]
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// List handles GET /v1/events/:id/claims.
func (h *ClaimHandler) List(c echo.Context) error {
	claims, err := h.Claims.ListByEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": claims})
}

type reserveReq struct {
	Usernames []string `json:"usernames"`
}

// Reserve handles POST /v1/events/:id/claims/reserve, pre-reserving one
// claim per username.  Eligibility thresholds do not apply here.
func (h *ClaimHandler) Reserve(c echo.Context) error {
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(req.Usernames) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "usernames required"})
	}
	res, err := h.Lifecycle.ReserveClaims(c.Request().Context(), c.Param("id"), req.Usernames)
	if errors.Is(err, repository.ErrEventNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reserved": res.Reserved,
		"failures": res.Failures,
	})
}

// Clear handles POST /v1/claims/:id/clear, returning the claim to the
// unreserved pool.
func (h *ClaimHandler) Clear(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid claim id"})
	}
	cl, err := h.Claims.Clear(c.Request().Context(), id)
	if errors.Is(err, repository.ErrClaimNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "claim not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, cl)
}

// Delete handles DELETE /v1/claims/:id.
func (h *ClaimHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid claim id"})
	}
	err = h.Claims.Delete(c.Request().Context(), id)
	if errors.Is(err, repository.ErrClaimNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "claim not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.NoContent(http.StatusNoContent)
}
