package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/gemini"
	"github.com/autoseers/carseer/internal/health"
	"github.com/autoseers/carseer/internal/middleware"
	"github.com/autoseers/carseer/internal/model"
)

// maxReportBytes caps uploaded report images.
const maxReportBytes = 10 << 20

var errNoVehicle = fmt.Errorf("no vehicle registered: %w", apperr.ErrNotFound)

// VehicleResolver loads the caller's vehicle.
type VehicleResolver interface {
	ResolveVehicle(ctx context.Context, userID string) (model.Vehicle, error)
}

// VehicleLinker resolves and links the caller's vehicle.
type VehicleLinker interface {
	VehicleResolver
	SetVehicle(ctx context.Context, userID string, ref model.VehicleRef) error
}

// VehicleStore persists vehicles and parts.
type VehicleStore interface {
	Create(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	UpdateDetails(ctx context.Context, v model.Vehicle) error
	UpdateSummary(ctx context.Context, id string, healthScore, recallCount int) error
	SetHealthScore(ctx context.Context, id string, score int) error
	ReplaceParts(ctx context.Context, vehicleID string, parts []model.PartStatus) error
	ListParts(ctx context.Context, vehicleID string) ([]model.PartStatus, error)
	GetPart(ctx context.Context, vehicleID, partID string) (model.PartStatus, error)
	MarkPartRepaired(ctx context.Context, vehicleID, partID string) error
	SetPartDescription(ctx context.Context, partID, description string) (bool, error)
}

// Advisor is the generative model behind reports, alerts, recommendations
// and price estimates.
type Advisor interface {
	Enabled() bool
	ExtractReport(ctx context.Context, image []byte, mimeType string) (gemini.Report, error)
	AlertSummary(ctx context.Context, p model.PartStatus) (string, error)
	Recommendations(ctx context.Context, v model.Vehicle) ([]gemini.Recommendation, error)
	EstimatePrice(ctx context.Context, v model.Vehicle) (string, error)
}

// CacheInvalidator drops cached responses derived from a user's vehicle.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// VehicleHandler serves the vehicle, its parts and the derived views.
type VehicleHandler struct {
	Users    VehicleLinker
	Vehicles VehicleStore
	AI       Advisor
	cache    CacheInvalidator
	log      zerolog.Logger
	now      func() time.Time
}

func NewVehicleHandler(users VehicleLinker, vehicles VehicleStore, ai Advisor, log zerolog.Logger) *VehicleHandler {
	return &VehicleHandler{Users: users, Vehicles: vehicles, AI: ai, log: log, now: time.Now}
}

// WithCache makes vehicle changes invalidate cached recommendations.
func (h *VehicleHandler) WithCache(c CacheInvalidator) *VehicleHandler {
	h.cache = c
	return h
}

type vehicleResp struct {
	ID             string `json:"id"`
	Make           string `json:"make"`
	Model          string `json:"model"`
	Year           int    `json:"year"`
	Mileage        int    `json:"mileage"`
	HealthScore    int    `json:"health_score"`
	RecallCount    int    `json:"recall_count"`
	EstimatedPrice string `json:"estimated_price"`
}

func toVehicleResp(v model.Vehicle) vehicleResp {
	return vehicleResp{
		ID:             v.ID,
		Make:           v.Make,
		Model:          v.Model,
		Year:           v.Year,
		Mileage:        v.Mileage,
		HealthScore:    v.HealthScore,
		RecallCount:    v.RecallCount,
		EstimatedPrice: v.EstimatedPrice,
	}
}

type homeResp struct {
	Mileage        int    `json:"mileage"`
	HealthScore    int    `json:"health_score"`
	Alerts         int    `json:"alert"`
	Repairs        int    `json:"repairs"`
	Reports        int    `json:"reports"`
	Make           string `json:"make"`
	Model          string `json:"model"`
	Year           int    `json:"year"`
	EstimatedPrice string `json:"estimated_price"`
}

type alertResp struct {
	ID          string `json:"id"`
	Part        string `json:"part"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	Description string `json:"description"`
	UpdatedDate string `json:"updatedDate"`
}

type manualReq struct {
	Year    int    `json:"year"`
	Make    string `json:"make"`
	Model   string `json:"model"`
	Mileage int    `json:"mileage"`
}

func (r manualReq) validate(now time.Time) error {
	if strings.TrimSpace(r.Make) == "" || strings.TrimSpace(r.Model) == "" {
		return apperr.Invalid("make and model are required")
	}
	if r.Year < 1886 || r.Year > now.Year()+1 {
		return apperr.Invalid("year %d is out of range", r.Year)
	}
	if r.Mileage < 0 {
		return apperr.Invalid("mileage must not be negative")
	}
	return nil
}

// current resolves the caller's vehicle.  ok is false when the caller has
// none yet, including a link to a vehicle that no longer exists.
func (h *VehicleHandler) current(c echo.Context) (v model.Vehicle, ok bool, err error) {
	ctx, cancel := dbCtx(c)
	defer cancel()
	v, err = h.Users.ResolveVehicle(ctx, middleware.Subject(c))
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, apperr.ErrNotFound):
		if errors.Is(err, apperr.ErrDataIntegrity) {
			h.log.Warn().Err(err).Msg("dangling vehicle link")
		}
		return model.Vehicle{}, false, nil
	}
	return model.Vehicle{}, false, err
}

// mustCurrent is current with "no vehicle" turned into ErrNotFound.
func (h *VehicleHandler) mustCurrent(c echo.Context) (model.Vehicle, error) {
	v, ok, err := h.current(c)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, errNoVehicle
	}
	return v, nil
}

// save creates or updates v.  A new vehicle is linked to the caller.
func (h *VehicleHandler) save(c echo.Context, v model.Vehicle, exists bool) (model.Vehicle, error) {
	ctx, cancel := dbCtx(c)
	defer cancel()
	if exists {
		if err := h.Vehicles.UpdateDetails(ctx, v); err != nil {
			return v, err
		}
		h.invalidate(c)
		return v, nil
	}
	created, err := h.Vehicles.Create(ctx, v)
	if err != nil {
		return created, err
	}
	if err := h.Users.SetVehicle(ctx, middleware.Subject(c), model.LinkVehicle(created.ID)); err != nil {
		return created, err
	}
	h.invalidate(c)
	return created, nil
}

// invalidate drops the caller's cached recommendations.  Failure is only
// logged; entries expire on their own.
func (h *VehicleHandler) invalidate(c echo.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(c.Request().Context(), middleware.Subject(c)); err != nil {
		h.log.Warn().Err(err).Msg("recommendation cache invalidation failed")
	}
}

// reprice refreshes the price estimate after descriptive fields changed.
// Any failure leaves the price empty.
func (h *VehicleHandler) reprice(c echo.Context, v *model.Vehicle) {
	v.EstimatedPrice = ""
	if !h.AI.Enabled() || !v.Complete() {
		return
	}
	price, err := h.AI.EstimatePrice(c.Request().Context(), *v)
	if err != nil {
		h.log.Warn().Err(err).Str("vehicle", v.ID).Msg("price estimate failed")
		return
	}
	v.EstimatedPrice = price
}

func detailsChanged(a, b model.Vehicle) bool {
	return a.Make != b.Make || a.Model != b.Model || a.Year != b.Year || a.Mileage != b.Mileage
}

// score tallies parts and returns the health score, logging any
// inconsistency in the counts.
func (h *VehicleHandler) score(vehicleID string, parts []model.PartStatus) health.Counts {
	counts := health.Tally(parts)
	if err := health.Validate(counts.Good, counts.Total()); err != nil {
		h.log.Error().Err(err).Str("vehicle", vehicleID).Msg("health score inputs inconsistent")
	}
	return counts
}

// ManualEntry creates or updates the vehicle from typed-in details.
func (h *VehicleHandler) ManualEntry(c echo.Context) error {
	var req manualReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(h.now()); err != nil {
		return fail(c, h.log, err)
	}
	v, exists, err := h.current(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	next := v
	next.Make, next.Model = strings.TrimSpace(req.Make), strings.TrimSpace(req.Model)
	next.Year, next.Mileage = req.Year, req.Mileage
	if !exists || detailsChanged(v, next) {
		h.reprice(c, &next)
	}
	saved, err := h.save(c, next, exists)
	if err != nil {
		return fail(c, h.log, err)
	}
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	return data(c, status, toVehicleResp(saved))
}

// UploadReport reads an inspection report image, replaces the part list
// and recomputes the health score.  Fields missing from the report keep
// their stored values.
func (h *VehicleHandler) UploadReport(c echo.Context) error {
	if !h.AI.Enabled() {
		return failure(c, http.StatusServiceUnavailable, "report analysis is not configured")
	}
	fh, err := c.FormFile("report")
	if err != nil {
		return failure(c, http.StatusBadRequest, "report file is required")
	}
	if fh.Size > maxReportBytes {
		return failure(c, http.StatusRequestEntityTooLarge, "report exceeds 10MB")
	}
	f, err := fh.Open()
	if err != nil {
		return failure(c, http.StatusBadRequest, "unreadable report file")
	}
	defer f.Close()
	image, err := io.ReadAll(io.LimitReader(f, maxReportBytes))
	if err != nil {
		return failure(c, http.StatusBadRequest, "unreadable report file")
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(image)
	}
	if !strings.HasPrefix(mimeType, "image/") && mimeType != "application/pdf" {
		return failure(c, http.StatusUnsupportedMediaType, "report must be an image or PDF")
	}

	report, err := h.AI.ExtractReport(c.Request().Context(), image, mimeType)
	if err != nil {
		return fail(c, h.log, err)
	}
	if !report.Valid {
		return failure(c, http.StatusUnprocessableEntity, "not a valid inspection report")
	}
	report.Parts = model.DistinctParts(report.Parts)

	v, exists, err := h.current(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	next := v
	if report.Make != "" {
		next.Make = report.Make
	}
	if report.Model != "" {
		next.Model = report.Model
	}
	if report.Year > 0 {
		next.Year = report.Year
	}
	if report.Mileage > 0 {
		next.Mileage = report.Mileage
	}
	if !exists || detailsChanged(v, next) {
		h.reprice(c, &next)
	}
	counts := h.score(next.ID, report.Parts)
	next.HealthScore = counts.Score()

	saved, err := h.save(c, next, exists)
	if err != nil {
		return fail(c, h.log, err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Vehicles.ReplaceParts(ctx, saved.ID, report.Parts); err != nil {
		return fail(c, h.log, err)
	}
	if err := h.Vehicles.UpdateSummary(ctx, saved.ID, next.HealthScore, saved.RecallCount); err != nil {
		return fail(c, h.log, err)
	}
	saved.HealthScore = next.HealthScore
	return data(c, http.StatusOK, homeFrom(saved, counts))
}

func homeFrom(v model.Vehicle, counts health.Counts) homeResp {
	return homeResp{
		Mileage:        v.Mileage,
		HealthScore:    v.HealthScore,
		Alerts:         counts.Alerts(),
		Repairs:        counts.Bad,
		Reports:        v.RecallCount,
		Make:           v.Make,
		Model:          v.Model,
		Year:           v.Year,
		EstimatedPrice: v.EstimatedPrice,
	}
}

// Home summarises the vehicle for the landing screen.
func (h *VehicleHandler) Home(c echo.Context) error {
	v, err := h.mustCurrent(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	parts, err := h.Vehicles.ListParts(ctx, v.ID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return data(c, http.StatusOK, homeFrom(v, h.score(v.ID, parts)))
}

// Alerts lists Medium and Bad parts.  A part without a description gets
// one generated and stored on first view; generation failures leave it
// empty for this response.
func (h *VehicleHandler) Alerts(c echo.Context) error {
	v, err := h.mustCurrent(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	ctx, cancel := dbCtx(c)
	parts, err := h.Vehicles.ListParts(ctx, v.ID)
	cancel()
	if err != nil {
		return fail(c, h.log, err)
	}

	out := []alertResp{}
	for _, p := range parts {
		if !p.Status.NeedsAttention() {
			continue
		}
		if p.Description == "" && h.AI.Enabled() {
			p.Description = h.describe(c, p)
		}
		out = append(out, alertResp{
			ID:          p.ID,
			Part:        p.Name,
			Category:    p.Category,
			Status:      string(p.Status),
			Description: p.Description,
			UpdatedDate: p.DisplayDate(),
		})
	}
	return data(c, http.StatusOK, out)
}

// describe generates and stores a description for p.  When another request
// stored one first, the stored text wins.
func (h *VehicleHandler) describe(c echo.Context, p model.PartStatus) string {
	desc, err := h.AI.AlertSummary(c.Request().Context(), p)
	if err != nil || desc == "" {
		h.log.Warn().Err(err).Str("part", p.ID).Msg("alert summary unavailable")
		return ""
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	written, err := h.Vehicles.SetPartDescription(ctx, p.ID, desc)
	if err != nil {
		h.log.Warn().Err(err).Str("part", p.ID).Msg("store alert summary failed")
		return desc
	}
	if !written {
		if stored, err := h.Vehicles.GetPart(ctx, p.VehicleID, p.ID); err == nil && stored.Description != "" {
			return stored.Description
		}
	}
	return desc
}

// MarkRepaired resets a part to Good and recomputes the health score.
func (h *VehicleHandler) MarkRepaired(c echo.Context) error {
	partID := strings.TrimSpace(c.Param("id"))
	if partID == "" {
		return failure(c, http.StatusBadRequest, "part id is required")
	}
	v, err := h.mustCurrent(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Vehicles.MarkPartRepaired(ctx, v.ID, partID); err != nil {
		return fail(c, h.log, err)
	}
	parts, err := h.Vehicles.ListParts(ctx, v.ID)
	if err != nil {
		return fail(c, h.log, err)
	}
	counts := h.score(v.ID, parts)
	v.HealthScore = counts.Score()
	if err := h.Vehicles.SetHealthScore(ctx, v.ID, v.HealthScore); err != nil {
		return fail(c, h.log, err)
	}
	return data(c, http.StatusOK, homeFrom(v, counts))
}

// Recommendations suggests maintenance services for the vehicle.
func (h *VehicleHandler) Recommendations(c echo.Context) error {
	v, err := h.mustCurrent(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	if !v.Complete() {
		return failure(c, http.StatusBadRequest, "vehicle make, model and year are required")
	}
	if !h.AI.Enabled() {
		return failure(c, http.StatusServiceUnavailable, "recommendations are not configured")
	}
	recs, err := h.AI.Recommendations(c.Request().Context(), v)
	if err != nil {
		return fail(c, h.log, err)
	}
	if recs == nil {
		recs = []gemini.Recommendation{}
	}
	return data(c, http.StatusOK, recs)
}
