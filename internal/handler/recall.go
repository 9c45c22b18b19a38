package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/model"
	"github.com/autoseers/carseer/internal/recall"
)

// pollTimeout bounds one recall poll, feed lookup and enrichment included.
const pollTimeout = 30 * time.Second

// RecallPoller runs the lookup and reconciliation.
type RecallPoller interface {
	Poll(ctx context.Context, v model.Vehicle) (recall.Result, error)
}

// RecallCompleter marks a campaign as remedied.
type RecallCompleter interface {
	CompleteRecall(ctx context.Context, vehicleKey, campaign string) error
}

// RecallHandler serves the vehicle's recalls.
type RecallHandler struct {
	vehicles  *VehicleHandler
	poller    RecallPoller
	completer RecallCompleter
	log       zerolog.Logger
}

func NewRecallHandler(vehicles *VehicleHandler, poller RecallPoller, completer RecallCompleter, log zerolog.Logger) *RecallHandler {
	return &RecallHandler{vehicles: vehicles, poller: poller, completer: completer, log: log}
}

type recallsResp struct {
	Count    int                  `json:"count"`
	Degraded bool                 `json:"degraded"`
	Results  []model.RecallRecord `json:"results"`
}

type completeReq struct {
	CampaignNumber string `json:"campaign_number"`
}

// List polls the recall feed and returns the reconciled set.  When the feed
// is down the stored set is returned with degraded=true.
func (h *RecallHandler) List(c echo.Context) error {
	v, err := h.vehicles.mustCurrent(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), pollTimeout)
	defer cancel()
	res, err := h.poller.Poll(ctx, v)
	if err != nil {
		return fail(c, h.log, err)
	}
	recs := res.Recalls
	if recs == nil {
		recs = []model.RecallRecord{}
	}
	return data(c, http.StatusOK, recallsResp{Count: res.Count, Degraded: res.Degraded, Results: recs})
}

// Complete marks one campaign COMPLETE.  Repeating the call is harmless.
func (h *RecallHandler) Complete(c echo.Context) error {
	var req completeReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid body")
	}
	campaign := strings.TrimSpace(req.CampaignNumber)
	if campaign == "" {
		return failure(c, http.StatusBadRequest, "campaign_number required")
	}
	v, err := h.vehicles.mustCurrent(c)
	if err != nil {
		return fail(c, h.log, err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.completer.CompleteRecall(ctx, v.ID, campaign); err != nil {
		return fail(c, h.log, err)
	}
	return data(c, http.StatusOK, echo.Map{"campaign_number": campaign, "status": model.RecallComplete})
}
