package recall

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/model"
)

// Result is what a poll returns to the caller.
type Result struct {
	Recalls  []model.RecallRecord
	Count    int
	Degraded bool // the feed was unavailable and stored data was returned
}

// Service runs the full poll: lookup, reconcile, write the count back.
type Service struct {
	source     Source
	store      Store
	reconciler *Reconciler
	log        zerolog.Logger
}

// NewService wires a Service.
func NewService(source Source, store Store, reconciler *Reconciler, log zerolog.Logger) *Service {
	return &Service{source: source, store: store, reconciler: reconciler, log: log}
}

// Reconciler exposes the underlying engine for completion and enrichment.
func (s *Service) Reconciler() *Reconciler { return s.reconciler }

// Poll reconciles the vehicle's recalls against the feed.  A feed failure
// or a vehicle without make, model and year degrades to the stored set.
// Storage failures are returned.
func (s *Service) Poll(ctx context.Context, v model.Vehicle) (Result, error) {
	stored, err := s.store.ListRecalls(ctx, v.ID)
	if err != nil {
		return Result{}, apperr.Unavailable("recall store", err)
	}

	var fresh *model.ExternalRecallSet
	degraded := false
	if v.Complete() {
		fresh, err = s.source.Query(ctx, v.Year, v.Make, v.Model)
		if err != nil {
			s.log.Warn().Err(err).Str("vehicle", v.ID).Msg("recall feed unavailable; serving stored recalls")
			fresh, degraded = nil, true
		}
	} else {
		degraded = true
	}

	merged, count, err := s.reconciler.Reconcile(ctx, v.ID, fresh, stored)
	if err != nil {
		return Result{}, err
	}
	// Concurrent polls may have written rows this call did not see.
	if len(merged) != len(stored) {
		if reread, err := s.store.ListRecalls(ctx, v.ID); err == nil {
			merged, count = mergeTitles(reread, merged), distinct(reread)
		}
	}
	if count != v.RecallCount {
		if err := s.store.SetRecallCount(ctx, v.ID, count); err != nil {
			return Result{}, apperr.Unavailable("recall store", err)
		}
	}
	return Result{Recalls: merged, Count: count, Degraded: degraded}, nil
}

// mergeTitles copies titles generated in this call onto re-read rows that
// lost the insert race and still have none.
func mergeTitles(rows, local []model.RecallRecord) []model.RecallRecord {
	titles := make(map[string]string, len(local))
	for _, r := range local {
		if r.ShortSummary != "" {
			titles[r.CampaignNumber] = r.ShortSummary
		}
	}
	for i := range rows {
		if rows[i].ShortSummary == "" {
			rows[i].ShortSummary = titles[rows[i].CampaignNumber]
		}
	}
	return rows
}
