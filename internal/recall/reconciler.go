// Package recall keeps a vehicle's stored recall set in step with the
// public recall feed.  New campaigns are persisted INCOMPLETE with an
// optional generated title; owners mark them COMPLETE once remedied.
package recall

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/model"
)

// Summarizer produces one short title per record, in input order.
type Summarizer interface {
	SummarizeRecalls(ctx context.Context, recs []model.RecallRecord) ([]string, error)
}

// Store is the persisted per-vehicle recall set.
type Store interface {
	ListRecalls(ctx context.Context, vehicleKey string) ([]model.RecallRecord, error)
	FindRecalls(ctx context.Context, vehicleKey, campaign string) ([]model.RecallRecord, error)
	InsertRecallIfAbsent(ctx context.Context, vehicleKey string, rec model.RecallRecord) (bool, error)
	MarkRecallComplete(ctx context.Context, id string) error
	SetShortSummary(ctx context.Context, vehicleKey, campaign, text string) error
	SetRecallCount(ctx context.Context, vehicleKey string, n int) error
}

// Publisher hands newly stored campaigns to a background enricher.
type Publisher interface {
	PublishRecallsDiscovered(ctx context.Context, vehicleKey string, campaigns []string) error
}

// Recorder observes reconciliation results.  outcome is one of
// "degraded", "guarded" or "reconciled".
type Recorder interface {
	ObserveReconcile(outcome string, inserted int)
}

// Reconciler implements Reconcile, CompleteRecall and Enrich.
type Reconciler struct {
	store      Store
	summarizer Summarizer
	publisher  Publisher
	recorder   Recorder
	log        zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSummarizer enables inline enrichment.
func WithSummarizer(s Summarizer) Option { return func(r *Reconciler) { r.summarizer = s } }

// WithPublisher switches enrichment to the asynchronous mode: records are
// stored with empty titles and a recall.discovered event is published.
func WithPublisher(p Publisher) Option { return func(r *Reconciler) { r.publisher = p } }

// WithRecorder attaches metrics.
func WithRecorder(rec Recorder) Option { return func(r *Reconciler) { r.recorder = rec } }

// NewReconciler returns a Reconciler over store.
func NewReconciler(store Store, log zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{store: store, log: log}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewItems returns the fresh entries whose campaign number is not in
// stored.  Matching is exact and case-sensitive; order is preserved.
func NewItems(fresh []model.ExternalRecall, stored []model.RecallRecord) []model.ExternalRecall {
	known := make(map[string]struct{}, len(stored))
	for _, r := range stored {
		known[r.CampaignNumber] = struct{}{}
	}
	var out []model.ExternalRecall
	for _, f := range fresh {
		if _, ok := known[f.CampaignNumber]; ok {
			continue
		}
		known[f.CampaignNumber] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Reconcile merges fresh into stored for one vehicle.  A nil fresh set is
// the degraded path: stored is returned unchanged and nothing is written.
// New items are only written while len(stored) <= fresh.Count.  Storage
// failures abort and are returned; summarisation failures only leave titles
// empty.
func (r *Reconciler) Reconcile(ctx context.Context, vehicleKey string, fresh *model.ExternalRecallSet, stored []model.RecallRecord) ([]model.RecallRecord, int, error) {
	if fresh == nil {
		r.observe("degraded", 0)
		return stored, distinct(stored), nil
	}
	items := NewItems(fresh.Results, stored)
	if len(stored) > fresh.Count {
		r.log.Debug().Str("vehicle", vehicleKey).Int("stored", len(stored)).Int("fresh", fresh.Count).
			Msg("stored recall set larger than feed; skipping writes")
		r.observe("guarded", 0)
		return stored, distinct(stored), nil
	}
	if len(items) == 0 {
		r.observe("reconciled", 0)
		return stored, distinct(stored), nil
	}

	records := make([]model.RecallRecord, len(items))
	for i, it := range items {
		records[i] = it.Record(vehicleKey, "")
	}
	if r.publisher == nil {
		r.summarize(ctx, vehicleKey, records)
	}

	merged := append(append([]model.RecallRecord(nil), stored...), records...)
	inserted := 0
	for _, rec := range records {
		ok, err := r.store.InsertRecallIfAbsent(ctx, vehicleKey, rec)
		if err != nil {
			return nil, 0, apperr.Unavailable("recall store", err)
		}
		if ok {
			inserted++
		}
	}

	if r.publisher != nil {
		campaigns := make([]string, len(records))
		for i, rec := range records {
			campaigns[i] = rec.CampaignNumber
		}
		if err := r.publisher.PublishRecallsDiscovered(ctx, vehicleKey, campaigns); err != nil {
			r.log.Warn().Err(err).Str("vehicle", vehicleKey).Msg("publish recall.discovered failed; titles stay empty")
		}
	}
	r.observe("reconciled", inserted)
	return merged, distinct(merged), nil
}

// summarize fills ShortSummary positionally.  Any failure leaves the
// affected titles empty.
func (r *Reconciler) summarize(ctx context.Context, vehicleKey string, records []model.RecallRecord) {
	if r.summarizer == nil {
		return
	}
	titles, err := r.summarizer.SummarizeRecalls(ctx, records)
	if err != nil {
		r.log.Warn().Err(err).Str("vehicle", vehicleKey).Msg("recall summaries unavailable")
		return
	}
	if len(titles) != len(records) {
		r.log.Warn().Str("vehicle", vehicleKey).Int("want", len(records)).Int("got", len(titles)).
			Msg("recall summary count mismatch")
	}
	for i := range records {
		if i < len(titles) {
			records[i].ShortSummary = titles[i]
		}
	}
}

// CompleteRecall marks the vehicle's record for campaign COMPLETE.  It is a
// no-op for a record that is already complete.
func (r *Reconciler) CompleteRecall(ctx context.Context, vehicleKey, campaign string) error {
	recs, err := r.store.FindRecalls(ctx, vehicleKey, campaign)
	if err != nil {
		return apperr.Unavailable("recall store", err)
	}
	if len(recs) == 0 {
		return fmt.Errorf("recall %s: %w", campaign, apperr.ErrNotFound)
	}
	if len(recs) > 1 {
		r.log.Error().Err(apperr.Integrity("%d records for campaign %s", len(recs), campaign)).
			Str("vehicle", vehicleKey).Msg("duplicate recall records; completing the first")
	}
	if recs[0].Status == model.RecallComplete {
		return nil
	}
	if err := r.store.MarkRecallComplete(ctx, recs[0].ID); err != nil {
		return apperr.Unavailable("recall store", err)
	}
	return nil
}

// Enrich generates titles for the given campaigns of a vehicle that were
// stored without one.  It is the consumer side of the asynchronous mode.
func (r *Reconciler) Enrich(ctx context.Context, vehicleKey string, campaigns []string) error {
	if r.summarizer == nil {
		return nil
	}
	stored, err := r.store.ListRecalls(ctx, vehicleKey)
	if err != nil {
		return apperr.Unavailable("recall store", err)
	}
	want := make(map[string]struct{}, len(campaigns))
	for _, c := range campaigns {
		want[c] = struct{}{}
	}
	var pending []model.RecallRecord
	for _, rec := range stored {
		if _, ok := want[rec.CampaignNumber]; ok && rec.ShortSummary == "" {
			pending = append(pending, rec)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	titles, err := r.summarizer.SummarizeRecalls(ctx, pending)
	if err != nil {
		return err
	}
	for i, rec := range pending {
		if i >= len(titles) || titles[i] == "" {
			continue
		}
		if err := r.store.SetShortSummary(ctx, vehicleKey, rec.CampaignNumber, titles[i]); err != nil {
			return apperr.Unavailable("recall store", err)
		}
	}
	return nil
}

func (r *Reconciler) observe(outcome string, inserted int) {
	if r.recorder != nil {
		r.recorder.ObserveReconcile(outcome, inserted)
	}
}

// distinct counts records by campaign number.
func distinct(recs []model.RecallRecord) int {
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		seen[r.CampaignNumber] = struct{}{}
	}
	return len(seen)
}
