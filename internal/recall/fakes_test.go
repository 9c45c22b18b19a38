package recall

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/autoseers/carseer/internal/model"
)

// memStore is an in-memory Store keyed by vehicle then campaign, with the
// same insert-if-absent semantics as the MySQL unique key.
type memStore struct {
	mu      sync.Mutex
	rows    map[string][]model.RecallRecord
	counts  map[string]int
	inserts int
	failOn  string
	listErr error
	seq     int
}

func newMemStore() *memStore {
	return &memStore{rows: map[string][]model.RecallRecord{}, counts: map[string]int{}}
}

func (m *memStore) ListRecalls(_ context.Context, vk string) ([]model.RecallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]model.RecallRecord(nil), m.rows[vk]...), nil
}

func (m *memStore) FindRecalls(_ context.Context, vk, campaign string) ([]model.RecallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RecallRecord
	for _, r := range m.rows[vk] {
		if r.CampaignNumber == campaign {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) InsertRecallIfAbsent(_ context.Context, vk string, rec model.RecallRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CampaignNumber == m.failOn {
		return false, errors.New("write failed")
	}
	for _, r := range m.rows[vk] {
		if r.CampaignNumber == rec.CampaignNumber {
			return false, nil
		}
	}
	m.seq++
	rec.ID = fmt.Sprintf("r-%d", m.seq)
	m.rows[vk] = append(m.rows[vk], rec)
	m.inserts++
	return true, nil
}

func (m *memStore) MarkRecallComplete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for vk, rows := range m.rows {
		for i := range rows {
			if rows[i].ID == id {
				m.rows[vk][i].Status = model.RecallComplete
				return nil
			}
		}
	}
	return errors.New("missing")
}

func (m *memStore) SetShortSummary(_ context.Context, vk, campaign, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows[vk] {
		if r.CampaignNumber == campaign && r.ShortSummary == "" {
			m.rows[vk][i].ShortSummary = text
		}
	}
	return nil
}

func (m *memStore) SetRecallCount(_ context.Context, vk string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[vk] = n
	return nil
}

type fakeSummarizer struct {
	titles []string
	err    error
	calls  int
	seen   [][]string
}

func (f *fakeSummarizer) SummarizeRecalls(_ context.Context, recs []model.RecallRecord) ([]string, error) {
	f.calls++
	var campaigns []string
	for _, r := range recs {
		campaigns = append(campaigns, r.CampaignNumber)
	}
	f.seen = append(f.seen, campaigns)
	return f.titles, f.err
}

type fakePublisher struct {
	events [][]string
	err    error
}

func (f *fakePublisher) PublishRecallsDiscovered(_ context.Context, _ string, campaigns []string) error {
	f.events = append(f.events, campaigns)
	return f.err
}

type fakeSource struct {
	set   *model.ExternalRecallSet
	err   error
	calls int
}

func (f *fakeSource) Query(context.Context, int, string, string) (*model.ExternalRecallSet, error) {
	f.calls++
	return f.set, f.err
}

func external(campaigns ...string) []model.ExternalRecall {
	var out []model.ExternalRecall
	for _, c := range campaigns {
		out = append(out, model.ExternalRecall{CampaignNumber: c, Component: "component " + c})
	}
	return out
}

func freshSet(campaigns ...string) *model.ExternalRecallSet {
	return &model.ExternalRecallSet{Count: len(campaigns), Results: external(campaigns...)}
}

func storedRecords(campaigns ...string) []model.RecallRecord {
	var out []model.RecallRecord
	for _, c := range campaigns {
		out = append(out, model.RecallRecord{CampaignNumber: c, Status: model.RecallIncomplete})
	}
	return out
}
