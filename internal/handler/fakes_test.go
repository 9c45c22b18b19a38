package handler

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/booking"
	"github.com/autoseers/carseer/internal/gemini"
	"github.com/autoseers/carseer/internal/middleware"
	"github.com/autoseers/carseer/internal/model"
	"github.com/autoseers/carseer/internal/recall"
	"github.com/autoseers/carseer/internal/verify"
)

var nop = zerolog.Nop()

// ----- identity -----

type staticVerifier struct{ subject, role string }

func (v staticVerifier) Verify(context.Context, string, bool) verify.Outcome {
	return verify.Success(&verify.Identity{Subject: v.subject, Claims: map[string]any{"sub": v.subject, "role": v.role}})
}

// call runs h behind Auth as user-1 and returns the recorder.
func call(t *testing.T, method, route, target string, body io.Reader, contentType string, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Add(method, route, h, middleware.Auth(staticVerifier{subject: "user-1", role: model.RoleCustomer}))
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer token-1")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func callJSON(t *testing.T, method, route, target, body string, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return call(t, method, route, target, r, echo.MIMEApplicationJSON, h)
}

// ----- users -----

type fakeUsers struct {
	byID    map[string]model.User
	created int
	err     error
}

func newFakeUsers(users ...model.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]model.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, email, hash, role string) (model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return model.User{}, fmt.Errorf("email already exists: %w", apperr.ErrConflict)
		}
	}
	f.created++
	u := model.User{ID: fmt.Sprintf("user-%d", f.created), Email: email, PasswordHash: hash, Role: role, IsActive: true}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	if f.err != nil {
		return model.User{}, f.err
	}
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, apperr.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (model.User, error) {
	if f.err != nil {
		return model.User{}, f.err
	}
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, apperr.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) SetName(_ context.Context, id, name string) error {
	u, ok := f.byID[id]
	if !ok {
		return apperr.ErrNotFound
	}
	u.Name = name
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) SetVehicle(_ context.Context, id string, ref model.VehicleRef) error {
	u, ok := f.byID[id]
	if !ok {
		return apperr.ErrNotFound
	}
	u.Vehicle = ref
	f.byID[id] = u
	return nil
}

// linkedUsers resolves vehicle links against fakeVehicles.
type linkedUsers struct {
	*fakeUsers
	vehicles *fakeVehicles
}

func (l *linkedUsers) ResolveVehicle(ctx context.Context, userID string) (model.Vehicle, error) {
	u, err := l.GetByID(ctx, userID)
	if err != nil {
		return model.Vehicle{}, err
	}
	id, ok := u.Vehicle.ID()
	if !ok {
		return model.Vehicle{}, apperr.ErrNotFound
	}
	v, ok := l.vehicles.byID[id]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("%w: %w", apperr.ErrNotFound, apperr.Integrity("dangling %s", id))
	}
	return v, nil
}

// ----- tokens -----

type fakeTokens struct {
	owner   map[string]string
	revoked map[string]bool
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{owner: map[string]string{}, revoked: map[string]bool{}}
}

func (f *fakeTokens) StoreRefresh(_ context.Context, userID, hash string, _ time.Time) error {
	f.owner[hash] = userID
	return nil
}

func (f *fakeTokens) ValidateRefresh(_ context.Context, hash string) (string, error) {
	uid, ok := f.owner[hash]
	if !ok || f.revoked[hash] {
		return "", apperr.ErrNotFound
	}
	return uid, nil
}

func (f *fakeTokens) Rotate(_ context.Context, userID, oldHash, newHash string, _ time.Time) error {
	if f.owner[oldHash] != userID || f.revoked[oldHash] {
		return apperr.ErrNotFound
	}
	f.revoked[oldHash] = true
	f.owner[newHash] = userID
	return nil
}

type fakeSessions struct{ revoked []string }

func (f *fakeSessions) RevokeSessions(_ context.Context, subject string) error {
	f.revoked = append(f.revoked, subject)
	return nil
}

// ----- vehicles -----

type fakeVehicles struct {
	byID         map[string]model.Vehicle
	parts        map[string][]model.PartStatus
	created      int
	partSeq      int
	summaryCalls int
}

func newFakeVehicles() *fakeVehicles {
	return &fakeVehicles{byID: map[string]model.Vehicle{}, parts: map[string][]model.PartStatus{}}
}

func (f *fakeVehicles) Create(_ context.Context, v model.Vehicle) (model.Vehicle, error) {
	f.created++
	v.ID = fmt.Sprintf("veh-%d", f.created)
	f.byID[v.ID] = v
	return v, nil
}

func (f *fakeVehicles) UpdateDetails(_ context.Context, v model.Vehicle) error {
	cur, ok := f.byID[v.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	cur.Make, cur.Model, cur.Year, cur.Mileage, cur.EstimatedPrice = v.Make, v.Model, v.Year, v.Mileage, v.EstimatedPrice
	f.byID[v.ID] = cur
	return nil
}

func (f *fakeVehicles) UpdateSummary(_ context.Context, id string, score, recalls int) error {
	f.summaryCalls++
	v := f.byID[id]
	v.HealthScore, v.RecallCount = score, recalls
	f.byID[id] = v
	return nil
}

func (f *fakeVehicles) SetHealthScore(_ context.Context, id string, score int) error {
	v := f.byID[id]
	v.HealthScore = score
	f.byID[id] = v
	return nil
}

// ReplaceParts keeps ids and descriptions of parts matched by name, like
// the MySQL repository.
func (f *fakeVehicles) ReplaceParts(_ context.Context, vehicleID string, parts []model.PartStatus) error {
	prev := map[string]model.PartStatus{}
	for _, p := range f.parts[vehicleID] {
		prev[model.PartKey(p.Name)] = p
	}
	var out []model.PartStatus
	for _, p := range model.DistinctParts(parts) {
		p.VehicleID = vehicleID
		if old, ok := prev[model.PartKey(p.Name)]; ok {
			p.ID = old.ID
			if old.Status == p.Status {
				p.Description = old.Description
			}
		} else {
			f.partSeq++
			p.ID = fmt.Sprintf("part-%d", f.partSeq)
		}
		out = append(out, p)
	}
	f.parts[vehicleID] = out
	return nil
}

func (f *fakeVehicles) ListParts(_ context.Context, vehicleID string) ([]model.PartStatus, error) {
	return append([]model.PartStatus(nil), f.parts[vehicleID]...), nil
}

func (f *fakeVehicles) find(vehicleID, partID string) (int, bool) {
	for i, p := range f.parts[vehicleID] {
		if p.ID == partID {
			return i, true
		}
	}
	return 0, false
}

func (f *fakeVehicles) GetPart(_ context.Context, vehicleID, partID string) (model.PartStatus, error) {
	i, ok := f.find(vehicleID, partID)
	if !ok {
		return model.PartStatus{}, apperr.ErrNotFound
	}
	return f.parts[vehicleID][i], nil
}

func (f *fakeVehicles) MarkPartRepaired(_ context.Context, vehicleID, partID string) error {
	i, ok := f.find(vehicleID, partID)
	if !ok {
		return apperr.ErrNotFound
	}
	f.parts[vehicleID][i].Status = model.ConditionGood
	f.parts[vehicleID][i].Description = ""
	return nil
}

func (f *fakeVehicles) SetPartDescription(_ context.Context, partID, desc string) (bool, error) {
	for vid, parts := range f.parts {
		for i, p := range parts {
			if p.ID == partID {
				if p.Description != "" {
					return false, nil
				}
				f.parts[vid][i].Description = desc
				return true, nil
			}
		}
	}
	return false, nil
}

// ----- generative model -----

type fakeAI struct {
	disabled    bool
	report      gemini.Report
	reportErr   error
	price       string
	priceErr    error
	alertCalls  int
	recs        []gemini.Recommendation
	gotMimeType string
}

func (f *fakeAI) Enabled() bool { return !f.disabled }

func (f *fakeAI) ExtractReport(_ context.Context, _ []byte, mimeType string) (gemini.Report, error) {
	f.gotMimeType = mimeType
	return f.report, f.reportErr
}

func (f *fakeAI) AlertSummary(_ context.Context, p model.PartStatus) (string, error) {
	f.alertCalls++
	return "worn " + strings.ToLower(p.Name), nil
}

func (f *fakeAI) Recommendations(context.Context, model.Vehicle) ([]gemini.Recommendation, error) {
	return f.recs, nil
}

func (f *fakeAI) EstimatePrice(context.Context, model.Vehicle) (string, error) {
	return f.price, f.priceErr
}

// ----- engines -----

type fakePoller struct {
	res recall.Result
	err error
	got model.Vehicle
}

func (f *fakePoller) Poll(_ context.Context, v model.Vehicle) (recall.Result, error) {
	f.got = v
	return f.res, f.err
}

type fakeCompleter struct {
	err      error
	vehicle  string
	campaign string
}

func (f *fakeCompleter) CompleteRecall(_ context.Context, vehicleKey, campaign string) error {
	f.vehicle, f.campaign = vehicleKey, campaign
	return f.err
}

type fakeTracker struct {
	state   booking.State
	created model.ScheduledService
	err     error
	got     booking.Request
	update  booking.StatusUpdate
}

func (f *fakeTracker) GetBookingState(context.Context, string, string) (booking.State, error) {
	return f.state, f.err
}

func (f *fakeTracker) RequestBooking(_ context.Context, vehicleKey string, req booking.Request) (model.ScheduledService, error) {
	f.got = req
	if f.err != nil {
		return model.ScheduledService{}, f.err
	}
	s := f.created
	s.VehicleID, s.PartID = vehicleKey, req.PartID
	return s, nil
}

func (f *fakeTracker) ApplyStatus(_ context.Context, upd booking.StatusUpdate) (bool, error) {
	f.update = upd
	return f.err == nil, f.err
}

// memBookings is an in-memory booking.Store.
type memBookings struct{ rows []model.ScheduledService }

func (m *memBookings) Latest(_ context.Context, vehicleID, partID string) (model.ScheduledService, error) {
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].VehicleID == vehicleID && m.rows[i].PartID == partID {
			return m.rows[i], nil
		}
	}
	return model.ScheduledService{}, apperr.ErrNotFound
}

func (m *memBookings) CreateUnlessActive(ctx context.Context, s model.ScheduledService, closedState string) (model.ScheduledService, error) {
	if cur, err := m.Latest(ctx, s.VehicleID, s.PartID); err == nil && cur.State != closedState {
		return model.ScheduledService{}, apperr.ErrConflict
	}
	s.ID = fmt.Sprintf("bk-%d", len(m.rows)+1)
	m.rows = append(m.rows, s)
	return s, nil
}

func (m *memBookings) UpdateState(_ context.Context, id, state, frozenState string) (bool, error) {
	for i := range m.rows {
		if m.rows[i].ID == id {
			if m.rows[i].State == frozenState || m.rows[i].State == state {
				return false, nil
			}
			m.rows[i].State = state
			return true, nil
		}
	}
	return false, apperr.ErrNotFound
}

// ----- fixtures -----

type world struct {
	users    *linkedUsers
	vehicles *fakeVehicles
	ai       *fakeAI
	h        *VehicleHandler
}

// newWorld has user-1 with no vehicle.
func newWorld() *world {
	vehicles := newFakeVehicles()
	users := &linkedUsers{fakeUsers: newFakeUsers(model.User{ID: "user-1", Email: "a@b.co", Role: model.RoleCustomer, IsActive: true}), vehicles: vehicles}
	ai := &fakeAI{price: "$12,000"}
	h := NewVehicleHandler(users, vehicles, ai, nop)
	h.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return &world{users: users, vehicles: vehicles, ai: ai, h: h}
}

// withVehicle links user-1 to a complete vehicle with the given parts.
func (w *world) withVehicle(parts ...model.PartStatus) model.Vehicle {
	v := model.Vehicle{ID: "veh-9", Make: "Honda", Model: "Civic", Year: 2018, Mileage: 42000, HealthScore: 70, RecallCount: 2}
	w.vehicles.byID[v.ID] = v
	_ = w.vehicles.ReplaceParts(context.Background(), v.ID, parts)
	_ = w.users.SetVehicle(context.Background(), "user-1", model.LinkVehicle(v.ID))
	return v
}

func parts(good, medium, bad int) []model.PartStatus {
	var out []model.PartStatus
	add := func(n int, cond model.PartCondition) {
		for i := 0; i < n; i++ {
			out = append(out, model.PartStatus{Name: fmt.Sprintf("%s %d", cond, i), Status: cond,
				UpdatedAt: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)})
		}
	}
	add(good, model.ConditionGood)
	add(medium, model.ConditionMedium)
	add(bad, model.ConditionBad)
	return out
}
