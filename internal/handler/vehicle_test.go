package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/gemini"
	"github.com/autoseers/carseer/internal/model"
)

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestManualEntryCreatesAndLinks(t *testing.T) {
	w := newWorld()
	rec := callJSON(t, http.MethodPost, "/vehicle", "/vehicle", `{"year":2019,"make":" Toyota ","model":"Corolla","mileage":30000}`, w.h.ManualEntry)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got vehicleResp
	decodeData(t, rec, &got)
	assert.Equal(t, "veh-1", got.ID)
	assert.Equal(t, "Toyota", got.Make)
	assert.Equal(t, "$12,000", got.EstimatedPrice)

	id, ok := w.users.byID["user-1"].Vehicle.ID()
	assert.True(t, ok)
	assert.Equal(t, "veh-1", id)
}

func TestManualEntryValidation(t *testing.T) {
	w := newWorld()
	for _, body := range []string{
		`{"year":1800,"make":"Ford","model":"T","mileage":1}`,
		`{"year":2027,"make":"Ford","model":"T","mileage":1}`,
		`{"year":2020,"make":"","model":"T","mileage":1}`,
		`{"year":2020,"make":"Ford","model":"T","mileage":-5}`,
	} {
		rec := callJSON(t, http.MethodPost, "/vehicle", "/vehicle", body, w.h.ManualEntry)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, w.vehicles.created)
}

func TestManualEntryRepricesOnlyOnChange(t *testing.T) {
	w := newWorld()
	w.withVehicle()

	rec := callJSON(t, http.MethodPost, "/vehicle", "/vehicle", `{"year":2018,"make":"Honda","model":"Civic","mileage":42000}`, w.h.ManualEntry)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, w.vehicles.byID["veh-9"].EstimatedPrice)

	rec = callJSON(t, http.MethodPost, "/vehicle", "/vehicle", `{"year":2018,"make":"Honda","model":"Civic","mileage":50000}`, w.h.ManualEntry)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50000, w.vehicles.byID["veh-9"].Mileage)
	assert.Equal(t, "$12,000", w.vehicles.byID["veh-9"].EstimatedPrice)

	w.ai.priceErr = errors.New("quota")
	rec = callJSON(t, http.MethodPost, "/vehicle", "/vehicle", `{"year":2018,"make":"Honda","model":"Civic","mileage":51000}`, w.h.ManualEntry)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, w.vehicles.byID["veh-9"].EstimatedPrice)
}

func TestHomeCounts(t *testing.T) {
	w := newWorld()
	w.withVehicle(parts(7, 2, 1)...)

	rec := callJSON(t, http.MethodGet, "/home", "/home", "", w.h.Home)
	require.Equal(t, http.StatusOK, rec.Code)
	var got homeResp
	decodeData(t, rec, &got)
	assert.Equal(t, homeResp{Mileage: 42000, HealthScore: 70, Alerts: 3, Repairs: 1, Reports: 2, Make: "Honda", Model: "Civic", Year: 2018}, got)
}

func TestHomeWithoutVehicle(t *testing.T) {
	w := newWorld()
	rec := callJSON(t, http.MethodGet, "/home", "/home", "", w.h.Home)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_ = w.users.SetVehicle(context.Background(), "user-1", model.LinkVehicle("veh-gone"))
	rec = callJSON(t, http.MethodGet, "/home", "/home", "", w.h.Home)
	assert.Equal(t, http.StatusNotFound, rec.Code, "a dangling link reads as no vehicle")
}

func TestHomeStorageFailure(t *testing.T) {
	w := newWorld()
	w.users.err = apperr.Unavailable("storage", errors.New("conn refused"))
	rec := callJSON(t, http.MethodGet, "/home", "/home", "", w.h.Home)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAlertsDescribeOnce(t *testing.T) {
	w := newWorld()
	w.withVehicle(parts(1, 1, 1)...)

	rec := callJSON(t, http.MethodGet, "/alerts", "/alerts", "", w.h.Alerts)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []alertResp
	decodeData(t, rec, &got)
	require.Len(t, got, 2)
	assert.Equal(t, alertResp{ID: "part-2", Part: "Medium 0", Status: "Medium", Description: "worn medium 0", UpdatedDate: "03/07/2024"}, got[0])
	assert.Equal(t, "Bad", got[1].Status)
	assert.Equal(t, 2, w.ai.alertCalls)

	rec = callJSON(t, http.MethodGet, "/alerts", "/alerts", "", w.h.Alerts)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &got)
	assert.Equal(t, "worn bad 0", got[1].Description)
	assert.Equal(t, 2, w.ai.alertCalls, "stored descriptions are reused")
}

func TestAlertsWithoutModelLeaveDescriptionEmpty(t *testing.T) {
	w := newWorld()
	w.ai.disabled = true
	w.withVehicle(parts(0, 1, 0)...)

	rec := callJSON(t, http.MethodGet, "/alerts", "/alerts", "", w.h.Alerts)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []alertResp
	decodeData(t, rec, &got)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Description)
}

func TestMarkRepairedRescores(t *testing.T) {
	w := newWorld()
	w.withVehicle(parts(1, 1, 1)...)

	rec := callJSON(t, http.MethodPut, "/parts/:id/repaired", "/parts/part-3/repaired", "", w.h.MarkRepaired)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got homeResp
	decodeData(t, rec, &got)
	assert.Equal(t, 66, got.HealthScore)
	assert.Equal(t, 1, got.Alerts)
	assert.Zero(t, got.Repairs)
	assert.Equal(t, 66, w.vehicles.byID["veh-9"].HealthScore)

	rec = callJSON(t, http.MethodPut, "/parts/:id/repaired", "/parts/part-99/repaired", "", w.h.MarkRepaired)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func reportUpload(t *testing.T, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="report"; filename="report.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n fake image")

func TestUploadReportRejectsInvalidReport(t *testing.T) {
	w := newWorld()
	w.ai.report = gemini.Report{Valid: false}
	body, ct := reportUpload(t, "image/png", pngBytes)

	rec := call(t, http.MethodPost, "/report", "/report", body, ct, w.h.UploadReport)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "image/png", w.ai.gotMimeType)
	assert.Zero(t, w.vehicles.created)
}

func TestUploadReportRejectsOtherMedia(t *testing.T) {
	w := newWorld()
	body, ct := reportUpload(t, "text/plain", []byte("hello"))

	rec := call(t, http.MethodPost, "/report", "/report", body, ct, w.h.UploadReport)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadReportWithoutModel(t *testing.T) {
	w := newWorld()
	w.ai.disabled = true
	body, ct := reportUpload(t, "image/png", pngBytes)

	rec := call(t, http.MethodPost, "/report", "/report", body, ct, w.h.UploadReport)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUploadReportReplacesPartsAndKeepsMissingFields(t *testing.T) {
	w := newWorld()
	w.withVehicle(parts(5, 0, 0)...)
	w.ai.report = gemini.Report{Valid: true, Mileage: 45000, Parts: []model.PartStatus{
		{Name: "Brakes", Status: model.ConditionGood},
		{Name: "Tires", Status: model.ConditionBad},
	}}
	body, ct := reportUpload(t, "image/png", pngBytes)

	rec := call(t, http.MethodPost, "/report", "/report", body, ct, w.h.UploadReport)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got homeResp
	decodeData(t, rec, &got)
	assert.Equal(t, 50, got.HealthScore)
	assert.Equal(t, "Honda", got.Make)
	assert.Equal(t, 45000, got.Mileage)
	assert.Equal(t, 1, got.Repairs)
	assert.Equal(t, 2, got.Reports)

	assert.Len(t, w.vehicles.parts["veh-9"], 2)
	assert.Equal(t, 1, w.vehicles.summaryCalls)
	assert.Equal(t, 50, w.vehicles.byID["veh-9"].HealthScore)
	assert.Equal(t, 2, w.vehicles.byID["veh-9"].RecallCount)
}

func TestRecommendations(t *testing.T) {
	w := newWorld()
	w.withVehicle()
	w.ai.recs = []gemini.Recommendation{{ServiceName: "Oil change", Priority: 1}}

	rec := callJSON(t, http.MethodGet, "/recommendations", "/recommendations", "", w.h.Recommendations)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []gemini.Recommendation
	decodeData(t, rec, &got)
	assert.Equal(t, w.ai.recs, got)

	w.ai.disabled = true
	rec = callJSON(t, http.MethodGet, "/recommendations", "/recommendations", "", w.h.Recommendations)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	v := w.vehicles.byID["veh-9"]
	v.Model = ""
	w.vehicles.byID["veh-9"] = v
	rec = callJSON(t, http.MethodGet, "/recommendations", "/recommendations", "", w.h.Recommendations)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type recordingCache struct{ users []string }

func (r *recordingCache) Invalidate(_ context.Context, user string) error {
	r.users = append(r.users, user)
	return nil
}

func TestVehicleChangesInvalidateCachedRecommendations(t *testing.T) {
	w := newWorld()
	cache := &recordingCache{}
	w.h.WithCache(cache)

	rec := callJSON(t, http.MethodPost, "/vehicle", "/vehicle", `{"year":2019,"make":"Toyota","model":"Corolla","mileage":30000}`, w.h.ManualEntry)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = callJSON(t, http.MethodPost, "/vehicle", "/vehicle", `{"year":2019,"make":"Toyota","model":"Corolla","mileage":31000}`, w.h.ManualEntry)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"user-1", "user-1"}, cache.users)
}
