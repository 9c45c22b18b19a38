package recall

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/autoseers/carseer/internal/model"
)

// DefaultNHTSABaseURL is the public NHTSA API host.
const DefaultNHTSABaseURL = "https://api.nhtsa.gov"

// Source looks up published recalls for a model year, make and model.
type Source interface {
	Query(ctx context.Context, year int, vehicleMake, vehicleModel string) (*model.ExternalRecallSet, error)
}

// NHTSASource queries the unauthenticated recallsByVehicle endpoint.
type NHTSASource struct {
	client *resty.Client
}

// NewNHTSASource returns a Source for baseURL, DefaultNHTSABaseURL when empty.
func NewNHTSASource(baseURL string, timeout time.Duration) *NHTSASource {
	if baseURL == "" {
		baseURL = DefaultNHTSABaseURL
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &NHTSASource{client: c}
}

// Query fetches the recall set.  Any transport failure or non-200 status
// is an error; callers treat it as "no data".
func (s *NHTSASource) Query(ctx context.Context, year int, vehicleMake, vehicleModel string) (*model.ExternalRecallSet, error) {
	var out model.ExternalRecallSet
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"make":      vehicleMake,
			"model":     vehicleModel,
			"modelYear": strconv.Itoa(year),
		}).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/recalls/recallsByVehicle")
	if err != nil {
		return nil, fmt.Errorf("recall lookup: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("recall lookup status %d", resp.StatusCode())
	}
	return &out, nil
}
