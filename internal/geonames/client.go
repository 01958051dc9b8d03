package geonames

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/placescout/scoutengine/internal/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Client is the production Resolver: an HTTP client to the external
// geonames service, a circuit breaker around it (a slow or down geonames
// service must not let a storm of campaign-creation requests pile up
// against it), and a cache in front of both.
type Client struct {
	log     *zap.Logger
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   *Cache
}

// NewClient constructs a Client. cache may be nil, in which case every
// lookup goes straight to the HTTP endpoint.
func NewClient(log *zap.Logger, baseURL string, cache *Cache) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "geonames",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		log:     log,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: breaker,
		cache:   cache,
	}
}

func (c *Client) Countries(ctx context.Context) ([]Country, error) {
	const cacheKey = "geonames:countries"
	var out []Country
	if c.cache != nil && c.cache.Get(ctx, cacheKey, &out) {
		return out, nil
	}
	if err := c.getJSON(ctx, "/countries", nil, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(ctx, cacheKey, out)
	}
	return out, nil
}

func (c *Client) Regions(ctx context.Context, countryCode string) ([]Region, error) {
	cacheKey := fmt.Sprintf("geonames:regions:%s", countryCode)
	var out []Region
	if c.cache != nil && c.cache.Get(ctx, cacheKey, &out) {
		return out, nil
	}
	path := fmt.Sprintf("/countries/%s/regions", url.PathEscape(countryCode))
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(ctx, cacheKey, out)
	}
	return out, nil
}

func (c *Client) Provinces(ctx context.Context, countryCode, admin1Code string) ([]Region, error) {
	cacheKey := fmt.Sprintf("geonames:provinces:%s:%s", countryCode, admin1Code)
	var out []Region
	if c.cache != nil && c.cache.Get(ctx, cacheKey, &out) {
		return out, nil
	}
	path := fmt.Sprintf("/countries/%s/provinces", url.PathEscape(countryCode))
	q := url.Values{"admin1_code": {admin1Code}}
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(ctx, cacheKey, out)
	}
	return out, nil
}

func (c *Client) Cities(ctx context.Context, countryCode, admin1Code, admin2Code string, minPopulation int64) ([]Region, error) {
	cacheKey := fmt.Sprintf("geonames:cities:%s:%s:%s:%d", countryCode, admin1Code, admin2Code, minPopulation)
	var out []Region
	if c.cache != nil && c.cache.Get(ctx, cacheKey, &out) {
		return out, nil
	}
	path := fmt.Sprintf("/countries/%s/cities", url.PathEscape(countryCode))
	q := url.Values{}
	if admin1Code != "" {
		q.Set("admin1_code", admin1Code)
	}
	if admin2Code != "" {
		q.Set("admin2_code", admin2Code)
	}
	if minPopulation > 0 {
		q.Set("min_population", fmt.Sprintf("%d", minPopulation))
	}
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(ctx, cacheKey, out)
	}
	return out, nil
}

// ResolveCities expands q into a concrete city list: a single
// city_geoname_id short-circuits to one city; otherwise it fans out
// through Cities at whatever admin granularity q specifies.
func (c *Client) ResolveCities(ctx context.Context, q CityQuery) ([]City, error) {
	if q.CityGeonameID != 0 {
		regions, err := c.Cities(ctx, q.CountryCode, q.Admin1Code, q.Admin2Code, 0)
		if err != nil {
			return nil, err
		}
		for _, r := range regions {
			if r.GeonameID == q.CityGeonameID {
				return []City{{GeonameID: r.GeonameID, Name: r.Name, Population: r.Population}}, nil
			}
		}
		return nil, domain.NewNotFoundError("city_geoname_id not found in resolved scope")
	}

	regions, err := c.Cities(ctx, q.CountryCode, q.Admin1Code, q.Admin2Code, q.MinPopulation)
	if err != nil {
		return nil, err
	}
	out := make([]City, len(regions))
	for i, r := range regions {
		out[i] = City{GeonameID: r.GeonameID, Name: r.Name, Population: r.Population}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		reqURL := c.baseURL + path
		if query != nil {
			reqURL += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, domain.NewFatalError("build geonames request", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, domain.NewTransientError("geonames request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, domain.NewTransientError(fmt.Sprintf("geonames returned %d", resp.StatusCode), nil)
		}
		if resp.StatusCode >= 400 {
			return nil, domain.NewPermanentError(fmt.Sprintf("geonames returned %d", resp.StatusCode), nil)
		}

		var raw json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return nil, domain.NewPermanentError("decode geonames response", err)
		}
		return raw, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return domain.NewTransientError("geonames circuit breaker open", err)
		}
		return err
	}
	return json.Unmarshal(result.(json.RawMessage), dest)
}
