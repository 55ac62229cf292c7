// Package rmm calls a subset of the Datto RMM v2 API through an
// authenticated dattoclient.Client.
//
// Request building follows the conventions of oapi-codegen clients: path and
// query parameters are serialized with github.com/oapi-codegen/runtime.
package rmm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/oapi-codegen/runtime"

	"github.com/dattormm/datto-go/internal/dattoclient"
)

const (
	// DefaultPageSize is used when a list request does not set Max.
	DefaultPageSize = 50
	// MaxPageSize is the largest page the API serves.
	MaxPageSize = 250
)

// Requester builds and sends authenticated API requests.
// *dattoclient.Client implements it.
type Requester interface {
	NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error)
	Do(req *http.Request) (*http.Response, error)
}

// Compile-time check that the authenticated client satisfies Requester
var _ Requester = (*dattoclient.Client)(nil)

// Service exposes typed API operations.
type Service struct {
	requester Requester
}

// New creates a Service sending requests through r.
func New(r Requester) *Service {
	return &Service{requester: r}
}

// PageParams selects a page of a list endpoint.
type PageParams struct {
	// Page is omitted from the request when zero.
	Page int
	// Max defaults to DefaultPageSize and is capped at MaxPageSize.
	Max int
}

func (p *PageParams) query(values url.Values) error {
	size := DefaultPageSize
	page := 0
	if p != nil {
		page = p.Page
		if p.Max > 0 {
			size = min(p.Max, MaxPageSize)
		}
	}

	if page > 0 {
		if err := addQuery(values, "page", page); err != nil {
			return err
		}
	}
	return addQuery(values, "max", size)
}

// SitesParams filters ListSites.
type SitesParams struct {
	PageParams
	SiteName string
}

// DevicesParams filters ListDevices.
type DevicesParams struct {
	PageParams
	Hostname        string
	SiteName        string
	DeviceType      string
	OperatingSystem string
	FilterID        int
}

// GetAccount fetches the authenticated account.
func (s *Service) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	if err := s.get(ctx, "/v2/account", nil, &account); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// ListSites lists the account's sites.
func (s *Service) ListSites(ctx context.Context, params *SitesParams) (*SitesPage, error) {
	if params == nil {
		params = &SitesParams{}
	}

	query := url.Values{}
	if err := params.query(query); err != nil {
		return nil, err
	}
	if params.SiteName != "" {
		if err := addQuery(query, "siteName", params.SiteName); err != nil {
			return nil, err
		}
	}

	var page SitesPage
	if err := s.get(ctx, "/v2/account/sites", query, &page); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return &page, nil
}

// GetSite fetches one site by its UID.
func (s *Service) GetSite(ctx context.Context, siteUID string) (*Site, error) {
	pathParam, err := runtime.StyleParamWithLocation("simple", false, "siteUid", runtime.ParamLocationPath, siteUID)
	if err != nil {
		return nil, err
	}

	var site Site
	if err := s.get(ctx, "/v2/site/"+pathParam, nil, &site); err != nil {
		return nil, fmt.Errorf("get site %s: %w", siteUID, err)
	}
	return &site, nil
}

// ListDevices lists the account's devices.
func (s *Service) ListDevices(ctx context.Context, params *DevicesParams) (*DevicesPage, error) {
	if params == nil {
		params = &DevicesParams{}
	}

	query := url.Values{}
	if err := params.query(query); err != nil {
		return nil, err
	}

	filters := []struct {
		name  string
		value string
	}{
		{"hostname", params.Hostname},
		{"siteName", params.SiteName},
		{"deviceType", params.DeviceType},
		{"operatingSystem", params.OperatingSystem},
	}
	for _, f := range filters {
		if f.value == "" {
			continue
		}
		if err := addQuery(query, f.name, f.value); err != nil {
			return nil, err
		}
	}
	if params.FilterID != 0 {
		if err := addQuery(query, "filterId", params.FilterID); err != nil {
			return nil, err
		}
	}

	var page DevicesPage
	if err := s.get(ctx, "/v2/account/devices", query, &page); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return &page, nil
}

func (s *Service) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := s.requester.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := s.requester.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := dattoclient.CheckResponse(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// addQuery serializes value as a form-style, exploded query parameter.
func addQuery(values url.Values, name string, value any) error {
	frag, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, value)
	if err != nil {
		return fmt.Errorf("encoding query parameter %s: %w", name, err)
	}

	parsed, err := url.ParseQuery(frag)
	if err != nil {
		return fmt.Errorf("encoding query parameter %s: %w", name, err)
	}
	for k, vs := range parsed {
		for _, v := range vs {
			values.Add(k, v)
		}
	}
	return nil
}
