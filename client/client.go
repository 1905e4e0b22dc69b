package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/floralog/floralog"
	"github.com/floralog/floralog/jwt"
)

const defaultTimeout = 3 * time.Second

// Client talks to a floralog node over its REST API. When a private key is
// configured, requests carry a bearer token minted for the node's fqdn.
type Client struct {
	client     *http.Client
	cache      *cache.Cache
	host       string
	privateKey string
	principal  string
}

func New(host string) *Client {
	return &Client{
		client: &http.Client{Timeout: defaultTimeout},
		cache:  cache.New(10*time.Minute, 15*time.Minute),
		host:   host,
	}
}

// WithIdentity configures the signing key for authenticated calls.
func (c *Client) WithIdentity(privateKeyHex string) (*Client, error) {
	principal, err := floralog.PrivKeyToAddr(privateKeyHex, floralog.AddrPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to derive principal: %v", err)
	}
	c.privateKey = privateKeyHex
	c.principal = principal
	return c, nil
}

func (c *Client) token() (string, error) {
	now := time.Now()
	return jwt.Create(jwt.Claims{
		Issuer:         c.principal,
		Subject:        "floralog",
		Audience:       c.host,
		ExpirationTime: strconv.FormatInt(now.Add(5*time.Minute).Unix(), 10),
		IssuedAt:       strconv.FormatInt(now.Unix(), 10),
	}, c.privateKey)
}

func (c *Client) request(ctx context.Context, method, path string, body, response any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, "https://"+c.host+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.privateKey != "" {
		token, err := c.token()
		if err != nil {
			return fmt.Errorf("failed to create token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("request failed (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

type StoreRequest struct {
	Payload floralog.Payload `json:"payload"`
	CID     string           `json:"cid"`
}

func (c *Client) Store(ctx context.Context, payload floralog.Payload, cid string) (uint64, error) {
	var resp struct {
		ID uint64 `json:"id"`
	}
	err := c.request(ctx, http.MethodPost, "/api/v1/observations", StoreRequest{Payload: payload, CID: cid}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// Get fetches one record. Results are cached briefly; a record's index values
// never change, only its annotation tail grows.
func (c *Client) Get(ctx context.Context, id uint64) (*floralog.Record, error) {
	cacheKey := "observation:" + strconv.FormatUint(id, 10)
	if x, found := c.cache.Get(cacheKey); found {
		rec := x.(floralog.Record)
		return &rec, nil
	}

	var resp struct {
		Record *floralog.Record `json:"record"`
	}
	err := c.request(ctx, http.MethodGet, "/api/v1/observations/"+strconv.FormatUint(id, 10), nil, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Record != nil {
		c.cache.Set(cacheKey, *resp.Record, cache.DefaultExpiration)
	}
	return resp.Record, nil
}

func filterQuery(f floralog.Filter) url.Values {
	q := url.Values{}
	if f.Species != nil {
		q.Set("species", *f.Species)
	}
	if f.GeoPrefix != nil {
		q.Set("geo", *f.GeoPrefix)
	}
	if f.Start != nil {
		q.Set("since", strconv.FormatUint(*f.Start, 10))
	}
	if f.End != nil {
		q.Set("until", strconv.FormatUint(*f.End, 10))
	}
	return q
}

func (c *Client) List(ctx context.Context, query floralog.ListQuery) (floralog.Page, error) {
	q := filterQuery(query.Filter)
	if query.Limit != nil {
		q.Set("limit", strconv.FormatUint(uint64(*query.Limit), 10))
	}
	if query.StartAfter != nil {
		q.Set("startAfter", strconv.FormatUint(*query.StartAfter, 10))
	}

	var page floralog.Page
	err := c.request(ctx, http.MethodGet, "/api/v1/observations?"+q.Encode(), nil, &page)
	return page, err
}

func (c *Client) Count(ctx context.Context, f floralog.Filter) (uint64, error) {
	var resp struct {
		Count uint64 `json:"count"`
	}
	err := c.request(ctx, http.MethodGet, "/api/v1/observations/count?"+filterQuery(f).Encode(), nil, &resp)
	return resp.Count, err
}

func (c *Client) StatsMonthly(ctx context.Context, f floralog.Filter, year uint32) ([12]uint64, error) {
	q := filterQuery(f)
	q.Set("year", strconv.FormatUint(uint64(year), 10))

	var resp struct {
		Months [12]uint64 `json:"months"`
	}
	err := c.request(ctx, http.MethodGet, "/api/v1/observations/stats/monthly?"+q.Encode(), nil, &resp)
	return resp.Months, err
}

type AnnotateRequest struct {
	Note     *string   `json:"note,omitempty"`
	PhotoCID *string   `json:"photoCid,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}

func (c *Client) Annotate(ctx context.Context, id uint64, req AnnotateRequest) error {
	path := "/api/v1/observations/" + strconv.FormatUint(id, 10) + "/annotations"
	if err := c.request(ctx, http.MethodPost, path, req, nil); err != nil {
		return err
	}
	c.cache.Delete("observation:" + strconv.FormatUint(id, 10))
	return nil
}

func (c *Client) Verify(ctx context.Context, id uint64, taxonID string, confidence uint8) error {
	path := "/api/v1/observations/" + strconv.FormatUint(id, 10) + "/verifications"
	body := map[string]any{"taxonId": taxonID, "confidence": confidence}
	if err := c.request(ctx, http.MethodPost, path, body, nil); err != nil {
		return err
	}
	c.cache.Delete("observation:" + strconv.FormatUint(id, 10))
	return nil
}

func (c *Client) Hide(ctx context.Context, id uint64, reason *string) error {
	path := "/api/v1/observations/" + strconv.FormatUint(id, 10) + "/hide"
	body := map[string]any{"reason": reason}
	if err := c.request(ctx, http.MethodPost, path, body, nil); err != nil {
		return err
	}
	c.cache.Delete("observation:" + strconv.FormatUint(id, 10))
	return nil
}

func (c *Client) SetVerifier(ctx context.Context, principal string, enabled bool) error {
	path := "/api/v1/verifiers/" + url.PathEscape(principal)
	return c.request(ctx, http.MethodPut, path, map[string]any{"enabled": enabled}, nil)
}
