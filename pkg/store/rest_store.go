package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RESTStore talks to the hosted PostgREST row API. Requests carry the
// caller's access token so the store's row-level security applies.
type RESTStore struct {
	baseURL    string
	apiKey     string
	tokens     TokenSource
	httpClient *http.Client
}

// NewRESTStore constructs a client for baseURL/rest/v1.
func NewRESTStore(baseURL, apiKey string, tokens TokenSource) *RESTStore {
	return &RESTStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *RESTStore) Select(ctx context.Context, table string, filters []Filter, order Order, out any) error {
	extra := url.Values{"select": {"*"}}
	if order.Column != "" {
		dir := "asc"
		if order.Desc {
			dir = "desc"
		}
		extra.Set("order", order.Column+"."+dir)
	}
	resp, err := s.do(ctx, http.MethodGet, table, filters, extra, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(resp, out)
}

func (s *RESTStore) Insert(ctx context.Context, table string, values map[string]any, out any) error {
	resp, err := s.do(ctx, http.MethodPost, table, nil, nil, []map[string]any{values}, "return=representation")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(resp, out)
}

func (s *RESTStore) Update(ctx context.Context, table string, values map[string]any, filters []Filter, out any) error {
	if len(filters) == 0 {
		return errNoFilters
	}
	resp, err := s.do(ctx, http.MethodPatch, table, filters, nil, values, "return=representation")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(resp, out)
}

func (s *RESTStore) Delete(ctx context.Context, table string, filters []Filter) error {
	if len(filters) == 0 {
		return errNoFilters
	}
	resp, err := s.do(ctx, http.MethodDelete, table, filters, nil, nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Count issues a HEAD request with an exact count and reads the total from Content-Range.
func (s *RESTStore) Count(ctx context.Context, table string, filters []Filter) (int, error) {
	resp, err := s.do(ctx, http.MethodHead, table, filters, url.Values{"select": {"*"}}, nil, "count=exact")
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return parseContentRange(resp.Header.Get("Content-Range"))
}

func (s *RESTStore) do(ctx context.Context, method, table string, filters []Filter, extra url.Values, payload any, prefer string) (*http.Response, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	query := url.Values{}
	for k, vs := range extra {
		query[k] = vs
	}
	for _, f := range filters {
		query.Add(f.Column, "eq."+f.Value)
	}
	target := s.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	token := s.apiKey
	if s.tokens != nil {
		if userToken, ok := s.tokens.AccessToken(ctx); ok {
			token = userToken
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeBody(resp *http.Response, out any) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
		Hint    string `json:"hint"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
	msg := strings.TrimSpace(errResp.Message)
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Code: strings.TrimSpace(errResp.Code), Message: msg}
}

// parseContentRange reads the total from "0-24/25" or "*/0".
func parseContentRange(value string) (int, error) {
	value = strings.TrimSpace(value)
	idx := strings.LastIndex(value, "/")
	if idx < 0 {
		return 0, fmt.Errorf("count: malformed content-range %q", value)
	}
	total := value[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("count: total not reported in %q", value)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("count: malformed content-range %q", value)
	}
	return n, nil
}
