/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

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

	"gostoryboard/internal/domain"
	"gostoryboard/internal/layout"
	"gostoryboard/internal/pages"
	"gostoryboard/internal/shift"
	"gostoryboard/internal/storage"
)

// Client is a small HTTP client for the storyboard service.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new backend client. A trailing slash on baseURL is dropped.
func NewClient(baseURL string, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SetTimeout replaces the request timeout (30s by default).
func (c *Client) SetTimeout(d time.Duration) { c.client.Timeout = d }

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server: %d %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) (http.Header, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(b, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(b))
		}
		return resp.Header, &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if dest == nil {
		return resp.Header, nil
	}
	return resp.Header, json.NewDecoder(resp.Body).Decode(dest)
}

// RequestToken exchanges the server's admin key for a bearer token and
// stores it on c.
func (c *Client) RequestToken(ctx context.Context, subject, adminKey string, ttl time.Duration) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := TokenRequest{Subject: subject, TTLSeconds: int64(ttl / time.Second), Key: adminKey}
	if _, err := c.do(ctx, http.MethodPost, "/api/auth/token", body, &out); err != nil {
		return "", err
	}
	c.Token = out.Token
	return out.Token, nil
}

// ListDocuments returns the stored documents, newest first.
func (c *Client) ListDocuments(ctx context.Context) ([]DocInfo, error) {
	var list []DocInfo
	if _, err := c.do(ctx, http.MethodGet, "/api/docs", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Document fetches a document and its version.
func (c *Client) Document(ctx context.Context, id string) (*domain.Document, int64, error) {
	var doc domain.Document
	hdr, err := c.do(ctx, http.MethodGet, "/api/docs/"+url.PathEscape(id), nil, &doc)
	if err != nil {
		return nil, 0, err
	}
	doc.Normalize()
	ver, _ := strconv.ParseInt(hdr.Get("ETag"), 10, 64)
	return &doc, ver, nil
}

// PutDocument uploads doc under id.
func (c *Client) PutDocument(ctx context.Context, id string, doc *domain.Document) (int64, error) {
	var out struct {
		Version int64 `json:"version"`
	}
	if _, err := c.do(ctx, http.MethodPut, "/api/docs/"+url.PathEscape(id), doc, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}

// Generate lays out the remote document.
func (c *Client) Generate(ctx context.Context, id string, cfg layout.Config) (OpResult[layout.Report], error) {
	var out OpResult[layout.Report]
	_, err := c.do(ctx, http.MethodPost, "/api/docs/"+url.PathEscape(id)+"/generate", cfg, &out)
	return out, err
}

// Panels lists the remote document's panels in reading order.
func (c *Client) Panels(ctx context.Context, id string) (PanelList, error) {
	var out PanelList
	_, err := c.do(ctx, http.MethodGet, "/api/docs/"+url.PathEscape(id)+"/panels", nil, &out)
	return out, err
}

// Shift runs an insert or remove cascade remotely.
func (c *Client) Shift(ctx context.Context, id string, op shift.Op, index, stop int) (OpResult[shift.Report], error) {
	var out OpResult[shift.Report]
	_, err := c.do(ctx, http.MethodPost, "/api/docs/"+url.PathEscape(id)+"/"+string(op), ShiftRequest{Index: index, Stop: stop}, &out)
	return out, err
}

// Extend appends copies of a template page remotely.
func (c *Client) Extend(ctx context.Context, id string, template, count int) (OpResult[pages.Report], error) {
	var out OpResult[pages.Report]
	_, err := c.do(ctx, http.MethodPost, "/api/docs/"+url.PathEscape(id)+"/extend", ExtendRequest{Template: template, Count: count}, &out)
	return out, err
}

// Animatic builds the derived animatic scene remotely.
func (c *Client) Animatic(ctx context.Context, id string, req AnimaticRequest) (OpResult[*domain.Scene], error) {
	var out OpResult[*domain.Scene]
	_, err := c.do(ctx, http.MethodPost, "/api/docs/"+url.PathEscape(id)+"/animatic", req, &out)
	return out, err
}

// Search queries the remote annotation index.
func (c *Client) Search(ctx context.Context, id string, q storage.SearchQuery) ([]storage.SearchResult, error) {
	v := url.Values{}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	for _, k := range q.Kinds {
		v.Add("kind", k)
	}
	for key, n := range map[string]int{"from": q.PageFrom, "to": q.PageTo, "limit": q.Limit, "offset": q.Offset} {
		if n > 0 {
			v.Set(key, strconv.Itoa(n))
		}
	}
	path := "/api/docs/" + url.PathEscape(id) + "/search"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out []storage.SearchResult
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}
