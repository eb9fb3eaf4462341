/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gostoryboard/internal/animatic"
	"gostoryboard/internal/domain"
	"gostoryboard/internal/layout"
	"gostoryboard/internal/shift"
	"gostoryboard/internal/storage"
	"gostoryboard/internal/version"
)

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(NewHandler(newTestService(t), "test-secret", "admin-key"))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/", "")
	if _, err := c.RequestToken(context.Background(), "tester", "admin-key", time.Hour); err != nil {
		t.Fatalf("RequestToken: %v", err)
	}
	return srv, c
}

func TestTokenRoundTrip(t *testing.T) {
	tok, err := signToken("s", "alice", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	sub, err := verifyToken("s", tok)
	if err != nil || sub != "alice" {
		t.Fatalf("verifyToken = %q, %v", sub, err)
	}
	if _, err := verifyToken("other", tok); err == nil {
		t.Fatalf("expected bad signature")
	}
	old, _ := signToken("s", "alice", time.Now().Add(-time.Minute))
	if _, err := verifyToken("s", old); err == nil {
		t.Fatalf("expected expired token")
	}
	if _, err := verifyToken("s", "garbage"); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestHealthAndVersionNeedNoAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	for path, want := range map[string]string{"/healthz": "ok", "/version": version.String()} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK || buf.String() != want {
			t.Fatalf("GET %s = %d %q", path, resp.StatusCode, buf.String())
		}
	}
}

func TestAPIRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)
	anon := NewClient(srv.URL, "")
	_, err := anon.ListDocuments(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestTokenIssuanceNeedsAdminKey(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	for _, key := range []string{"", "admin-ke", "admin-key-2"} {
		c := NewClient(srv.URL, "")
		_, err := c.RequestToken(ctx, "mallory", key, time.Hour)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			t.Fatalf("key %q: expected 401, got %v", key, err)
		}
		if c.Token != "" {
			t.Fatalf("key %q: client kept a token", key)
		}
	}

	closed := httptest.NewServer(NewHandler(newTestService(t), "test-secret", ""))
	t.Cleanup(closed.Close)
	_, err := NewClient(closed.URL, "").RequestToken(ctx, "tester", "", time.Hour)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("issuance without admin key configured: %v", err)
	}
}

func TestStartRefusesMissingCredentials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, cfg := range []ServerConfig{
		{Addr: "127.0.0.1:0", DataDir: t.TempDir(), AdminKey: "k"},
		{Addr: "127.0.0.1:0", DataDir: t.TempDir(), Secret: "s"},
	} {
		if err := Start(ctx, cfg); !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("Start(%+v) = %v, want configuration error", cfg, err)
		}
	}
}

func TestDevCredentialsAreGenerated(t *testing.T) {
	secret, key, err := ServerConfig{Dev: true}.credentials(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if secret == "" || key == "" || secret == "dev-secret-change-me" {
		t.Fatalf("dev credentials = %q/%q", secret, key)
	}
	again, _, _ := ServerConfig{Dev: true}.credentials(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if again == secret {
		t.Fatalf("dev secret repeats across starts")
	}
	s, k, err := ServerConfig{Dev: true, Secret: "s", AdminKey: "k"}.credentials(slog.Default())
	if err != nil || s != "s" || k != "k" {
		t.Fatalf("configured credentials replaced in dev mode: %q/%q %v", s, k, err)
	}
}

func TestClientDrivesStoryboard(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()

	if _, err := c.PutDocument(ctx, "ep1", domain.NewDocument("Episode 1")); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	cfg := layout.Defaults()
	cfg.Rows, cfg.Columns = 2, 2
	gen, err := c.Generate(ctx, "ep1", cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Report.Panels != 4 || gen.Version != 2 {
		t.Fatalf("generate = %+v", gen)
	}

	list, err := c.Panels(ctx, "ep1")
	if err != nil {
		t.Fatalf("Panels: %v", err)
	}
	if list.Count != 4 || list.Panels[0].Name != "frame_p001_001" || list.Panels[3].Page != 1 {
		t.Fatalf("panels = %+v", list)
	}

	doc, ver, err := c.Document(ctx, "ep1")
	if err != nil || ver != 2 {
		t.Fatalf("Document: ver %d err %v", ver, err)
	}
	doc.SetText(doc.FindAnnotation("panel_notes_p001_002"), "hero jumps")
	if _, err := c.PutDocument(ctx, "ep1", doc); err != nil {
		t.Fatalf("PutDocument edited: %v", err)
	}

	ins, err := c.Shift(ctx, "ep1", shift.OpInsert, 2, 3)
	if err != nil {
		t.Fatalf("Shift insert: %v", err)
	}
	if ins.Report.Op != shift.OpInsert || ins.Report.Steps != 2 {
		t.Fatalf("insert report %+v", ins.Report)
	}
	hits, err := c.Search(ctx, "ep1", storage.SearchQuery{Text: "hero"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "panel_notes_p001_003" {
		t.Fatalf("moved notes should be found on panel 3: %+v", hits)
	}

	_, err = c.Shift(ctx, "ep1", shift.OpRemove, 9, 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
	if _, err := c.Extend(ctx, "ep1", 1, 2); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	an, err := c.Animatic(ctx, "ep1", AnimaticRequest{ShotDuration: 12})
	if err != nil {
		t.Fatalf("Animatic: %v", err)
	}
	if an.Report.Name != "Episode 1"+"_animatic" || len(an.Report.Cameras) != 12 {
		t.Fatalf("animatic scene %s with %d cameras", an.Report.Name, len(an.Report.Cameras))
	}
	if an.Report.Name != animatic.SceneName(doc) {
		t.Fatalf("unexpected scene name %s", an.Report.Name)
	}

	_, err = c.Panels(ctx, "nope")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	docs, err := c.ListDocuments(ctx)
	if err != nil || len(docs) != 1 || docs[0].ID != "ep1" {
		t.Fatalf("ListDocuments = %+v, %v", docs, err)
	}
}

func TestGenerateRejectsBadConfig(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()
	if _, err := c.PutDocument(ctx, "d", domain.NewDocument("d")); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	cfg := layout.Defaults()
	cfg.Rows = 0
	_, err := c.Generate(ctx, "d", cfg)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
