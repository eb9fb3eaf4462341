/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gostoryboard/internal/domain"
)

// collector is an endpoint that keeps every batch and crash body it receives.
type collector struct {
	mu      sync.Mutex
	batches []batch
	crashes []string
}

func (c *collector) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", func(w http.ResponseWriter, r *http.Request) {
		var b batch
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.batches = append(c.batches, b)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /crash", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.crashes = append(c.crashes, string(body))
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (c *collector) events() []OperationEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []OperationEvent
	for _, b := range c.batches {
		out = append(out, b.Events...)
	}
	return out
}

func TestNewOperationEventClassifiesErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: rows < 1", domain.ErrConfiguration), "configuration"},
		{fmt.Errorf("%w: remove 2..2: duplication and discard panel are both #2", domain.ErrValidation), "validation"},
		{fmt.Errorf("%w: no frame layer", domain.ErrMissingDependency), "missing_dependency"},
		{errors.New("disk full"), "other"},
	}
	for _, c := range cases {
		ev := NewOperationEvent("remove", 1500*time.Millisecond, 3, c.err)
		if ev.OK != (c.err == nil) || ev.ElapsedMs != 1500 || ev.Panels != 3 || ev.ErrorClass != c.want {
			t.Fatalf("event for %v = %+v", c.err, ev)
		}
	}
}

func TestOperationEventsAreBatched(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second, Interval: time.Hour})
	defer c.Close()

	c.Record(NewOperationEvent("generate", 20*time.Millisecond, 12, nil))
	c.Record(NewOperationEvent("insert", 5*time.Millisecond, 2, nil))
	c.Record(NewOperationEvent("extend", time.Millisecond, 0, fmt.Errorf("%w: template page 9", domain.ErrValidation)))
	c.Flush(context.Background())

	col.mu.Lock()
	n := len(col.batches)
	var b batch
	if n > 0 {
		b = col.batches[0]
	}
	col.mu.Unlock()
	if n != 1 {
		t.Fatalf("batches = %d, want 1", n)
	}
	if b.Session == "" || b.Version == "" || len(b.Events) != 3 {
		t.Fatalf("batch = %+v", b)
	}
	if b.Events[0].Op != "generate" || b.Events[0].Panels != 12 || !b.Events[0].OK {
		t.Fatalf("first event = %+v", b.Events[0])
	}
	if b.Events[2].OK || b.Events[2].ErrorClass != "validation" {
		t.Fatalf("failed extend = %+v", b.Events[2])
	}
}

func TestBatchSizeTriggersPost(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second, Interval: time.Hour, BatchSize: 2})
	defer c.Close()

	c.Record(NewOperationEvent("pick", 0, 2, nil))
	c.Record(NewOperationEvent("insert", 0, 2, nil))
	deadline := time.Now().Add(2 * time.Second)
	for len(col.events()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("full batch not posted without Flush")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCloseSendsPending(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second, Interval: time.Hour})
	c.Record(NewOperationEvent("animatic", 0, 6, nil))
	c.Close()
	c.Close()
	if ev := col.events(); len(ev) != 1 || ev[0].Op != "animatic" {
		t.Fatalf("events after Close = %+v", ev)
	}
}

func TestDisabledClientSendsNothing(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	for _, cfg := range []Config{
		{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash"},
		{OptIn: true},
	} {
		c := New(cfg)
		if c.Enabled() {
			t.Fatalf("client enabled with %+v", cfg)
		}
		c.Record(NewOperationEvent("generate", 0, 6, nil))
		if err := c.UploadCrash([]byte("panic")); err != nil {
			t.Fatalf("UploadCrash: %v", err)
		}
		c.Close()
	}
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events"})
	c.Record(OperationEvent{})
	c.Close()
	if len(col.events()) != 0 || len(col.crashes) != 0 {
		t.Fatalf("disabled or empty events reached the endpoint")
	}
}

func TestUploadCrash(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	c := New(Config{OptIn: true, CrashURL: srv.URL + "/crash", Timeout: time.Second})
	defer c.Close()
	if err := c.UploadCrash([]byte("GoStoryboard Crash Report\nPanic: boom")); err != nil {
		t.Fatalf("UploadCrash: %v", err)
	}
	if len(col.crashes) != 1 || !strings.Contains(col.crashes[0], "Panic: boom") {
		t.Fatalf("crashes = %q", col.crashes)
	}

	down := New(Config{OptIn: true, CrashURL: "http://127.0.0.1:1/crash", Timeout: 100 * time.Millisecond})
	defer down.Close()
	if err := down.UploadCrash([]byte("x")); err == nil {
		t.Fatalf("expected an error from an unreachable crash endpoint")
	}
}

func TestDefaultClientFromEnv(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	t.Setenv("GSB_TELEMETRY_OPT_IN", "yes")
	t.Setenv("GSB_TELEMETRY_URL", srv.URL+"/events")
	t.Setenv("GSB_CRASH_UPLOAD_URL", "")
	t.Setenv("GSB_TELEMETRY_TIMEOUT_MS", "250")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.Timeout != 250*time.Millisecond {
		t.Fatalf("FromEnv = %+v", cfg)
	}
	NewDefault(cfg)
	t.Cleanup(Shutdown)
	if !Enabled() {
		t.Fatalf("default client disabled")
	}
	Operation("search", time.Millisecond, 0, nil)
	Shutdown()
	if ev := col.events(); len(ev) != 1 || ev[0].Op != "search" {
		t.Fatalf("default client events = %+v", ev)
	}
}
