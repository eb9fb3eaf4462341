/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry reports anonymous storyboard operation metrics (which
// operation ran, how long it took, how many panels it touched, how it failed)
// and uploads crash reports. Nothing leaves the machine unless the operator
// opts in and configures an endpoint.
//
// Operation events are queued and posted in batches; Close sends whatever is
// still pending, so a short-lived CLI run does not lose its event.
package telemetry

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/version"
)

// Config holds telemetry settings. FromEnv reads GSB_TELEMETRY_OPT_IN,
// GSB_TELEMETRY_URL, GSB_CRASH_UPLOAD_URL, GSB_TELEMETRY_TIMEOUT_MS and
// GSB_TELEMETRY_DEBUG.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool

	// BatchSize events or Interval, whichever comes first, trigger a post.
	BatchSize int
	Interval  time.Duration
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("GSB_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("GSB_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("GSB_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("GSB_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("GSB_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil && v > 0 {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// OperationEvent is the record of one storyboard operation. It never carries
// document names or annotation text.
type OperationEvent struct {
	Op         string `json:"op"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	Panels     int    `json:"panels"`
	OK         bool   `json:"ok"`
	ErrorClass string `json:"error_class,omitempty"`
}

// NewOperationEvent describes an operation that finished with err.
func NewOperationEvent(op string, elapsed time.Duration, panels int, err error) OperationEvent {
	ev := OperationEvent{Op: op, ElapsedMs: elapsed.Milliseconds(), Panels: panels, OK: err == nil}
	if err != nil {
		ev.ErrorClass = ErrorClass(err)
	}
	return ev
}

// ErrorClass buckets err by the storyboard error sentinels.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrMissingDependency):
		return "missing_dependency"
	default:
		return "other"
	}
}

// batch is the body posted to EventsURL.
type batch struct {
	Session string           `json:"session"`
	Version string           `json:"version"`
	OS      string           `json:"os"`
	Arch    string           `json:"arch"`
	Sent    string           `json:"sent"`
	Dropped int64            `json:"dropped,omitempty"`
	Events  []OperationEvent `json:"events"`
}

// Client queues operation events and posts them in batches. A full queue
// drops events rather than stall the operation that reported them.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	session string

	q       chan OperationEvent
	flush   chan chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// New starts a client. Call Close to send pending events and stop it.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	c := &Client{
		cfg:     cfg,
		log:     applog.WithComponent("telemetry"),
		cli:     &http.Client{Timeout: cfg.Timeout},
		session: newSession(),
		q:       make(chan OperationEvent, 64),
		flush:   make(chan chan struct{}),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.loop()
	return c
}

func newSession() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// Enabled reports whether events are sent: opted in and an endpoint set.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Record queues ev.
func (c *Client) Record(ev OperationEvent) {
	if !c.Enabled() || ev.Op == "" {
		return
	}
	select {
	case c.q <- ev:
	case <-c.done:
	default:
		c.dropped.Add(1)
	}
}

// Flush posts everything queued so far, or gives up when ctx ends.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	ack := make(chan struct{})
	select {
	case c.flush <- ack:
	case <-c.stopped:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}

// Close sends pending events and stops the client. Safe to call twice.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.done) })
	<-c.stopped
}

func (c *Client) loop() {
	defer close(c.stopped)
	tick := time.NewTicker(c.cfg.Interval)
	defer tick.Stop()

	var pending []OperationEvent
	drain := func() {
		for {
			select {
			case ev := <-c.q:
				pending = append(pending, ev)
			default:
				return
			}
		}
	}
	send := func() {
		if len(pending) > 0 {
			c.post(pending)
			pending = nil
		}
	}
	for {
		select {
		case <-c.done:
			drain()
			send()
			return
		case ev := <-c.q:
			pending = append(pending, ev)
			if len(pending) >= c.cfg.BatchSize {
				send()
			}
		case <-tick.C:
			send()
		case ack := <-c.flush:
			drain()
			send()
			close(ack)
		}
	}
}

func (c *Client) post(events []OperationEvent) {
	body, err := json.Marshal(batch{
		Session: c.session,
		Version: version.String(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Sent:    time.Now().UTC().Format(time.RFC3339),
		Dropped: c.dropped.Swap(0),
		Events:  events,
	})
	if err != nil {
		return
	}
	if err := c.postBody(c.cfg.EventsURL, "application/json", body); err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry batch not delivered", slog.Int("events", len(events)), slog.Any("err", err))
		}
		return
	}
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry batch sent", slog.Int("events", len(events)))
	}
}

func (c *Client) postBody(url, contentType string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry endpoint answered %s", resp.Status)
	}
	return nil
}

// UploadCrash posts a crash report when opted in with a crash URL. It blocks
// for at most the configured timeout, since the process exits right after.
func (c *Client) UploadCrash(report []byte) error {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return nil
	}
	return c.postBody(c.cfg.CrashURL, "text/plain; charset=utf-8", report)
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

func defaultC() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// NewDefault installs a client built from cfg as the process default,
// closing the previous one.
func NewDefault(cfg Config) {
	c := New(cfg)
	defaultMu.Lock()
	prev := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	prev.Close()
}

// Enabled reports whether the default client sends events.
func Enabled() bool { return defaultC().Enabled() }

// Operation records a finished storyboard operation on the default client.
func Operation(op string, elapsed time.Duration, panels int, err error) {
	defaultC().Record(NewOperationEvent(op, elapsed, panels, err))
}

// UploadCrash uploads a crash report with the default client.
func UploadCrash(report []byte) error { return defaultC().UploadCrash(report) }

// Shutdown sends pending events of the default client and stops it.
func Shutdown() {
	defaultMu.Lock()
	c := defaultClient
	defaultClient = nil
	defaultMu.Unlock()
	c.Close()
}
