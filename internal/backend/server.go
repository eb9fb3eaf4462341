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
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"gostoryboard/internal/animatic"
	"gostoryboard/internal/domain"
	"gostoryboard/internal/geom"
	"gostoryboard/internal/indexer"
	"gostoryboard/internal/layout"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/pages"
	"gostoryboard/internal/shift"
	"gostoryboard/internal/storage"
	"gostoryboard/internal/version"
)

const maxBody = 32 << 20

// ServerConfig holds server configuration. DBURL selects PostgreSQL; without
// it documents are kept under DataDir. Secret signs bearer tokens and AdminKey
// must be presented to obtain one. Both are required unless Dev is set, in
// which case missing values are generated per process.
type ServerConfig struct {
	Addr     string
	Secret   string
	AdminKey string
	DataDir  string
	DBURL    string
	Dev      bool
}

// credentials returns the token secret and admin key to serve with.
func (c ServerConfig) credentials(l *slog.Logger) (secret, adminKey string, err error) {
	secret, adminKey = c.Secret, c.AdminKey
	if !c.Dev {
		if secret == "" {
			return "", "", fmt.Errorf("%w: server secret not set (GSB_SERVER_SECRET)", domain.ErrConfiguration)
		}
		if adminKey == "" {
			return "", "", fmt.Errorf("%w: server admin key not set (GSB_SERVER_ADMIN_KEY)", domain.ErrConfiguration)
		}
		return secret, adminKey, nil
	}
	if secret == "" {
		if secret, err = randomKey(); err != nil {
			return "", "", err
		}
		l.Warn("dev mode: tokens are signed with a per-process secret")
	}
	if adminKey == "" {
		if adminKey, err = randomKey(); err != nil {
			return "", "", err
		}
		l.Warn("dev mode: generated admin key", slog.String("admin_key", adminKey))
	}
	return secret, adminKey, nil
}

func randomKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ShiftRequest is the body of insert and remove calls. Index and Stop are
// global 1-based panel positions.
type ShiftRequest struct {
	Index int `json:"index"`
	Stop  int `json:"stop"`
}

// ExtendRequest is the body of extend calls.
type ExtendRequest struct {
	Template int `json:"template"`
	Count    int `json:"count"`
}

// AnimaticRequest is the body of animatic calls.
type AnimaticRequest struct {
	ShotDuration int    `json:"shot_duration"`
	SceneName    string `json:"scene_name"`
}

// PanelInfo is the wire form of an indexed panel. Page is 1-based.
type PanelInfo struct {
	Number int       `json:"number"`
	Page   int       `json:"page"`
	Name   string    `json:"name,omitempty"`
	Rect   geom.Rect `json:"rect"`
}

// PanelList is the response of the panels endpoint.
type PanelList struct {
	Count      int         `json:"count"`
	Unassigned int         `json:"unassigned"`
	Panels     []PanelInfo `json:"panels"`
}

// NewPanelList converts an index result to its wire form.
func NewPanelList(res indexer.Result) PanelList {
	out := PanelList{Count: res.Count(), Unassigned: res.Unassigned, Panels: make([]PanelInfo, 0, res.Count())}
	for _, p := range res.Panels {
		out.Panels = append(out.Panels, PanelInfo{Number: p.Number, Page: p.Page + 1, Name: p.Name(), Rect: p.Rect})
	}
	return out
}

// OpResult wraps an operation report with the stored version.
type OpResult[T any] struct {
	Version int64 `json:"version"`
	Report  T     `json:"report"`
}

// Start serves until ctx is cancelled.
func Start(ctx context.Context, cfg ServerConfig) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "serve")
	secret, adminKey, err := cfg.credentials(l)
	if err != nil {
		return err
	}
	var store Store
	if cfg.DBURL != "" {
		pg, err := OpenPG(ctx, cfg.DBURL)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		store = pg
	} else {
		fs, err := NewFileStore(cfg.DataDir)
		if err != nil {
			return err
		}
		store = fs
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(NewService(store), secret, adminKey),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	l.Info("listening", slog.String("addr", cfg.Addr))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

// NewHandler builds the HTTP API around svc. Tokens are issued only to
// callers presenting adminKey; an empty adminKey disables issuance.
func NewHandler(svc *Service, secret, adminKey string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(version.String()))
	})

	// POST /api/auth/token {subject, ttl_seconds, key} → { token, expires_at }
	mux.HandleFunc("POST /api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if !keyMatches(adminKey, req.Key) {
			applog.WithComponent("backend").Warn("token request refused", slog.String("remote", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, errors.New("admin key required"))
			return
		}
		if req.Subject == "" {
			req.Subject = "operator"
		}
		if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
			req.TTLSeconds = 3600
		}
		exp := time.Now().Add(time.Duration(req.TTLSeconds) * time.Second)
		tok, err := signToken(secret, req.Subject, exp)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      tok,
			"expires_at": exp.UTC().Format(time.RFC3339),
		})
	})

	auth := func(pattern string, h func(w http.ResponseWriter, r *http.Request, id string)) {
		mux.HandleFunc(pattern, withAuth(secret, func(w http.ResponseWriter, r *http.Request, sub string) {
			id := r.PathValue("id")
			if id != "" && !ValidID(id) {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid document id"))
				return
			}
			h(w, r, id)
		}))
	}

	auth("GET /api/docs", func(w http.ResponseWriter, r *http.Request, _ string) {
		list, err := svc.Store().List(r.Context())
		if err != nil {
			writeFailure(w, err)
			return
		}
		if list == nil {
			list = []DocInfo{}
		}
		writeJSON(w, http.StatusOK, list)
	})
	auth("GET /api/docs/{id}", func(w http.ResponseWriter, r *http.Request, id string) {
		doc, ver, err := svc.Document(r.Context(), id)
		if err != nil {
			writeFailure(w, err)
			return
		}
		w.Header().Set("ETag", strconv.FormatInt(ver, 10))
		writeJSON(w, http.StatusOK, doc)
	})
	auth("PUT /api/docs/{id}", func(w http.ResponseWriter, r *http.Request, id string) {
		b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := storage.ValidateManifest(b); err != nil {
			writeFailure(w, err)
			return
		}
		var doc domain.Document
		if err := json.Unmarshal(b, &doc); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		doc.Normalize()
		ver, err := svc.Create(r.Context(), id, &doc)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "version": ver})
	})
	auth("POST /api/docs/{id}/generate", func(w http.ResponseWriter, r *http.Request, id string) {
		cfg := layout.Defaults()
		if !decodeBody(w, r, &cfg) {
			return
		}
		rep, ver, err := svc.Generate(r.Context(), id, cfg)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OpResult[layout.Report]{Version: ver, Report: rep})
	})
	auth("GET /api/docs/{id}/panels", func(w http.ResponseWriter, r *http.Request, id string) {
		res, err := svc.Panels(r.Context(), id)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, NewPanelList(res))
	})
	for _, op := range []shift.Op{shift.OpInsert, shift.OpRemove} {
		auth("POST /api/docs/{id}/"+string(op), func(w http.ResponseWriter, r *http.Request, id string) {
			var req ShiftRequest
			if !decodeBody(w, r, &req) {
				return
			}
			rep, ver, err := svc.Shift(r.Context(), id, op, req.Index, req.Stop)
			if err != nil {
				writeFailure(w, err)
				return
			}
			writeJSON(w, http.StatusOK, OpResult[shift.Report]{Version: ver, Report: rep})
		})
	}
	auth("POST /api/docs/{id}/extend", func(w http.ResponseWriter, r *http.Request, id string) {
		req := ExtendRequest{Template: 1, Count: 1}
		if !decodeBody(w, r, &req) {
			return
		}
		rep, ver, err := svc.Extend(r.Context(), id, req.Template, req.Count)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OpResult[pages.Report]{Version: ver, Report: rep})
	})
	auth("POST /api/docs/{id}/animatic", func(w http.ResponseWriter, r *http.Request, id string) {
		var req AnimaticRequest
		if !decodeBody(w, r, &req) {
			return
		}
		scene, ver, err := svc.Animatic(r.Context(), id, animatic.Options{ShotDuration: req.ShotDuration, SceneName: req.SceneName})
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OpResult[*domain.Scene]{Version: ver, Report: scene})
	})
	auth("GET /api/docs/{id}/search", func(w http.ResponseWriter, r *http.Request, id string) {
		q := r.URL.Query()
		sq := storage.SearchQuery{Text: q.Get("q"), Kinds: q["kind"]}
		sq.PageFrom, _ = strconv.Atoi(q.Get("from"))
		sq.PageTo, _ = strconv.Atoi(q.Get("to"))
		sq.Limit, _ = strconv.Atoi(q.Get("limit"))
		sq.Offset, _ = strconv.Atoi(q.Get("offset"))
		res, err := svc.Store().Search(r.Context(), id, sq)
		if err != nil {
			writeFailure(w, err)
			return
		}
		if res == nil {
			res = []storage.SearchResult{}
		}
		writeJSON(w, http.StatusOK, res)
	})
	return mux
}

// decodeBody decodes an optional JSON body over dst. It reports false after
// writing an error response.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return true
	}
	if err := json.Unmarshal(b, dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return false
	}
	return true
}

// statusFor maps operation errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, domain.ErrMissingDependency):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

// --- Helpers: auth and JSON ---

// TokenRequest is the body of POST /api/auth/token.
type TokenRequest struct {
	Subject    string `json:"subject"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Key        string `json:"key"`
}

// keyMatches compares digests so the comparison time does not depend on
// where the keys differ or on their lengths.
func keyMatches(want, got string) bool {
	if want == "" {
		return false
	}
	a, b := sha256.Sum256([]byte(want)), sha256.Sum256([]byte(got))
	return hmac.Equal(a[:], b[:])
}

type tokenClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"` // unix seconds
}

// signingKey derives the token MAC key from the configured secret so the raw
// secret never keys the MAC directly.
func signingKey(secret string) []byte {
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("gostoryboard api token v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255 blocks of output
		panic(err)
	}
	return key
}

func signToken(secret, subject string, exp time.Time) (string, error) {
	claims := tokenClaims{Sub: subject, Exp: exp.Unix()}
	b, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, signingKey(secret))
	_, _ = h.Write(b)
	payload := base64.RawURLEncoding.EncodeToString(b)
	signature := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return payload + "." + signature, nil
}

func verifyToken(secret, token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid token format")
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid token payload")
	}
	sigB, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid token signature")
	}
	h := hmac.New(sha256.New, signingKey(secret))
	_, _ = h.Write(payloadB)
	if !hmac.Equal(h.Sum(nil), sigB) {
		return "", fmt.Errorf("bad signature")
	}
	var claims tokenClaims
	if err := json.Unmarshal(payloadB, &claims); err != nil {
		return "", fmt.Errorf("bad claims")
	}
	if claims.Exp < time.Now().Unix() {
		return "", fmt.Errorf("token expired")
	}
	if claims.Sub == "" {
		return "", fmt.Errorf("token without subject")
	}
	return claims.Sub, nil
}

func withAuth(secret string, next func(w http.ResponseWriter, r *http.Request, subject string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing bearer token"))
			return
		}
		sub, err := verifyToken(secret, strings.TrimSpace(auth[len(prefix):]))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid token"))
			return
		}
		next(w, r, sub)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
