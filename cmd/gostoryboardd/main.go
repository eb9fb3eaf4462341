/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command gostoryboardd serves the storyboard HTTP API. Documents live in
// PostgreSQL when a database URL is configured and in a directory of
// storyboard folders otherwise.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gostoryboard/internal/backend"
	"gostoryboard/internal/config"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/version"
)

func main() {
	cfg, _, cerr := config.Load()
	addr := flag.String("addr", cfg.Server.Addr, "listen address")
	data := flag.String("data", cfg.Server.DataDir, "file store directory")
	db := flag.String("db", cfg.Server.DatabaseURL, "PostgreSQL URL (overrides the file store)")
	dev := flag.Bool("dev", false, "generate a missing token secret and admin key")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println("gostoryboardd", version.String())
		return
	}

	applog.Init(cfg.Logging.LogOptions())
	l := applog.WithComponent("server")
	if cerr != nil {
		l.Error("config invalid", slog.Any("err", cerr))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() { _ = applog.Close() }()

	err := backend.Start(ctx, backend.ServerConfig{
		Addr:     *addr,
		Secret:   cfg.Server.Secret,
		AdminKey: cfg.Server.AdminKey,
		DataDir:  *data,
		DBURL:    *db,
		Dev:      *dev,
	})
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
	l.Info("server stopped")
}
