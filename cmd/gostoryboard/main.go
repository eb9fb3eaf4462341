/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"gostoryboard/internal/config"
	"gostoryboard/internal/crash"
	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/storage"
	"gostoryboard/internal/telemetry"
	"gostoryboard/internal/version"
)

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "GoStoryboard: storyboard sheet generator and panel tools")
	_, _ = fmt.Fprintf(w, "Version: %s\n", version.String())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage (flags go before positional arguments):")
	_, _ = fmt.Fprintln(w, "  gostoryboard version|-v|--version                      Show version")
	_, _ = fmt.Fprintln(w, "  gostoryboard init [-layout file.yaml] <dir> <name>     Create a storyboard and generate its sheet")
	_, _ = fmt.Fprintln(w, "  gostoryboard generate [-layout file] [-pages n] <dir>  Regenerate panels, cameras and markers")
	_, _ = fmt.Fprintln(w, "  gostoryboard panels [-json] <dir>                      List panels in reading order")
	_, _ = fmt.Fprintln(w, "  gostoryboard insert <dir> <i> <stop>                   Open an empty panel at i, cascading to stop")
	_, _ = fmt.Fprintln(w, "  gostoryboard remove <dir> <i> <stop>                   Remove panel i content, pulling back to stop")
	_, _ = fmt.Fprintln(w, "  gostoryboard pick <dir> <insert|remove> <x,z> <x,z>    Shift between the panels under two points")
	_, _ = fmt.Fprintln(w, "  gostoryboard extend [-count n] <dir> <template-page>   Append copies of a page")
	_, _ = fmt.Fprintln(w, "  gostoryboard animatic [-duration f] [-scene s] <dir>   Build the animatic scene")
	_, _ = fmt.Fprintln(w, "  gostoryboard timeline shift [-at f] <dir> <delta>      Move markers after the playhead")
	_, _ = fmt.Fprintln(w, "  gostoryboard timeline dilate|compress [-force] <dir>   Widen or narrow marker gaps by one frame")
	_, _ = fmt.Fprintln(w, "  gostoryboard export pdf|png|web|print [-out p] <dir>   Export pages")
	_, _ = fmt.Fprintln(w, "  gostoryboard search [-kind k] [-from p] [-to p] <dir> <text>")
	_, _ = fmt.Fprintln(w, "  gostoryboard history [-n 20] <dir>                     Show the operation journal")
	_, _ = fmt.Fprintln(w, "  gostoryboard restore <dir>                             Undo the last recorded operation")
	_, _ = fmt.Fprintln(w, "  gostoryboard pack <dir> <file.zip>                     Bundle manifest and assets")
	_, _ = fmt.Fprintln(w, "  gostoryboard unpack <file.zip> <dir>                   Unpack a bundle into a new folder")
	_, _ = fmt.Fprintln(w, "  gostoryboard serve [-addr :8080] [-data dir] [-db url] [-dev]  Run the HTTP service")
	_, _ = fmt.Fprintln(w, "  gostoryboard remote login|list|panels|insert|remove|extend|animatic ...")
}

// errUsage marks argument errors; main prints usage and exits with 2.
var errUsage = errors.New("usage")

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// app carries what every command needs.
type app struct {
	cfg   config.AppConfig
	token string
	out   io.Writer
	log   *slog.Logger
}

func main() {
	cfg, token, cerr := config.Load()
	applog.Init(cfg.Logging.LogOptions())
	l := applog.WithComponent("cli")
	if cerr != nil {
		l.Warn("config not loaded; using defaults", slog.Any("err", cerr))
		cfg = config.Defaults()
	}
	telemetry.NewDefault(telemetry.Config{
		OptIn:     cfg.General.TelemetryOptIn,
		EventsURL: cfg.General.TelemetryURL,
		CrashURL:  telemetry.FromEnv().CrashURL,
		Timeout:   telemetry.FromEnv().Timeout,
	})
	defer crash.Recover(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{cfg: cfg, token: token, out: os.Stdout, log: l}
	l.Debug("start", slog.Int("args", len(os.Args)))
	err := a.run(ctx, os.Args[1:])
	telemetry.Shutdown()
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		usage(os.Stderr)
		os.Exit(2)
	default:
		l.Error("command failed", slog.Any("err", err))
		_, _ = fmt.Fprintln(os.Stderr, "Error:", userMessage(err))
		os.Exit(1)
	}
}

// userMessage reduces err to one line an operator can act on.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return "invalid sheet configuration: " + err.Error()
	case errors.Is(err, domain.ErrMissingDependency):
		return "storyboard is incomplete (generate it first): " + err.Error()
	case errors.Is(err, storage.ErrNothingToRestore):
		return "nothing to restore"
	}
	return err.Error()
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage(a.out)
		return nil
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(a.out, "GoStoryboard", version.String())
		return nil
	case "help", "-h", "--help":
		usage(a.out)
		return nil
	case "init":
		return a.cmdInit(ctx, rest)
	case "generate":
		return a.cmdGenerate(ctx, rest)
	case "panels":
		return a.cmdPanels(rest)
	case "insert", "remove":
		return a.cmdShift(ctx, cmd, rest)
	case "pick":
		return a.cmdPick(ctx, rest)
	case "extend":
		return a.cmdExtend(ctx, rest)
	case "animatic":
		return a.cmdAnimatic(ctx, rest)
	case "timeline":
		return a.cmdTimeline(ctx, rest)
	case "export":
		return a.cmdExport(rest)
	case "search":
		return a.cmdSearch(ctx, rest)
	case "history":
		return a.cmdHistory(ctx, rest)
	case "restore":
		return a.cmdRestore(ctx, rest)
	case "pack":
		return a.cmdPack(rest)
	case "unpack":
		return a.cmdUnpack(ctx, rest)
	case "serve":
		return a.cmdServe(ctx, rest)
	case "remote":
		return a.cmdRemote(ctx, rest)
	}
	return usageErr("unknown command %q", cmd)
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parse parses flags and checks that at least n positional arguments remain.
func parse(fs *flag.FlagSet, args []string, n int, what string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, usageErr("%s: %v", fs.Name(), err)
	}
	if fs.NArg() < n {
		return nil, usageErr("%s requires %s", fs.Name(), what)
	}
	return fs.Args(), nil
}
