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
	"fmt"
	"os"
	"time"

	"gostoryboard/internal/backend"
	"gostoryboard/internal/config"
	"gostoryboard/internal/shift"
)

func (a *app) client() *backend.Client {
	c := backend.NewClient(a.cfg.Backend.BaseURL, a.token)
	c.SetTimeout(a.cfg.Backend.Timeout())
	return c
}

// cmdRemote runs operations against a gostoryboard service. Documents are
// addressed by id; the mutation commands print the new stored version.
func (a *app) cmdRemote(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageErr("remote requires a command")
	}
	sub, args := args[0], args[1:]
	c := a.client()
	switch sub {
	case "login":
		fs := newFlags("remote login")
		ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
		key := fs.String("key", os.Getenv(config.EnvServerAdminKey), "server admin key")
		rest, err := parse(fs, args, 0, "")
		if err != nil {
			return err
		}
		if *key == "" {
			return usageErr("remote login needs -key or %s", config.EnvServerAdminKey)
		}
		subject := "cli"
		if len(rest) > 0 {
			subject = rest[0]
		} else if u := os.Getenv("USER"); u != "" {
			subject = u
		}
		tok, err := c.RequestToken(ctx, subject, *key, *ttl)
		if err != nil {
			return err
		}
		if err := config.Save(a.cfg, tok); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
		_, _ = fmt.Fprintln(a.out, "token stored in the OS keyring")
		return nil
	case "list":
		docs, err := c.ListDocuments(ctx)
		if err != nil {
			return err
		}
		for _, d := range docs {
			_, _ = fmt.Fprintf(a.out, "%s\tv%d\t%s\t%s\n", d.ID, d.Version, d.UpdatedAt.Format(time.RFC3339), d.Name)
		}
		return nil
	case "panels":
		rest, err := parse(newFlags("remote panels"), args, 1, "<id>")
		if err != nil {
			return err
		}
		list, err := c.Panels(ctx, rest[0])
		if err != nil {
			return err
		}
		for _, p := range list.Panels {
			_, _ = fmt.Fprintf(a.out, "%d\t%d\t%s\n", p.Number, p.Page, p.Name)
		}
		return nil
	case "push":
		rest, err := parse(newFlags("remote push"), args, 2, "<dir> <id>")
		if err != nil {
			return err
		}
		h, err := openDoc(rest[0])
		if err != nil {
			return err
		}
		ver, err := c.PutDocument(ctx, rest[1], h.Doc)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "%s stored at version %d\n", rest[1], ver)
		return nil
	case "insert", "remove":
		rest, err := parse(newFlags("remote "+sub), args, 3, "<id> <i> <stop>")
		if err != nil {
			return err
		}
		i, err := atoi(rest[1], "i")
		if err != nil {
			return err
		}
		stop, err := atoi(rest[2], "stop")
		if err != nil {
			return err
		}
		res, err := c.Shift(ctx, rest[0], shift.Op(sub), i, stop)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "%s (version %d)\n", res.Report, res.Version)
		return nil
	case "extend":
		fs := newFlags("remote extend")
		count := fs.Int("count", 1, "pages to append")
		rest, err := parse(fs, args, 2, "<id> <template-page>")
		if err != nil {
			return err
		}
		tpl, err := atoi(rest[1], "template-page")
		if err != nil {
			return err
		}
		res, err := c.Extend(ctx, rest[0], tpl, *count)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "appended %d page(s) (version %d)\n", res.Report.Added, res.Version)
		return nil
	case "animatic":
		fs := newFlags("remote animatic")
		dur := fs.Int("duration", a.cfg.General.ShotDuration, "frames per panel")
		scene := fs.String("scene", "", "scene name")
		rest, err := parse(fs, args, 1, "<id>")
		if err != nil {
			return err
		}
		res, err := c.Animatic(ctx, rest[0], backend.AnimaticRequest{ShotDuration: *dur, SceneName: *scene})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "scene %s: %d shots (version %d)\n", res.Report.Name, len(res.Report.Cameras), res.Version)
		return nil
	}
	return usageErr("unknown remote command %q", sub)
}
