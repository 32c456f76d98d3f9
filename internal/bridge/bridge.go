/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package bridge exposes the library database to the presentation layer
// through named request/response channels.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	applog "storymagic/internal/log"
	"storymagic/internal/storage"
)

// Channel names understood by Handle.
const (
	ChannelIsInitialized = "db:isInitialized"
	ChannelSettingsGet   = "settings:get"
	ChannelSettingsSet   = "settings:set"
	ChannelSettingsAll   = "settings:getAll"
	ChannelSettingsSave  = "settings:saveAll"
)

// Channels lists every supported channel in a stable order.
func Channels() []string {
	return []string{ChannelIsInitialized, ChannelSettingsGet, ChannelSettingsSet, ChannelSettingsAll, ChannelSettingsSave}
}

var ErrUnknownChannel = errors.New("unknown channel")

// Request is one call from the presentation layer.
type Request struct {
	ID      json.RawMessage   `json:"id,omitempty"`
	Channel string            `json:"channel"`
	Args    []json.RawMessage `json:"args,omitempty"`
}

// Response answers a Request with the same ID. Error is set only for
// malformed requests; storage failures on writes surface as a false result.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// Bridge dispatches channel requests to the storage layer.
type Bridge struct {
	db       *storage.DB
	settings *storage.Settings
	log      *slog.Logger
}

func New(db *storage.DB) *Bridge {
	return &Bridge{db: db, settings: storage.NewSettings(db), log: applog.WithComponent("bridge")}
}

// Handle runs a single request. The returned error is non-nil only when
// the request itself is invalid (unknown channel, bad arguments).
func (b *Bridge) Handle(ctx context.Context, req Request) (any, error) {
	ctx = applog.WithChannel(ctx, req.Channel)
	switch req.Channel {
	case ChannelIsInitialized:
		return b.db.IsReady(), nil

	case ChannelSettingsGet:
		key, err := stringArg(req.Args, 0, "key")
		if err != nil {
			return nil, err
		}
		fallback := storage.Null()
		if len(req.Args) > 1 {
			if err := json.Unmarshal(req.Args[1], &fallback); err != nil {
				return nil, fmt.Errorf("fallback: %w", err)
			}
		}
		return b.settings.Get(ctx, key, fallback), nil

	case ChannelSettingsSet:
		key, err := stringArg(req.Args, 0, "key")
		if err != nil {
			return nil, err
		}
		if len(req.Args) < 2 {
			return nil, errors.New("value argument is required")
		}
		var v storage.Value
		if err := json.Unmarshal(req.Args[1], &v); err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		return b.ok(ctx, b.settings.Set(ctx, key, v)), nil

	case ChannelSettingsAll:
		return b.settings.GetAll(ctx), nil

	case ChannelSettingsSave:
		if len(req.Args) < 1 {
			return nil, errors.New("settings object argument is required")
		}
		var values map[string]storage.Value
		if err := json.Unmarshal(req.Args[0], &values); err != nil {
			return nil, fmt.Errorf("settings object: %w", err)
		}
		return b.ok(ctx, b.settings.SetAll(ctx, values)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, req.Channel)
}

// ok maps a write error to the boolean the presentation layer expects.
func (b *Bridge) ok(ctx context.Context, err error) bool {
	if err != nil {
		b.log.WarnContext(ctx, "write failed", slog.Any("err", err))
		return false
	}
	return true
}

func stringArg(args []json.RawMessage, i int, name string) (string, error) {
	if len(args) <= i {
		return "", fmt.Errorf("%s argument is required", name)
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", fmt.Errorf("%s must be a string: %w", name, err)
	}
	return s, nil
}

// maxLine bounds a single request line.
const maxLine = 4 << 20

// Serve reads newline-delimited requests from r and writes one response
// line per request to w until r is exhausted or ctx is cancelled.
// Cancellation is observed even while r is blocked waiting for input; the
// reading goroutine then ends with the next line or when r is closed.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	l := applog.WithOperation(b.log, "serve")
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	enc := json.NewEncoder(w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var line []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ln, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read request: %w", err)
					}
				default:
				}
				return nil
			}
			line = ln
		}
		if len(line) == 0 {
			continue
		}
		var req Request
		var resp Response
		if err := json.Unmarshal(line, &req); err != nil {
			resp.Error = "malformed request: " + err.Error()
		} else {
			resp.ID = req.ID
			result, err := b.Handle(ctx, req)
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.Result = result
			}
		}
		if resp.Error != "" {
			l.Debug("request rejected", slog.String("channel", req.Channel), slog.String("err", resp.Error))
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}
