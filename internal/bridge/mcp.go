/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"storymagic/internal/version"
)

// toolSpec maps an MCP tool onto a bridge channel. argOrder lists the
// tool arguments in the positional order the channel expects.
type toolSpec struct {
	tool     mcp.Tool
	channel  string
	argOrder []string
}

func toolSpecs() []toolSpec {
	obj := func(props map[string]any, required ...string) mcp.ToolInputSchema {
		if props == nil {
			props = map[string]any{}
		}
		return mcp.ToolInputSchema{Type: "object", Properties: props, Required: required}
	}
	return []toolSpec{
		{
			tool: mcp.Tool{
				Name:        "db_is_initialized",
				Description: "Report whether the StoryMagic library database is open and ready.",
				InputSchema: obj(nil),
			},
			channel: ChannelIsInitialized,
		},
		{
			tool: mcp.Tool{
				Name:        "settings_get",
				Description: "Read one preference. Returns the fallback when the key is not stored.",
				InputSchema: obj(map[string]any{
					"key":      map[string]any{"type": "string", "description": "Setting key, e.g. theme"},
					"fallback": map[string]any{"description": "Value returned when the key is absent"},
				}, "key"),
			},
			channel:  ChannelSettingsGet,
			argOrder: []string{"key", "fallback"},
		},
		{
			tool: mcp.Tool{
				Name:        "settings_set",
				Description: "Store one preference. Any JSON value is accepted.",
				InputSchema: obj(map[string]any{
					"key":   map[string]any{"type": "string", "description": "Setting key"},
					"value": map[string]any{"description": "New value"},
				}, "key", "value"),
			},
			channel:  ChannelSettingsSet,
			argOrder: []string{"key", "value"},
		},
		{
			tool: mcp.Tool{
				Name:        "settings_get_all",
				Description: "Read every stored preference as one object.",
				InputSchema: obj(nil),
			},
			channel: ChannelSettingsAll,
		},
		{
			tool: mcp.Tool{
				Name:        "settings_save_all",
				Description: "Store several preferences atomically.",
				InputSchema: obj(map[string]any{
					"settings": map[string]any{"type": "object", "description": "Key/value pairs to store"},
				}, "settings"),
			},
			channel:  ChannelSettingsSave,
			argOrder: []string{"settings"},
		},
	}
}

// NewMCPServer registers one tool per channel on a fresh MCP server.
func (b *Bridge) NewMCPServer() *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer("StoryMagic", version.String())
	for _, spec := range toolSpecs() {
		srv.AddTool(spec.tool, b.toolHandler(spec))
	}
	return srv
}

// ServeMCP runs the MCP server on stdio until the peer disconnects.
func (b *Bridge) ServeMCP() error {
	return mcpserver.ServeStdio(b.NewMCPServer())
}

func (b *Bridge) toolHandler(spec toolSpec) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := requestFromArguments(spec, request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result, err := b.Handle(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

// requestFromArguments turns named tool arguments into a positional
// channel request. Trailing absent arguments are dropped.
func requestFromArguments(spec toolSpec, raw any) (Request, error) {
	req := Request{Channel: spec.channel}
	args, _ := raw.(map[string]any)
	last := -1
	for i, name := range spec.argOrder {
		if _, ok := args[name]; ok {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		v, ok := args[spec.argOrder[i]]
		if !ok {
			v = nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return Request{}, fmt.Errorf("argument %s: %w", spec.argOrder[i], err)
		}
		req.Args = append(req.Args, b)
	}
	return req, nil
}
