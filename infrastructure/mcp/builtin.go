package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/tool"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// maxFileBytes caps what file_read returns.
const maxFileBytes = 64 << 10

// ErrOutsideRoot indicates file_read was asked for a path outside its root.
var ErrOutsideRoot = errors.New("path outside allowed root")

// BuiltinTools returns the built-in command tools. file_read only serves
// files below root; an empty root disables it.
func BuiltinTools(root string, now func() time.Time) []tool.Tool {
	if now == nil {
		now = time.Now
	}
	tools := []tool.Tool{
		addTool(),
		currentTimeTool(now),
		echoTool(),
	}
	if root != "" {
		tools = append(tools, fileReadTool(root))
	}
	return tools
}

func addTool() tool.Tool {
	return tool.NewBuilder(tooling.CommandAdd).
		WithDescription("Add two numbers").
		WithInputSchema(tool.ObjectSchema(map[string]json.RawMessage{
			"a": json.RawMessage(`{"type":"number"}`),
			"b": json.RawMessage(`{"type":"number"}`),
		}, []string{"a", "b"})).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				A float64 `json:"a"`
				B float64 `json:"b"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
			}
			out, _ := json.Marshal(map[string]float64{"sum": in.A + in.B})
			return tool.NewResult(out), nil
		}).
		MustBuild()
}

func currentTimeTool(now func() time.Time) tool.Tool {
	return tool.NewBuilder(tooling.CommandCurrentTime).
		WithDescription("Current local time in RFC 3339").
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			return tool.TextResult(now().Format(time.RFC3339)), nil
		}).
		MustBuild()
}

func echoTool() tool.Tool {
	return tool.NewBuilder(tooling.CommandEcho).
		WithDescription("Echo the message back").
		WithInputSchema(tool.ObjectSchema(map[string]json.RawMessage{
			"message": json.RawMessage(`{"type":"string"}`),
		}, []string{"message"})).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
			}
			return tool.TextResult("Echo: " + in.Message), nil
		}).
		MustBuild()
}

func fileReadTool(root string) tool.Tool {
	return tool.NewBuilder(tooling.CommandFileRead).
		WithDescription("Read a text file below the configured root").
		WithInputSchema(tool.ObjectSchema(map[string]json.RawMessage{
			"file_path": json.RawMessage(`{"type":"string"}`),
		}, []string{"file_path"})).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				FilePath string `json:"file_path"`
			}
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
			}
			path, err := resolveUnder(root, in.FilePath)
			if err != nil {
				return tool.Result{}, err
			}
			f, err := os.Open(path) // #nosec G304 -- confined to root by resolveUnder
			if err != nil {
				return tool.Result{}, err
			}
			defer f.Close()
			data, err := io.ReadAll(io.LimitReader(f, maxFileBytes))
			if err != nil {
				return tool.Result{}, err
			}
			return tool.TextResult(string(data)), nil
		}).
		MustBuild()
}

// resolveUnder maps p onto root. Relative paths are taken from root;
// absolute paths must already lie below it. Symlinks are resolved first.
func resolveUnder(root, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: file_path is empty", tool.ErrInvalidInput)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}
	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return target, nil
}
