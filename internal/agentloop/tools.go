package agentloop

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hox/hox/internal/errkind"
)

// Toolset executes the four tools of spec §4.5 step 6 against a
// single workspace directory, enforcing protected paths.
type Toolset struct {
	workspaceRoot  string
	protected      *ProtectedPaths
	commandTimeout time.Duration
}

// NewToolset returns a Toolset rooted at workspaceRoot.
func NewToolset(workspaceRoot string, protected *ProtectedPaths, commandTimeout time.Duration) *Toolset {
	return &Toolset{workspaceRoot: workspaceRoot, protected: protected, commandTimeout: commandTimeout}
}

// Definitions returns the tool schema advertised to the model.
func Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read the contents of a file in the workspace.",
			InputSchema: map[string]interface{}{"properties": map[string]interface{}{"path": map[string]interface{}{}}},
		},
		{
			Name:        "write_file",
			Description: "Write contents to a file in the workspace, creating or overwriting it.",
			InputSchema: map[string]interface{}{"properties": map[string]interface{}{"path": nil, "contents": nil}},
		},
		{
			Name:        "edit_file",
			Description: "Replace exactly one occurrence of find with replace in a file.",
			InputSchema: map[string]interface{}{"properties": map[string]interface{}{"path": nil, "find": nil, "replace": nil}},
		},
		{
			Name:        "run_command",
			Description: "Run a subprocess in the workspace and capture stdout, stderr, and exit code.",
			InputSchema: map[string]interface{}{"properties": map[string]interface{}{"cmd": nil, "args": nil}},
		},
	}
}

// Execute dispatches one tool call by name.
func (t *Toolset) Execute(ctx context.Context, call ToolCall) ToolResult {
	var out string
	var err error
	switch call.Name {
	case "read_file":
		out, err = t.readFile(str(call.Input["path"]))
	case "write_file":
		err = t.writeFile(str(call.Input["path"]), str(call.Input["contents"]))
	case "edit_file":
		err = t.editFile(str(call.Input["path"]), str(call.Input["find"]), str(call.Input["replace"]))
	case "run_command":
		out, err = t.runCommand(ctx, str(call.Input["cmd"]), strSlice(call.Input["args"]))
	default:
		err = fmt.Errorf("agentloop: unknown tool %q", call.Name)
	}
	return ToolResult{ToolCallID: call.ID, Output: out, Err: err}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func strSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, str(r))
	}
	return out
}

func (t *Toolset) resolve(path string) (string, error) {
	if t.protected.IsProtected(path) {
		return "", errkind.New(errkind.ProtectedFile, "agentloop.tool", fmt.Errorf("path %q is protected", path))
	}
	return filepath.Join(t.workspaceRoot, path), nil
}

func (t *Toolset) readFile(path string) (string, error) {
	full, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (t *Toolset) writeFile(path, contents string) error {
	full, err := t.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(contents), 0o644)
}

func (t *Toolset) editFile(path, find, replace string) error {
	full, err := t.resolve(path)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return err
	}
	content := string(b)
	count := strings.Count(content, find)
	if count != 1 {
		return fmt.Errorf("agentloop: edit_file requires exactly one match of find, got %d", count)
	}
	return os.WriteFile(full, []byte(strings.Replace(content, find, replace, 1)), 0o644)
}

func (t *Toolset) runCommand(ctx context.Context, cmdName string, args []string) (string, error) {
	if cmdName == "" {
		return "", fmt.Errorf("agentloop: run_command requires a command")
	}
	timeout := t.commandTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cmdName, args...)
	cmd.Dir = t.workspaceRoot

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}
