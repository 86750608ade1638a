package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// execParams is the node payload understood by the process adapter.
type execParams struct {
	Command []string          `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
	WorkDir string            `json:"workdir,omitempty"`
}

// ExecAdapter runs node work as a local OS process. Development and test
// adapter; production deployments point at a container or remote runtime.
type ExecAdapter struct {
	// WorkDir is the default working directory when the task names none.
	WorkDir string
}

// NewExecAdapter creates a process-based executor.
func NewExecAdapter(workDir string) *ExecAdapter {
	return &ExecAdapter{WorkDir: workDir}
}

// Execute runs the task command and captures stdout as the node output.
// Context cancellation kills the process.
func (e *ExecAdapter) Execute(ctx context.Context, task Task) (Result, error) {
	var params execParams
	if err := json.Unmarshal(task.Params, &params); err != nil {
		return Result{}, &Error{Reason: fmt.Sprintf("invalid exec params: %v", err), Transient: false}
	}
	if len(params.Command) == 0 {
		return Result{}, &Error{Reason: "exec params missing command", Transient: false}
	}

	cmd := exec.CommandContext(ctx, params.Command[0], params.Command[1:]...)
	cmd.Dir = params.WorkDir
	if cmd.Dir == "" {
		cmd.Dir = e.WorkDir
	}
	for k, v := range params.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &Error{
			Reason:    fmt.Sprintf("process failed: %v: %s", err, truncate(stderr.String(), 512)),
			Transient: true,
		}
	}

	out, err := json.Marshal(map[string]string{"stdout": stdout.String()})
	if err != nil {
		return Result{}, fmt.Errorf("marshal output: %w", err)
	}
	return Result{Output: out}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
