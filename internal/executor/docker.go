package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// dockerParams is the node payload understood by the container adapter.
type dockerParams struct {
	Image   string            `json:"image"`
	Command []string          `json:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// DockerAdapter runs node work in a container.
type DockerAdapter struct {
	client *client.Client
}

// NewDockerAdapter creates a container-based executor. The client is
// initialized from the standard environment (DOCKER_HOST, etc).
func NewDockerAdapter() (*DockerAdapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerAdapter{client: cli}, nil
}

// Execute pulls the image if needed, runs the container to completion, and
// returns its output. Context cancellation stops the container.
func (d *DockerAdapter) Execute(ctx context.Context, task Task) (Result, error) {
	var params dockerParams
	if err := json.Unmarshal(task.Params, &params); err != nil {
		return Result{}, &Error{Reason: fmt.Sprintf("invalid docker params: %v", err), Transient: false}
	}
	if params.Image == "" {
		return Result{}, &Error{Reason: "docker params missing image", Transient: false}
	}

	if _, _, err := d.client.ImageInspectWithRaw(ctx, params.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, params.Image, image.PullOptions{})
		if err != nil {
			return Result{}, &Error{Reason: fmt.Sprintf("pull image %s: %v", params.Image, err), Transient: true}
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	env := make([]string, 0, len(params.Env)+2)
	for k, v := range params.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	env = append(env,
		fmt.Sprintf("FLOWPLANE_WORKFLOW_ID=%s", task.WorkflowID),
		fmt.Sprintf("FLOWPLANE_NODE_ID=%s", task.NodeID),
	)

	created, err := d.client.ContainerCreate(ctx, &container.Config{
		Image: params.Image,
		Cmd:   params.Command,
		Env:   env,
	}, nil, nil, nil, "")
	if err != nil {
		return Result{}, &Error{Reason: fmt.Sprintf("create container: %v", err), Transient: true}
	}
	defer d.remove(created.ID)

	if err := d.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return Result{}, &Error{Reason: fmt.Sprintf("start container: %v", err), Transient: true}
	}

	statusCh, errCh := d.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return Result{}, &Error{Reason: fmt.Sprintf("wait container: %v", err), Transient: true}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			return Result{}, &Error{Reason: fmt.Sprintf("container exit code %d", status.StatusCode), Transient: true}
		}
	case <-ctx.Done():
		stopTimeout := 5
		stopCtx := context.Background()
		d.client.ContainerStop(stopCtx, created.ID, container.StopOptions{Timeout: &stopTimeout})
		return Result{}, ctx.Err()
	}

	logs, err := d.client.ContainerLogs(ctx, created.ID, container.LogsOptions{ShowStdout: true})
	if err != nil {
		return Result{Output: json.RawMessage(`{}`)}, nil
	}
	defer logs.Close()
	raw, _ := io.ReadAll(io.LimitReader(logs, 1<<20))

	out, err := json.Marshal(map[string]string{"stdout": string(raw)})
	if err != nil {
		return Result{}, fmt.Errorf("marshal output: %w", err)
	}
	return Result{Output: out}, nil
}

func (d *DockerAdapter) remove(containerID string) {
	ctx := context.Background()
	d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}
