// Package sandbox executes generated Python in isolated Docker containers.
// Each run gets a fresh workspace with the staged dataset, no network, and
// hard resource limits; stdout is the only channel back to the orchestrator.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	errx "github.com/reyharighy/cba-agentic-ai/internal/core/error"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
)

const (
	sourceFile  = "main.py"
	datasetFile = "dataset.csv"
)

// DockerRunner implements model.SandboxRunner over the Docker API.
type DockerRunner struct {
	client       *client.Client
	config       model.SandboxConfig
	artifactsDir string
}

// NewDockerRunner connects to the Docker daemon and verifies it is usable.
// Files the sandbox produces besides its inputs (saved plots) are collected
// into artifactsDir after each run.
func NewDockerRunner(config model.SandboxConfig, artifactsDir string) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Docker daemon not accessible: %w", err)
	}

	return &DockerRunner{client: cli, config: config, artifactsDir: artifactsDir}, nil
}

// Run executes the request in a fresh container. Provisioning failures come
// back as the error; faults in the executed code are reported inside
// Execution.Error so the graph can self-correct.
func (r *DockerRunner) Run(ctx context.Context, req model.SandboxRequest) (*model.Execution, error) {
	workDir, err := os.MkdirTemp("", "sandbox-run-")
	if err != nil {
		return nil, errx.WrapSandbox(fmt.Errorf("create run workspace: %w", err))
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, sourceFile), []byte(req.Code), 0o644); err != nil {
		return nil, errx.WrapSandbox(fmt.Errorf("stage source: %w", err))
	}
	if req.DatasetPath != "" {
		if err := copyFile(req.DatasetPath, filepath.Join(workDir, datasetFile)); err != nil {
			return nil, errx.WrapSandbox(fmt.Errorf("stage dataset: %w", err))
		}
	}

	if err := r.ensureImage(ctx, r.config.Image); err != nil {
		return nil, errx.WrapSandbox(err)
	}

	memory, err := units.RAMInBytes(r.config.Memory)
	if err != nil {
		return nil, errx.WrapSandbox(fmt.Errorf("invalid sandbox memory limit %q: %w", r.config.Memory, err))
	}

	containerConfig := &container.Config{
		Image:           r.config.Image,
		Cmd:             []string{"python", sourceFile},
		WorkingDir:      "/workspace",
		Env:             []string{"HOME=/tmp", "MPLCONFIGDIR=/tmp"},
		NetworkDisabled: true,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: workDir,
				Target: "/workspace",
			},
		},
		Resources: container.Resources{
			Memory:   memory,
			NanoCPUs: parseCPU(r.config.CPU),
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 1024},
			},
		},
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=100m",
		},
	}

	name := "cba-sandbox-" + uuid.NewString()
	createResp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, errx.WrapSandbox(fmt.Errorf("create container: %w", err))
	}
	containerID := createResp.ID

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(r.config.TimeoutSec)*time.Second)
	defer cancel()

	if err := r.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return nil, errx.WrapSandbox(fmt.Errorf("start container: %w", err))
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = r.client.ContainerKill(killCtx, containerID, "SIGKILL")
		return &model.Execution{
			Error: &model.ExecutionError{
				Message:   "execution timed out",
				Traceback: fmt.Sprintf("sandbox run exceeded the %ds limit", r.config.TimeoutSec),
			},
		}, nil
	case err := <-errCh:
		if err != nil {
			return nil, errx.WrapSandbox(fmt.Errorf("container wait: %w", err))
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "all",
	})
	if err != nil {
		return nil, errx.WrapSandbox(fmt.Errorf("read container logs: %w", err))
	}
	defer logs.Close()

	stdout, stderr := parseDockerLogs(logs)

	execution := &model.Execution{Stdout: stdout}
	if exitCode != 0 {
		execution.Error = &model.ExecutionError{
			Message:   fmt.Sprintf("python exited with code %d", exitCode),
			Traceback: stderr,
		}
		logx.Debug().Int64("exit_code", exitCode).Msg("Sandbox run failed")
		return execution, nil
	}

	if err := r.collectArtifacts(workDir); err != nil {
		return nil, errx.WrapSandbox(err)
	}
	return execution, nil
}

// collectArtifacts moves files the run produced besides its inputs into the
// artifacts directory, where the response stage can reference them.
func (r *DockerRunner) collectArtifacts(workDir string) error {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return fmt.Errorf("scan run workspace: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == sourceFile || entry.Name() == datasetFile {
			continue
		}
		if err := os.MkdirAll(r.artifactsDir, 0o755); err != nil {
			return fmt.Errorf("create artifacts dir: %w", err)
		}
		src := filepath.Join(workDir, entry.Name())
		dst := filepath.Join(r.artifactsDir, entry.Name())
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("collect artifact %s: %w", entry.Name(), err)
		}
		logx.Debug().Str("artifact", dst).Msg("Sandbox artifact collected")
	}
	return nil
}

// ensureImage checks if the image exists locally, and pulls it if not.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	// drain the pull output, required for pull to complete
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// parseDockerLogs separates the multiplexed container log stream.
// Docker logs use a header format: [STREAM_TYPE (1)][RESERVED (3)][SIZE (4)].
func parseDockerLogs(reader io.Reader) (stdout []string, stderr string) {
	var stderrParts []string

	for {
		header := make([]byte, 8)
		if _, err := io.ReadFull(reader, header); err != nil {
			break
		}

		streamType := header[0]
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size <= 0 {
			continue
		}
		if size > 10*1024*1024 {
			// skip the frame but keep the stream aligned on the next header
			if _, err := io.CopyN(io.Discard, reader, int64(size)); err != nil {
				break
			}
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(reader, payload); err != nil {
			break
		}

		content := strings.TrimSuffix(string(payload), "\n")
		switch streamType {
		case 1:
			stdout = append(stdout, content)
		case 2:
			stderrParts = append(stderrParts, content)
		}
	}

	return stdout, strings.Join(stderrParts, "\n")
}

// parseCPU parses a CPU count string (e.g. "2", "1.5") to NanoCPUs.
func parseCPU(cpuStr string) int64 {
	cpuStr = strings.TrimSpace(cpuStr)

	value := 2.0
	if cpuStr != "" {
		var parsed float64
		if _, err := fmt.Sscanf(cpuStr, "%f", &parsed); err == nil && parsed > 0 {
			value = parsed
		}
	}
	return int64(value * 1e9)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

var _ model.SandboxRunner = (*DockerRunner)(nil)
