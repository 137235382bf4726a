// Package runner grades coding challenge solutions by executing them in throwaway containers.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/terra-clan/interview-engine/internal/interview"
)

// Scores assigned by the runner
const (
	ScoreMatch    = 5
	ScoreMismatch = 2
	ScoreFailed   = 1
)

// maxOutputBytes bounds how much container output is kept for comparison and feedback
const maxOutputBytes = 64 * 1024

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrNotChallenge        = errors.New("runner only grades coding challenges")
)

// dockerAPI is the subset of the Docker client the runner uses
type dockerAPI interface {
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Config holds runner settings
type Config struct {
	Host            string
	PullPolicy      string // always, if-not-present, never
	Timeout         time.Duration
	MemoryMB        int64
	DefaultLanguage string
}

// DockerRunner is an interview.Evaluator for coding challenges. It runs the solution
// with the challenge's sample input on stdin and compares stdout with the sample output.
type DockerRunner struct {
	docker    dockerAPI
	config    Config
	languages map[string]Language
}

// NewDockerRunner connects to the Docker daemon
func NewDockerRunner(cfg Config) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(cfg.Host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerRunner(cli, cfg), nil
}

func newDockerRunner(docker dockerAPI, cfg Config) *DockerRunner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = 128
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "python"
	}
	if cfg.PullPolicy == "" {
		cfg.PullPolicy = "if-not-present"
	}
	return &DockerRunner{
		docker:    docker,
		config:    cfg,
		languages: DefaultLanguages(),
	}
}

// Ping checks Docker connectivity
func (r *DockerRunner) Ping(ctx context.Context) error {
	if _, err := r.docker.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// Close closes the Docker client
func (r *DockerRunner) Close() error {
	return r.docker.Close()
}

// Evaluate executes a coding challenge solution
func (r *DockerRunner) Evaluate(ctx context.Context, item interview.Item, submitted string) (interview.Evaluation, error) {
	if item.Kind != interview.KindChallenge {
		return interview.Evaluation{}, ErrNotChallenge
	}

	langName := strings.ToLower(strings.TrimSpace(item.Language))
	if langName == "" {
		langName = r.config.DefaultLanguage
	}
	lang, ok := r.languages[langName]
	if !ok {
		return interview.Evaluation{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, langName)
	}

	if err := r.pullImage(ctx, lang.Image); err != nil {
		return interview.Evaluation{}, fmt.Errorf("failed to pull image %s: %w", lang.Image, err)
	}

	expected := ""
	if item.Reference != nil {
		expected = *item.Reference
	}

	res, err := r.run(ctx, lang, submitted, item.Input)
	if err != nil {
		return interview.Evaluation{}, err
	}

	slog.Debug("solution executed",
		"language", langName,
		"exit_code", res.exitCode,
		"timed_out", res.timedOut,
		"duration", res.duration,
	)

	return grade(res, expected), nil
}

type runResult struct {
	stdout   string
	stderr   string
	exitCode int64
	timedOut bool
	duration time.Duration
}

// run executes one solution in a fresh container and always removes it
func (r *DockerRunner) run(ctx context.Context, lang Language, source, input string) (*runResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	containerName := fmt.Sprintf("interview-run-%s", uuid.New().String()[:12])
	pids := int64(64)

	containerConfig := &container.Config{
		Image:           lang.Image,
		Cmd:             []string{"sh", "-c", lang.Script},
		Env:             append([]string{"SOLUTION=" + source, "SAMPLE_INPUT=" + input}, lang.Env...),
		WorkingDir:      "/tmp",
		NetworkDisabled: true,
		Labels: map[string]string{
			"interview.runner":  "true",
			"interview.managed": "true",
		},
	}

	hostConfig := &container.HostConfig{
		NetworkMode:    container.NetworkMode("none"),
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,exec,size=64m"},
		Resources: container.Resources{
			Memory:    r.config.MemoryMB * 1024 * 1024,
			PidsLimit: &pids,
			NanoCPUs:  1_000_000_000,
		},
		AutoRemove: false,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyDisabled,
		},
	}

	resp, err := r.docker.ContainerCreate(runCtx, containerConfig, hostConfig, &network.NetworkingConfig{}, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.docker.ContainerRemove(removeCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			slog.Warn("failed to remove runner container", "container", resp.ID, "error", err)
		}
	}()

	started := time.Now()
	if err := r.docker.ContainerStart(runCtx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	res := &runResult{}
	statusCh, errCh := r.docker.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		res.exitCode = status.StatusCode
	case err := <-errCh:
		if runCtx.Err() == nil {
			return nil, fmt.Errorf("failed to wait for container: %w", err)
		}
		res.timedOut = true
	case <-runCtx.Done():
		res.timedOut = true
	}
	res.duration = time.Since(started)

	// The caller gave up, as opposed to the solution running too long
	if res.timedOut && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if res.timedOut {
		return res, nil
	}

	logsCtx, cancelLogs := context.WithTimeout(ctx, 5*time.Second)
	defer cancelLogs()

	logs, err := r.docker.ContainerLogs(logsCtx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, io.LimitReader(logs, 2*maxOutputBytes)); err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	res.stdout = truncate(stdout.String(), maxOutputBytes)
	res.stderr = truncate(stderr.String(), maxOutputBytes)

	return res, nil
}

// pullImage pulls an image according to the pull policy
func (r *DockerRunner) pullImage(ctx context.Context, imageName string) error {
	if r.config.PullPolicy == "never" {
		return nil
	}

	// Check if image exists
	_, _, err := r.docker.ImageInspectWithRaw(ctx, imageName)
	if err == nil && r.config.PullPolicy == "if-not-present" {
		return nil
	}

	slog.Info("pulling image", "image", imageName)
	out, err := r.docker.ImagePull(ctx, imageName, types.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer out.Close()

	// Consume output
	_, _ = io.Copy(io.Discard, out)
	return nil
}

// grade maps an execution result onto a score and feedback
func grade(res *runResult, expected string) interview.Evaluation {
	switch {
	case res.timedOut:
		return interview.Evaluation{
			Score:    ScoreFailed,
			Feedback: "Your solution did not finish within the time limit.",
		}
	case res.exitCode != 0:
		feedback := fmt.Sprintf("Your solution exited with code %d.", res.exitCode)
		if tail := lastLine(res.stderr); tail != "" {
			feedback += " Error: " + tail
		}
		return interview.Evaluation{Score: ScoreFailed, Feedback: feedback}
	case normalizeOutput(res.stdout) == normalizeOutput(expected):
		return interview.Evaluation{
			Score:    ScoreMatch,
			Feedback: "Your solution works correctly for the given test cases.",
		}
	default:
		return interview.Evaluation{
			Score: ScoreMismatch,
			Feedback: fmt.Sprintf("Your solution ran but produced %q instead of %q.",
				truncate(normalizeOutput(res.stdout), 200), normalizeOutput(expected)),
		}
	}
}

// normalizeOutput trims surrounding whitespace and trailing spaces on each line
func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return truncate(s, 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
