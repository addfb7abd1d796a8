// Package backendsandbox hosts the Claude adapter's out-of-band relay
// session as a Docker container exec session (spec §4.6/§4.7). It
// implements internal/adapter.RelayHost/RelaySession so the adapter stays
// free of any container-runtime dependency.
//
// Grounded on the teacher's internal/container.DockerManager (container
// lifecycle and exec-attach plumbing) and internal/container.StartTTLWorker
// (the reap-ticker idiom), adapted from one container per logged-in user to
// one container per gateway session.
package backendsandbox

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/ronaldeddings/unified-agent/internal/adapter"
)

// Config controls the Docker-backed relay host (spec §4.6, GATEWAY_SANDBOX_*).
type Config struct {
	Image         string
	MemoryLimit   int64
	CPUQuota      int64
	PidsLimit     int64
	TTL           time.Duration
	ReapInterval  time.Duration
	CreateTimeout time.Duration
}

const (
	containerUser = "1000"
	workingDir    = "/home/relay/work"
	relayCommand  = "/usr/local/bin/unified-agent-relay"
)

// Host manages one backing container per gateway session, execs the relay
// binary inside it, and reaps containers idle past Config.TTL.
type Host struct {
	cli    *client.Client
	cfg    Config
	create createRetryDialer

	mu         sync.Mutex
	lastUsedAt map[string]time.Time // gatewaySessionID -> last activity
	containers map[string]string    // gatewaySessionID -> container id
}

type createRetryDialer struct {
	attempts int
	delay    time.Duration
}

// NewHost creates a Host using the ambient Docker client configuration
// (DOCKER_HOST and friends), mirroring container.NewDockerManager.
func NewHost(cfg Config) (*Host, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("backendsandbox: create docker client: %w", err)
	}
	return &Host{
		cli:        cli,
		cfg:        cfg,
		create:     createRetryDialer{attempts: 20, delay: 250 * time.Millisecond},
		lastUsedAt: make(map[string]time.Time),
		containers: make(map[string]string),
	}, nil
}

// StartSession starts (or reuses) the container for gatewaySessionID and
// execs the relay binary inside it, returning a framed RelaySession over
// its attached stdio.
func (h *Host) StartSession(ctx context.Context, gatewaySessionID string) (adapter.RelaySession, error) {
	containerID, err := h.ensureContainer(ctx, gatewaySessionID)
	if err != nil {
		return nil, err
	}

	execConfig := container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{relayCommand},
		User:         containerUser,
	}

	resp, err := h.cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("backendsandbox: create exec session: %w", err)
	}

	attachResp, err := h.cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("backendsandbox: attach exec session: %w", err)
	}

	h.touch(gatewaySessionID)

	return &session{
		conn:   attachResp.Conn,
		reader: bufio.NewReader(attachResp.Reader),
	}, nil
}

func (h *Host) ensureContainer(ctx context.Context, gatewaySessionID string) (string, error) {
	h.mu.Lock()
	if id, ok := h.containers[gatewaySessionID]; ok {
		h.mu.Unlock()
		running, err := h.isRunning(ctx, id)
		if err == nil && running {
			return id, nil
		}
	} else {
		h.mu.Unlock()
	}

	name := "agent-sandbox-" + gatewaySessionID
	config := &container.Config{
		Image:      h.cfg.Image,
		User:       containerUser,
		WorkingDir: workingDir,
		Tty:        false,
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:    h.cfg.MemoryLimit,
			CPUQuota:  h.cfg.CPUQuota,
			PidsLimit: &h.cfg.PidsLimit,
		},
	}

	createCtx, cancel := context.WithTimeout(ctx, h.cfg.CreateTimeout)
	defer cancel()

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < h.create.attempts; i++ {
		resp, createErr = h.cli.ContainerCreate(createCtx, config, hostConfig, nil, nil, name)
		if createErr == nil {
			break
		}
		if !strings.Contains(strings.ToLower(createErr.Error()), "is already in use") {
			return "", fmt.Errorf("backendsandbox: create container: %w", createErr)
		}
		if inspect, inspectErr := h.cli.ContainerInspect(createCtx, name); inspectErr == nil {
			_ = h.stopContainer(createCtx, inspect.ID)
		}
		select {
		case <-createCtx.Done():
			return "", createCtx.Err()
		case <-time.After(h.create.delay):
		}
	}
	if createErr != nil {
		return "", fmt.Errorf("backendsandbox: create container after retries: %w", createErr)
	}

	if err := h.cli.ContainerStart(createCtx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("backendsandbox: start container %s: %w", resp.ID, err)
	}

	h.mu.Lock()
	h.containers[gatewaySessionID] = resp.ID
	h.mu.Unlock()

	slog.Info("backend sandbox container started", "container_id", resp.ID, "session_id", gatewaySessionID)
	return resp.ID, nil
}

func (h *Host) isRunning(ctx context.Context, containerID string) (bool, error) {
	inspect, err := h.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return inspect.State.Running, nil
}

func (h *Host) stopContainer(ctx context.Context, containerID string) error {
	timeout := 10
	if err := h.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		slog.Debug("backend sandbox stop returned error, continuing to remove", "container_id", containerID, "error", err)
	}
	if err := h.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("backendsandbox: remove container %s: %w", containerID, err)
	}
	return nil
}

func (h *Host) touch(gatewaySessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastUsedAt[gatewaySessionID] = time.Now()
}

// RunReaper periodically stops and forgets containers idle past Config.TTL,
// mirroring the teacher's StartTTLWorker ticker loop.
func (h *Host) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reapOnce(ctx)
		}
	}
}

func (h *Host) reapOnce(ctx context.Context) {
	h.mu.Lock()
	expired := make([]string, 0)
	for sid, last := range h.lastUsedAt {
		if time.Since(last) >= h.cfg.TTL {
			expired = append(expired, sid)
		}
	}
	h.mu.Unlock()

	for _, sid := range expired {
		h.mu.Lock()
		containerID, ok := h.containers[sid]
		delete(h.containers, sid)
		delete(h.lastUsedAt, sid)
		h.mu.Unlock()
		if !ok {
			continue
		}
		slog.Info("backend sandbox reaping idle container", "container_id", containerID, "session_id", sid)
		if err := h.stopContainer(ctx, containerID); err != nil {
			slog.Warn("backend sandbox reap failed", "error", err, "container_id", containerID)
		}
	}
}

// session adapts a Docker exec attach connection to adapter.RelaySession,
// framing each relay message as one line of newline-delimited JSON.
type session struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
}

func (s *session) Write(ctx context.Context, frame []byte) error {
	_, err := s.conn.Write(append(frame, '\n'))
	return err
}

func (s *session) Read(ctx context.Context) ([]byte, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if len(line) > 0 {
			return bytes.TrimRight(line, "\r\n"), nil
		}
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func (s *session) Close(ctx context.Context) error {
	return s.conn.Close()
}

var _ adapter.RelayHost = (*Host)(nil)
var _ adapter.RelaySession = (*session)(nil)
