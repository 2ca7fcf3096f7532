package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/Relicjamin-jv/wolf/internal/core/ports"
	"github.com/Relicjamin-jv/wolf/pkg/circuitbreaker"

	"go.uber.org/zap"
)

const dockerAPIVersion = "v1.40"

// DockerClient talks to the Docker Engine API over its unix socket. A
// circuit breaker around the socket keeps a dead engine from stalling
// every session start on connect timeouts.
type DockerClient struct {
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *zap.SugaredLogger
}

func NewDockerClient(socketPath string, logger *zap.SugaredLogger) *DockerClient {
	if socketPath == "" {
		socketPath = "/var/run/docker.sock"
	}
	return &DockerClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

type containerCreateBody struct {
	Image      string                 `json:"Image"`
	Env        []string               `json:"Env,omitempty"`
	HostConfig map[string]interface{} `json:"HostConfig,omitempty"`
}

func (d *DockerClient) Create(ctx context.Context, spec ports.ContainerSpec) (string, error) {
	hostConfig := map[string]interface{}{}
	if len(spec.Mounts) > 0 {
		hostConfig["Binds"] = spec.Mounts
	}
	if len(spec.Devices) > 0 {
		devices := make([]map[string]string, 0, len(spec.Devices))
		for _, dev := range spec.Devices {
			devices = append(devices, map[string]string{
				"PathOnHost":        dev,
				"PathInContainer":   dev,
				"CgroupPermissions": "rwm",
			})
		}
		hostConfig["Devices"] = devices
	}
	if len(spec.Ports) > 0 {
		bindings := map[string][]map[string]string{}
		for _, port := range spec.Ports {
			// "host:container/proto", proto defaults to tcp
			parts := strings.SplitN(port, ":", 2)
			if len(parts) != 2 {
				continue
			}
			containerPort := parts[1]
			if !strings.Contains(containerPort, "/") {
				containerPort += "/tcp"
			}
			bindings[containerPort] = append(bindings[containerPort], map[string]string{"HostPort": parts[0]})
		}
		hostConfig["PortBindings"] = bindings
	}

	body, err := json.Marshal(containerCreateBody{
		Image:      spec.Image,
		Env:        spec.Env,
		HostConfig: hostConfig,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode container spec: %w", err)
	}

	path := "/containers/create"
	if spec.Name != "" {
		path += "?name=" + url.QueryEscape(spec.Name)
	}

	resp, err := d.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", d.apiError("create container", resp)
	}

	var created struct {
		ID string `json:"Id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}

	d.logger.Debugw("container created", "container_id", created.ID, "image", spec.Image)
	return created.ID, nil
}

func (d *DockerClient) Start(ctx context.Context, containerID string) error {
	return d.simplePost(ctx, containerID, "start", http.StatusNoContent, http.StatusNotModified)
}

func (d *DockerClient) Stop(ctx context.Context, containerID string) error {
	return d.simplePost(ctx, containerID, "stop", http.StatusNoContent, http.StatusNotModified)
}

func (d *DockerClient) Remove(ctx context.Context, containerID string) error {
	resp, err := d.do(ctx, http.MethodDelete, "/containers/"+containerID+"?force=true", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return d.apiError("remove container", resp)
	}
	return nil
}

// Wait blocks until the container exits. A non-zero exit code is not an
// error; the runner only cares that the app is gone. Wait bypasses the
// circuit breaker: it blocks for the container lifetime and says nothing
// about engine health.
func (d *DockerClient) Wait(ctx context.Context, containerID string) error {
	resp, err := d.doRaw(ctx, http.MethodPost, "/containers/"+containerID+"/wait", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return d.apiError("wait for container", resp)
	}

	var result struct {
		StatusCode int `json:"StatusCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode wait response: %w", err)
	}
	d.logger.Debugw("container exited",
		"container_id", containerID,
		"exit_code", result.StatusCode,
	)
	return nil
}

func (d *DockerClient) simplePost(ctx context.Context, containerID, action string, okStatuses ...int) error {
	resp, err := d.do(ctx, http.MethodPost, "/containers/"+containerID+"/"+action, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, status := range okStatuses {
		if resp.StatusCode == status {
			return nil
		}
	}
	return d.apiError(action+" container", resp)
}

// do routes the request through the circuit breaker. Only transport
// errors count as engine failures; an HTTP error status still proves
// the engine is answering.
func (d *DockerClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	var resp *http.Response
	err := d.breaker.Do(func() error {
		var reqErr error
		resp, reqErr = d.doRaw(ctx, method, path, body)
		return reqErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, fmt.Errorf("docker engine unavailable: %w", err)
		}
		return nil, err
	}
	return resp, nil
}

func (d *DockerClient) doRaw(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, "http://docker/"+dockerAPIVersion+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docker api request failed: %w", err)
	}
	return resp, nil
}

func (d *DockerClient) apiError(action string, resp *http.Response) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("failed to %s: %s (status %d)", action, apiErr.Message, resp.StatusCode)
	}
	return fmt.Errorf("failed to %s: status %d", action, resp.StatusCode)
}
