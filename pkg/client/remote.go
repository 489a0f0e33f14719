package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/sirupsen/logrus"
)

// DefaultRequestTimeout bounds every query and mutation.
const DefaultRequestTimeout = 10 * time.Second

// RemoteClient implements Client by calling the daemon's HTTP API, over a
// Unix socket or a TCP address. Subscriptions are websockets.
type RemoteClient struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
	wsURL      string
	endpoint   string
	logger     *logrus.Entry
}

// RemoteOption configures a RemoteClient.
type RemoteOption func(*RemoteClient)

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) RemoteOption {
	return func(c *RemoteClient) {
		if d > 0 {
			c.httpClient.Timeout = d
			c.dialer.HandshakeTimeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *logrus.Entry) RemoteOption {
	return func(c *RemoteClient) { c.logger = l }
}

// unixHost is the dummy host used for Unix socket requests.
// The actual connection goes through the socket, not this URL.
const unixHost = "unix"

// NewRemoteClient creates a RemoteClient connected to the daemon socket.
func NewRemoteClient(socketPath string, opts ...RemoteOption) *RemoteClient {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}
	transport := &http.Transport{
		DialContext:     dial,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	dialer := &websocket.Dialer{NetDialContext: dial, HandshakeTimeout: DefaultRequestTimeout}
	return newRemote(socketPath, unixHost, transport, dialer, opts)
}

// NewRemoteTCPClient creates a RemoteClient for a daemon listening on addr.
func NewRemoteTCPClient(addr string, opts ...RemoteOption) *RemoteClient {
	transport := &http.Transport{MaxIdleConns: 10, IdleConnTimeout: 90 * time.Second}
	dialer := &websocket.Dialer{HandshakeTimeout: DefaultRequestTimeout}
	return newRemote(addr, addr, transport, dialer, opts)
}

func newRemote(endpoint, host string, transport *http.Transport, dialer *websocket.Dialer, opts []RemoteOption) *RemoteClient {
	c := &RemoteClient{
		httpClient: &http.Client{Transport: transport, Timeout: DefaultRequestTimeout},
		dialer:     dialer,
		baseURL:    "http://" + host,
		wsURL:      "ws://" + host,
		endpoint:   endpoint,
		logger:     logging.NewLogger("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the socket path or address the client talks to.
func (c *RemoteClient) Endpoint() string { return c.endpoint }

func (c *RemoteClient) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// responseError turns a non-2xx response into an error. Bodies written by
// the daemon's error encoder come back as the original TestwatchError.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var te errors.TestwatchError
	if json.Unmarshal(body, &te) == nil && te.Code != "" {
		return &te
	}
	return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}

// FetchSelectedFile returns the server's selected file.
func (c *RemoteClient) FetchSelectedFile(ctx context.Context) (string, error) {
	var app models.AppState
	if err := c.get(ctx, "/api/app", &app); err != nil {
		return "", err
	}
	return app.SelectedFile, nil
}

// FetchWorkspace returns the workspace listing.
func (c *RemoteClient) FetchWorkspace(ctx context.Context) (models.WorkspaceListing, error) {
	var listing models.WorkspaceListing
	err := c.get(ctx, "/api/workspace", &listing)
	return listing, err
}

// FetchSummary returns the test summary, stamped with its sequence number.
func (c *RemoteClient) FetchSummary(ctx context.Context) (models.TestSummary, error) {
	var summary models.TestSummary
	if err := c.get(ctx, "/api/summary", &summary); err != nil {
		return models.TestSummary{}, err
	}
	if summary.Files == nil {
		summary.Files = map[string]models.FileSummary{}
	}
	return summary, nil
}

// FetchRunnerStatus returns the runner status, stamped with its sequence number.
func (c *RemoteClient) FetchRunnerStatus(ctx context.Context) (models.RunnerStatus, error) {
	var status models.RunnerStatus
	if err := c.get(ctx, "/api/runner-status", &status); err != nil {
		return models.RunnerStatus{}, err
	}
	if status.Runners == nil {
		status.Runners = map[string]models.RunnerEntry{}
	}
	return status, nil
}

// SetSelectedFile posts the selection and waits for the daemon's verdict.
func (c *RemoteClient) SetSelectedFile(ctx context.Context, path string) error {
	body, err := json.Marshal(models.SelectedFile{Path: path})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/app/selected-file", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// SubscribeSummary streams summary deltas over a websocket.
func (c *RemoteClient) SubscribeSummary(ctx context.Context) (<-chan models.SummaryDelta, error) {
	return subscribe(ctx, c, "summary", func(f models.Frame) (models.SummaryDelta, bool) {
		if f.SummaryDelta == nil {
			return models.SummaryDelta{}, false
		}
		return *f.SummaryDelta, true
	})
}

// SubscribeRunnerStatus streams runner status deltas over a websocket.
func (c *RemoteClient) SubscribeRunnerStatus(ctx context.Context) (<-chan models.RunnerStatusDelta, error) {
	return subscribe(ctx, c, "runner-status", func(f models.Frame) (models.RunnerStatusDelta, bool) {
		if f.RunnerDelta == nil {
			return models.RunnerStatusDelta{}, false
		}
		return *f.RunnerDelta, true
	})
}

// SubscribeWorkspace streams workspace listings over a websocket.
func (c *RemoteClient) SubscribeWorkspace(ctx context.Context) (<-chan models.WorkspaceListing, error) {
	return subscribe(ctx, c, "workspace", func(f models.Frame) (models.WorkspaceListing, bool) {
		if f.Workspace == nil {
			return models.WorkspaceListing{}, false
		}
		return *f.Workspace, true
	})
}

// SubscribeSelectedFile streams selection changes over a websocket.
func (c *RemoteClient) SubscribeSelectedFile(ctx context.Context) (<-chan string, error) {
	return subscribe(ctx, c, "selected-file", func(f models.Frame) (string, bool) {
		if f.SelectedFile == nil {
			return "", false
		}
		return *f.SelectedFile, true
	})
}

// subscribe dials the topic and forwards the payload picked from every frame.
// The returned channel is closed when ctx ends or the connection drops.
func subscribe[E any](ctx context.Context, c *RemoteClient, topic string, pick func(models.Frame) (E, bool)) (<-chan E, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL+"/api/subscribe/"+topic, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, responseError(resp)
			}
		}
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	log := c.logger.WithField("topic", topic)
	out := make(chan E, 16)
	stop := make(chan struct{})

	// Closing the connection unblocks the reader below.
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()

	go func() {
		defer close(out)
		defer close(stop)
		for {
			var frame models.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Debug("Subscription ended")
				}
				return
			}
			ev, ok := pick(frame)
			if !ok {
				log.WithField("subscription", frame.ID).Warn("Skipping frame without payload")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
