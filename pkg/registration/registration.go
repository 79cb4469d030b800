// Package registration announces a running ecoroute instance to a service
// registry and keeps the entry alive with heartbeats. Registration is
// best effort: the service works the same whether or not the registry is
// reachable.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHeartbeatInterval is the time between heartbeats
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultTimeout bounds each registry request
	DefaultTimeout = 5 * time.Second

	registerPath = "/api/register"
)

// Config describes the instance being announced.
type Config struct {
	RegistryURL string
	ServiceName string
	ServiceURL  string
	HealthURL   string
	Version     string

	Tools        []string
	Capabilities []string
	Metadata     map[string]any

	HeartbeatInterval time.Duration
	Timeout           time.Duration
}

// Announcement is the body posted to the registry on every heartbeat
type Announcement struct {
	Name         string         `json:"name"`
	InstanceID   string         `json:"instance_id"`
	Type         string         `json:"type"`
	URL          string         `json:"url,omitempty"`
	HealthURL    string         `json:"health_url,omitempty"`
	Version      string         `json:"version"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Tools        []string       `json:"tools,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Ack is the registry's reply to an announcement
type Ack struct {
	Status     string `json:"status"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Client sends announcements until stopped.
type Client struct {
	cfg        Config
	instanceID string
	logger     *slog.Logger
	httpClient *http.Client

	cancel     context.CancelFunc
	wg         sync.WaitGroup
	registered atomic.Bool
}

// NewClient creates a client. Nothing is sent until Start.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.RegistryURL = strings.TrimRight(cfg.RegistryURL, "/")

	return &Client{
		cfg:        cfg,
		instanceID: uuid.NewString(),
		logger:     logger.With("component", "registration"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// InstanceID identifies this process to the registry
func (c *Client) InstanceID() string {
	return c.instanceID
}

// Registered reports whether the last heartbeat was acknowledged
func (c *Client) Registered() bool {
	return c.registered.Load()
}

// Start announces the instance and keeps heartbeating in the background.
func (c *Client) Start(ctx context.Context) error {
	if c.cfg.RegistryURL == "" {
		return errors.New("registration: registry URL is required")
	}
	if c.cfg.ServiceName == "" {
		return errors.New("registration: service name is required")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.loop(ctx)
	return nil
}

// Stop ends the heartbeat loop and withdraws the announcement.
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	c.deregister(ctx)
}

func (c *Client) loop(ctx context.Context) {
	defer c.wg.Done()

	c.beat(ctx)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.beat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) beat(ctx context.Context) {
	ack, err := c.announce(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if c.registered.Swap(false) {
			c.logger.Warn("lost registry registration", "error", err)
		} else {
			c.logger.Debug("registry unavailable", "error", err)
		}
		return
	}
	if !c.registered.Swap(true) {
		c.logger.Info("registered with service registry",
			"registry", c.cfg.RegistryURL,
			"instance_id", c.instanceID,
			"ttl_seconds", ack.TTLSeconds)
	}
}

func (c *Client) announce(ctx context.Context) (Ack, error) {
	body, err := json.Marshal(Announcement{
		Name:         c.cfg.ServiceName,
		InstanceID:   c.instanceID,
		Type:         "mcp",
		URL:          c.cfg.ServiceURL,
		HealthURL:    c.cfg.HealthURL,
		Version:      c.cfg.Version,
		Capabilities: c.cfg.Capabilities,
		Tools:        c.cfg.Tools,
		Metadata:     c.cfg.Metadata,
	})
	if err != nil {
		return Ack{}, fmt.Errorf("encoding announcement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RegistryURL+registerPath, bytes.NewReader(body))
	if err != nil {
		return Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ack{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Ack{}, fmt.Errorf("registry returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return Ack{}, fmt.Errorf("decoding registry reply: %w", err)
	}
	return ack, nil
}

func (c *Client) deregister(ctx context.Context) {
	if !c.registered.Swap(false) {
		return
	}

	u := fmt.Sprintf("%s%s/%s?instance_id=%s", c.cfg.RegistryURL, registerPath,
		url.PathEscape(c.cfg.ServiceName), url.QueryEscape(c.instanceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		c.logger.Debug("failed to build deregistration request", "error", err)
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("deregistration failed", "error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		c.logger.Info("deregistered from service registry", "instance_id", c.instanceID)
	}
}
