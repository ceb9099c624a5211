package compute

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const flyAPIBase = "https://api.machines.dev/v1"

// FlyConfig configures the Fly.io provider.
type FlyConfig struct {
	BaseURL   string // defaults to the public Machines API
	AppName   string
	MachineID string
	Token     string
}

// FlyMachine implements Infrastructure for a single Fly.io Machine.
type FlyMachine struct {
	cfg    FlyConfig
	client *http.Client
	now    func() time.Time
}

// NewFlyMachine creates a Fly.io provider.
func NewFlyMachine(cfg FlyConfig) (*FlyMachine, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("fly: API token is required")
	}
	if cfg.AppName == "" || cfg.MachineID == "" {
		return nil, fmt.Errorf("fly: app name and machine ID are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = flyAPIBase
	}
	return &FlyMachine{
		cfg:    cfg,
		client: cleanhttp.DefaultPooledClient(),
		now:    time.Now,
	}, nil
}

func (p *FlyMachine) Status(ctx context.Context) (PowerStatus, error) {
	body, err := p.do(ctx, http.MethodGet, "")
	if err != nil {
		return "", err
	}

	var result struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("fly: failed to decode machine: %w", err)
	}
	return flyPowerStatus(result.State), nil
}

func (p *FlyMachine) Start(ctx context.Context) (*Ack, error) {
	if _, err := p.do(ctx, http.MethodPost, "/start"); err != nil {
		return nil, err
	}
	return p.ack(ActionStart, PowerStarting), nil
}

func (p *FlyMachine) Stop(ctx context.Context) (*Ack, error) {
	if _, err := p.do(ctx, http.MethodPost, "/stop"); err != nil {
		return nil, err
	}
	return p.ack(ActionStop, PowerStopping), nil
}

func (p *FlyMachine) ack(action Action, status PowerStatus) *Ack {
	return &Ack{
		Provider:  "fly",
		MachineID: p.cfg.MachineID,
		Action:    action,
		Status:    status,
		IssuedAt:  p.now().UTC(),
	}
}

func (p *FlyMachine) do(ctx context.Context, method, action string) ([]byte, error) {
	url := fmt.Sprintf("%s/apps/%s/machines/%s%s", p.cfg.BaseURL, p.cfg.AppName, p.cfg.MachineID, action)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fly API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fly: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fly API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func flyPowerStatus(state string) PowerStatus {
	switch state {
	case "started":
		return PowerRunning
	case "stopped", "suspended":
		return PowerDeallocated
	case "starting":
		return PowerStarting
	case "stopping", "suspending":
		return PowerStopping
	default:
		return titleStatus(state)
	}
}
