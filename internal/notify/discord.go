package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const discordAPIBase = "https://discord.com/api/v10"

// Discord posts the stop command into a Discord channel bridged to the server
// console (e.g. a DiscordSRV console channel).
type Discord struct {
	baseURL   string
	token     string
	channelID string
	command   string
	http      *http.Client
}

// DiscordConfig configures the Discord console notifier.
type DiscordConfig struct {
	BaseURL   string // defaults to the public Discord API
	BotToken  string
	ChannelID string
	Command   string // defaults to DefaultStopCommand
	Timeout   time.Duration
}

// NewDiscord creates a Discord console notifier.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	if cfg.BotToken == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord: bot token and channel ID are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = discordAPIBase
	}
	if cfg.Command == "" {
		cfg.Command = DefaultStopCommand
	}
	client := cleanhttp.DefaultClient()
	client.Timeout = cfg.Timeout
	return &Discord{
		baseURL:   cfg.BaseURL,
		token:     cfg.BotToken,
		channelID: cfg.ChannelID,
		command:   cfg.Command,
		http:      client,
	}, nil
}

func (d *Discord) SendStopDirective(ctx context.Context) error {
	data, err := json.Marshal(map[string]string{"content": d.command})
	if err != nil {
		return fmt.Errorf("discord: marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", d.baseURL, d.channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+d.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("discord: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
