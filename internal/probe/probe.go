package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultStatusAPI is the public Minecraft server status API. It caches each
// server's result for about a minute, so a query right after a power operation
// may still report the previous state. Point StatusAPIURL at a self-hosted
// instance with caching disabled when that window matters.
const DefaultStatusAPI = "https://api.mcsrvstat.us"

// ServerInfo describes a game server that answered the status query.
type ServerInfo struct {
	Online  bool    `json:"online"`
	Host    string  `json:"host"`
	Port    int     `json:"port"`
	Version string  `json:"version,omitempty"`
	Players Players `json:"players"`
	MOTD    string  `json:"motd,omitempty"`
}

// Players is the player count reported by the server.
type Players struct {
	Online int `json:"online"`
	Max    int `json:"max"`
}

// Probe reports whether the game server is serving. Info returns nil, nil when
// the server is absent or offline.
type Probe interface {
	Info(ctx context.Context) (*ServerInfo, error)
}

// AddressFunc resolves the address the probe should query. It runs on every call
// so a VM that changes its public IP between boots is still found.
type AddressFunc func(ctx context.Context) (string, error)

// StaticAddress returns an AddressFunc that always resolves to addr.
func StaticAddress(addr string) AddressFunc {
	return func(context.Context) (string, error) {
		return addr, nil
	}
}

// StatusAPI queries an mcsrvstat.us compatible status API.
type StatusAPI struct {
	baseURL string
	address AddressFunc
	http    *http.Client
}

// NewStatusAPI creates a status API probe. An empty baseURL selects DefaultStatusAPI.
func NewStatusAPI(baseURL string, address AddressFunc, timeout time.Duration) *StatusAPI {
	if baseURL == "" {
		baseURL = DefaultStatusAPI
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return &StatusAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		address: address,
		http:    client,
	}
}

type statusResponse struct {
	Online   bool   `json:"online"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Players  struct {
		Online int `json:"online"`
		Max    int `json:"max"`
	} `json:"players"`
	MOTD struct {
		Clean []string `json:"clean"`
	} `json:"motd"`
}

// Info fetches the server status. An offline server yields nil, nil.
func (p *StatusAPI) Info(ctx context.Context) (*ServerInfo, error) {
	addr, err := p.address(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve server address: %w", err)
	}
	if addr == "" {
		return nil, fmt.Errorf("server address is empty")
	}

	reqURL := fmt.Sprintf("%s/3/%s", p.baseURL, url.PathEscape(addr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// mcsrvstat rejects requests without a user agent
	req.Header.Set("User-Agent", "opencraft")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if !result.Online {
		return nil, nil
	}

	host := result.Hostname
	if host == "" {
		host = result.IP
	}
	return &ServerInfo{
		Online:  true,
		Host:    host,
		Port:    result.Port,
		Version: result.Version,
		Players: Players{Online: result.Players.Online, Max: result.Players.Max},
		MOTD:    strings.Join(result.MOTD.Clean, "\n"),
	}, nil
}
