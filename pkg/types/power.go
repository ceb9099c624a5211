package types

import "time"

// Error codes returned in ErrorResponse.Code.
const (
	CodeAlreadyRunning    = "already_running"
	CodeInconsistentState = "inconsistent_state"
	CodeProbeUnavailable  = "probe_unavailable"
	CodeInfrastructure    = "infrastructure_error"
	CodeNotifier          = "notifier_error"
	CodeLocked            = "locked"
	CodeInternal          = "internal_error"
)

// PowerResponse is returned by POST /power/on and POST /power/off.
type PowerResponse struct {
	Provider  string    `json:"provider"`
	MachineID string    `json:"machineID"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// ServerInfo describes the game server as seen by the liveness probe.
type ServerInfo struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Version       string `json:"version,omitempty"`
	PlayersOnline int    `json:"playersOnline"`
	PlayersMax    int    `json:"playersMax"`
	MOTD          string `json:"motd,omitempty"`
}

// Status is returned by GET /status.
type Status struct {
	VMStatus     string      `json:"vmStatus"`
	ServerOnline bool        `json:"serverOnline"`
	Server       *ServerInfo `json:"server,omitempty"`
	Consistent   bool        `json:"consistent"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// TokenRequest is the body of POST /tokens.
type TokenRequest struct {
	Subject string   `json:"subject"`
	Scopes  []string `json:"scopes"`
	TTL     int      `json:"ttl,omitempty"` // seconds, default 86400
}

// TokenResponse is returned by POST /tokens.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
