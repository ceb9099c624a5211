package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/opencraft/opencraft/internal/auth"
	"github.com/opencraft/opencraft/internal/compute"
	"github.com/opencraft/opencraft/internal/events"
	"github.com/opencraft/opencraft/internal/lock"
	"github.com/opencraft/opencraft/internal/metrics"
	"github.com/opencraft/opencraft/internal/reconciler"
	"github.com/opencraft/opencraft/pkg/types"
)

const powerLockKey = "power"

const (
	defaultTokenTTL = 24 * time.Hour
	maxTokenTTL     = 365 * 24 * time.Hour
)

func (s *Server) powerOn(c echo.Context) error {
	return s.runPower(c, "power_on", s.controller.PowerOn)
}

func (s *Server) powerOff(c echo.Context) error {
	return s.runPower(c, "power_off", s.controller.PowerOff)
}

func (s *Server) runPower(c echo.Context, action string, op func(context.Context) (*compute.Ack, error)) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), s.opTimeout)
	defer cancel()

	logger := s.logger.With(
		zap.String("action", action),
		zap.String("subject", auth.Subject(c)),
	)

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, powerLockKey)
		if err != nil {
			if errors.Is(err, lock.ErrLocked) {
				metrics.ObservePower(action, types.CodeLocked, 0)
				return c.JSON(http.StatusLocked, types.ErrorResponse{Error: err.Error(), Code: types.CodeLocked})
			}
			logger.Error("acquire power lock", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error(), Code: types.CodeInternal})
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				logger.Warn("release power lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	ack, err := op(ctx)
	elapsed := time.Since(start)

	status, code := errorStatus(err)
	outcome := "ok"
	if err != nil {
		outcome = code
	}
	metrics.ObservePower(action, outcome, elapsed)

	ev := events.PowerEvent{Action: action, Outcome: outcome}
	if ack != nil {
		ev.MachineID = ack.MachineID
		ev.Status = string(ack.Status)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.publish(ev)

	switch {
	case err == nil:
		logger.Info("power operation complete", zap.String("status", string(ack.Status)), zap.Duration("elapsed", elapsed))
		return c.JSON(http.StatusOK, toPowerResponse(ack))
	case errors.Is(err, reconciler.ErrInconsistentState):
		metrics.InconsistentStatesTotal.Inc()
		logger.Error("inconsistent state between VM and game server", zap.Error(err))
	case errors.Is(err, reconciler.ErrAlreadyRunning):
		logger.Info("power operation not needed", zap.Error(err))
	default:
		logger.Error("power operation failed", zap.Error(err))
	}
	return c.JSON(status, types.ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) getStatus(c echo.Context) error {
	st, err := s.controller.Status(c.Request().Context())
	if err != nil {
		status, code := errorStatus(err)
		return c.JSON(status, types.ErrorResponse{Error: err.Error(), Code: code})
	}

	resp := types.Status{
		VMStatus:     string(st.VM),
		ServerOnline: st.Server != nil && st.Server.Online,
		Consistent:   st.Consistent,
	}
	if resp.ServerOnline {
		resp.Server = &types.ServerInfo{
			Host:          st.Server.Host,
			Port:          st.Server.Port,
			Version:       st.Server.Version,
			PlayersOnline: st.Server.Players.Online,
			PlayersMax:    st.Server.Players.Max,
			MOTD:          st.Server.MOTD,
		}
		metrics.ServerOnline.Set(1)
		metrics.ServerPlayers.Set(float64(st.Server.Players.Online))
	} else {
		metrics.ServerOnline.Set(0)
		metrics.ServerPlayers.Set(0)
	}
	if !st.Consistent {
		s.logger.Warn("status shows server down while VM is running", zap.String("vm_status", resp.VMStatus))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) issueToken(c echo.Context) error {
	if s.issuer == nil {
		return c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "power tokens are not enabled"})
	}

	var req types.TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid request body: " + err.Error()})
	}
	if req.Subject == "" || len(req.Scopes) == 0 {
		return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "subject and scopes are required"})
	}
	if req.TTL > int(maxTokenTTL/time.Second) {
		return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: fmt.Sprintf("ttl must not exceed %d seconds", int(maxTokenTTL/time.Second))})
	}
	ttl := time.Duration(req.TTL) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	token, err := s.issuer.IssuePowerToken(req.Subject, req.Scopes, ttl)
	if err != nil {
		return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
	}
	s.logger.Info("issued power token", zap.String("subject", req.Subject), zap.Strings("scopes", req.Scopes))
	return c.JSON(http.StatusCreated, types.TokenResponse{Token: token, ExpiresAt: time.Now().Add(ttl).UTC()})
}

func (s *Server) publish(ev events.PowerEvent) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}

// errorStatus maps reconciler error kinds to HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch reconciler.Kind(err) {
	case nil:
		if err == nil {
			return http.StatusOK, ""
		}
		return http.StatusInternalServerError, types.CodeInternal
	case reconciler.ErrAlreadyRunning:
		return http.StatusConflict, types.CodeAlreadyRunning
	case reconciler.ErrInconsistentState:
		return http.StatusInternalServerError, types.CodeInconsistentState
	case reconciler.ErrProbeUnavailable:
		return http.StatusServiceUnavailable, types.CodeProbeUnavailable
	case reconciler.ErrNotifier:
		return http.StatusBadGateway, types.CodeNotifier
	default:
		return http.StatusBadGateway, types.CodeInfrastructure
	}
}

func toPowerResponse(ack *compute.Ack) types.PowerResponse {
	return types.PowerResponse{
		Provider:  ack.Provider,
		MachineID: ack.MachineID,
		Action:    string(ack.Action),
		Status:    string(ack.Status),
		IssuedAt:  ack.IssuedAt,
	}
}
