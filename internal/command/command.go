package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/conveyortwin/conveyortwin/internal/config"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// Command types.
const (
	TypeEmergencyStop   = "EMERGENCY_STOP"
	TypeMaintenanceMode = "MAINTENANCE_MODE"
	TypeResume          = "RESUME"
	TypeSetSpeed        = "SET_SPEED"
)

var (
	ErrMalformed   = errors.New("command: malformed payload")
	ErrUnknownType = errors.New("command: unknown type")
	ErrNoSpeed     = errors.New("command: SET_SPEED requires a non-negative speed")
)

// Command is one operator request.
type Command struct {
	Type  string   `json:"type"`
	Speed *float64 `json:"speed,omitempty"`
}

// Ack is sent back on the reply subject when the sender asked for one.
type Ack struct {
	Type     string     `json:"type"`
	Accepted bool       `json:"accepted"`
	Mode     types.Mode `json:"operating_mode,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// ModeSetter is implemented by *twin.Twin.
type ModeSetter interface {
	SetMode(m types.Mode) (types.Mode, error)
}

// Handler decodes and applies commands.
type Handler struct {
	twin ModeSetter
}

// NewHandler returns a Handler that switches modes on t.
func NewHandler(t ModeSetter) *Handler {
	return &Handler{twin: t}
}

// Handle decodes data and applies the command.
func (h *Handler) Handle(data []byte) (Ack, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Ack{Error: ErrMalformed.Error()}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ack := Ack{Type: cmd.Type}

	var target types.Mode
	switch cmd.Type {
	case TypeEmergencyStop:
		target = types.ModeEmergency
	case TypeMaintenanceMode:
		target = types.ModeMaintenance
	case TypeResume:
		target = types.ModeNormal
	case TypeSetSpeed:
		if cmd.Speed == nil || *cmd.Speed < 0 {
			ack.Error = ErrNoSpeed.Error()
			return ack, ErrNoSpeed
		}
		slog.Info("command: speed change requested", "speed", *cmd.Speed)
		ack.Accepted = true
		return ack, nil
	default:
		ack.Error = ErrUnknownType.Error()
		return ack, fmt.Errorf("%w %q", ErrUnknownType, cmd.Type)
	}

	prev, err := h.twin.SetMode(target)
	if err != nil {
		ack.Error = err.Error()
		return ack, fmt.Errorf("command: %s: %w", cmd.Type, err)
	}
	slog.Info("command: applied", "type", cmd.Type, "from", prev, "to", target)
	ack.Accepted = true
	ack.Mode = target
	return ack, nil
}

// handleMsg applies one bus message and replies when a reply subject is set.
func (h *Handler) handleMsg(msg *nats.Msg) {
	ack, err := h.Handle(msg.Data)
	if err != nil {
		slog.Warn("command: rejected", "subject", msg.Subject, "err", err)
	}
	if msg.Reply == "" {
		return
	}
	body, _ := json.Marshal(ack)
	if err := msg.Respond(body); err != nil {
		slog.Warn("command: reply failed", "err", err)
	}
}

// Run connects to the bus, subscribes to the commands subject and blocks
// until ctx is cancelled.
func Run(ctx context.Context, cfg config.BusConfig, h *Handler) error {
	nc, err := nats.Connect(cfg.URL, nats.Name(cfg.Name+"-commands"), nats.MaxReconnects(-1))
	if err != nil {
		return fmt.Errorf("command: connect: %w", err)
	}
	defer nc.Close()

	sub, err := nc.Subscribe(cfg.CommandsSubject, h.handleMsg)
	if err != nil {
		return fmt.Errorf("command: subscribe %s: %w", cfg.CommandsSubject, err)
	}
	slog.Info("command: listening", "subject", cfg.CommandsSubject)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		slog.Warn("command: drain subscription", "err", err)
	}
	return nil
}
