package fountain

import (
	"log/slog"
	"sync"

	"github.com/chaz8081/petkit-ble/internal/ble/protocol"
)

// Handler decodes notification frames and applies them to State. It must be
// driven from a single goroutine.
type Handler struct {
	state  *State
	logger *slog.Logger

	mu        sync.Mutex
	observers []func(cmd byte)
}

// NewHandler creates a handler that updates state.
func NewHandler(state *State, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{state: state, logger: logger}
}

// OnUpdate registers fn to run after each frame that changed state.
func (h *Handler) OnUpdate(fn func(cmd byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, fn)
}

// Handle parses one notification. Frames with no parser are ignored.
// Errors wrap protocol.ErrMalformedFrame, UnknownFieldError or
// FieldTypeError.
func (h *Handler) Handle(data []byte) error {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		return err
	}
	h.logger.Debug("received command", "cmd", frame.Cmd, "name", protocol.CommandName(frame.Cmd), "seq", frame.Seq)

	parse, ok := protocol.Parser(frame.Cmd)
	if !ok {
		return nil
	}
	fields, err := parse(frame.Data, h.state.Info().Alias)
	if err != nil {
		return err
	}

	switch frame.Cmd {
	case protocol.CmdSync, protocol.CmdFirmware, protocol.CmdDetails:
		err = h.state.SetInfo(fields)
	default:
		err = h.state.SetStatus(fields)
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	observers := make([]func(byte), len(h.observers))
	copy(observers, h.observers)
	h.mu.Unlock()
	for _, fn := range observers {
		fn(frame.Cmd)
	}
	return nil
}
