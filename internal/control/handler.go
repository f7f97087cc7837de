package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/slaclab/pydm-pva-widgets/internal/config"
)

// commandQueueSize bounds pending commands; further ones are dropped.
const commandQueueSize = 10

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnGetStatus        func() map[string]interface{}
	OnSetColorMap      func(name string) error
	OnListColorMaps    func() (names []string, active string)
	OnSetMaxRedrawRate func(hz int) error
	OnShutdown         func() error
}

// Handler handles control plane commands
type Handler struct {
	cfg      *config.Config
	client   mqtt.Client
	commands chan Command

	// shutdownDelay lets the shutdown response reach the broker first.
	shutdownDelay time.Duration

	mu        sync.Mutex
	callbacks CommandCallbacks
	handled   uint64
	dropped   uint64
	stopped   bool
}

// NewHandler creates a new control plane handler
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:           cfg,
		client:        client,
		commands:      make(chan Command, commandQueueSize),
		shutdownDelay: 500 * time.Millisecond,
		callbacks:     callbacks,
	}
}

// Start subscribes to the control topic and processes commands until ctx
// is done
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	go h.processCommands(ctx)
	return nil
}

// Stop unsubscribes from the control topic. Idempotent.
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true

	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(h.cfg.MQTT.Topics.Control)
		token.WaitTimeout(2 * time.Second)
	}

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called by the MQTT client for each control message
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			h.handleCommand(cmd)
		}
	}
}

// handleCommand executes a command and publishes the response
func (h *Handler) handleCommand(cmd Command) {
	h.mu.Lock()
	h.handled++
	cb := h.callbacks
	h.mu.Unlock()

	resp := Response{CommandAck: cmd.Command}
	fail := func(err error) {
		resp.Status = "error"
		resp.Error = err.Error()
	}

	switch cmd.Command {
	case "get_status":
		if cb.OnGetStatus == nil {
			fail(fmt.Errorf("get_status not implemented"))
			break
		}
		resp.Status = "success"
		resp.Data = cb.OnGetStatus()

	case "list_color_maps":
		if cb.OnListColorMaps == nil {
			fail(fmt.Errorf("list_color_maps not implemented"))
			break
		}
		names, active := cb.OnListColorMaps()
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"color_maps": names,
			"active":     active,
		}

	case "set_color_map":
		name, ok := cmd.Params["name"].(string)
		switch {
		case cb.OnSetColorMap == nil:
			fail(fmt.Errorf("set_color_map not implemented"))
		case !ok || name == "":
			fail(fmt.Errorf("missing 'name' parameter"))
		default:
			if err := cb.OnSetColorMap(name); err != nil {
				fail(err)
				break
			}
			resp.Status = "success"
			resp.Data = map[string]interface{}{"color_map": name}
		}

	case "set_max_redraw_rate":
		hz, ok := cmd.Params["hz"].(float64) // JSON numbers decode as float64
		switch {
		case cb.OnSetMaxRedrawRate == nil:
			fail(fmt.Errorf("set_max_redraw_rate not implemented"))
		case !ok:
			fail(fmt.Errorf("missing 'hz' parameter"))
		case hz != float64(int(hz)):
			fail(fmt.Errorf("'hz' must be an integer, got %v", hz))
		default:
			if err := cb.OnSetMaxRedrawRate(int(hz)); err != nil {
				fail(err)
				break
			}
			resp.Status = "success"
			resp.Data = map[string]interface{}{"max_redraw_rate": int(hz)}
		}

	case "shutdown":
		if cb.OnShutdown == nil {
			fail(fmt.Errorf("shutdown not implemented"))
			break
		}
		slog.Warn("shutdown command received via MQTT control plane")
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"shutdown_initiated": true,
			"message":            "graceful shutdown in progress",
		}
		h.sendResponse(resp)

		go func() {
			time.Sleep(h.shutdownDelay)
			if err := cb.OnShutdown(); err != nil {
				slog.Error("shutdown callback failed", "error", err)
			}
		}()
		return

	default:
		fail(fmt.Errorf("unknown command: %s", cmd.Command))
	}

	h.sendResponse(resp)
}

// sendResponse publishes a response on the status topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Status
	qos := h.cfg.MQTT.QoS["status"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}

// Stats returns handled and dropped command counts
func (h *Handler) Stats() (handled, dropped uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handled, h.dropped
}
