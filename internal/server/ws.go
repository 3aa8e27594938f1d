package server

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/route250/MeetingMinutesSummarizer/internal/bot"
	"github.com/route250/MeetingMinutesSummarizer/internal/session"
)

// WSConfig contains WebSocket transport configuration
type WSConfig struct {
	// ReadLimit bounds a single inbound message in bytes.
	ReadLimit int64
	// WriteTimeout bounds a single outbound write.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns the WebSocket defaults used by the server.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReadLimit:    4 << 20,
		WriteTimeout: 10 * time.Second,
	}
}

// WSHandler upgrades client connections and binds each one to a session.
// Binary messages carry audio chunks; text messages carry JSON control
// events. Transcription results and bot outputs are pushed back as JSON
// text messages.
type WSHandler struct {
	manager *session.Manager
	logger  *slog.Logger
	config  WSConfig

	upgrader websocket.Upgrader
}

// NewWSHandler creates a WebSocket handler backed by the session manager.
func NewWSHandler(manager *session.Manager, logger *slog.Logger, cfg WSConfig) *WSHandler {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultWSConfig().ReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWSConfig().WriteTimeout
	}

	return &WSHandler{
		manager: manager,
		logger:  logger,
		config:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// controlMessage is one inbound JSON text message.
type controlMessage struct {
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
	Lang string `json:"lang,omitempty"`
}

// ServeHTTP handles one WebSocket client for its whole lifetime.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}
	conn.SetReadLimit(h.config.ReadLimit)

	client := &wsClient{
		conn:         conn,
		writeTimeout: h.config.WriteTimeout,
		logger:       h.logger.With(slog.String("remote", r.RemoteAddr)),
	}

	sess, err := h.manager.CreateSession(client)
	if err != nil {
		client.logger.Error("Failed to create session", slog.String("error", err.Error()))
		client.sendError("failed to create session")
		conn.Close()
		return
	}

	logger := h.logger.With(
		slog.String("session_id", sess.ID),
		slog.String("remote", r.RemoteAddr),
	)
	logger.Info("WebSocket client connected")

	defer func() {
		h.manager.RemoveSession(sess.ID)
		client.close()
		logger.Info("WebSocket client disconnected")
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("WebSocket read error", slog.String("error", err.Error()))
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			queued, err := sess.AppendAudio(data)
			if err != nil {
				logger.Warn("Audio chunk rejected", slog.String("error", err.Error()))
				client.sendError(err.Error())
				continue
			}
			client.send(queuedEvent{Type: "queued", MB: queued})

		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				client.sendError("invalid control message")
				continue
			}
			h.handleControl(sess, client, msg)
		}
	}
}

// handleControl dispatches one inbound control event.
func (h *WSHandler) handleControl(sess *session.Session, client *wsClient, msg controlMessage) {
	switch msg.Type {
	case "configure":
		if err := sess.UpdateSettings(msg.Mode, msg.Lang); err != nil {
			client.sendError(err.Error())
		}
	case "stop":
		sess.CloseAudio()
	default:
		client.logger.Warn("Unknown control message", slog.String("type", msg.Type))
		client.sendError("unknown control message: " + msg.Type)
	}
}

// Outbound event payloads.
type transcriptionEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Tmp  string `json:"tmp"`
}

type resultTextEvent struct {
	Type string `json:"type"`
	Cmd  string `json:"cmd"`
	Text string `json:"text"`
}

type audioStreamEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type evEvent struct {
	Type string `json:"type"`
	LLM  string `json:"llm"`
}

type queuedEvent struct {
	Type string  `json:"type"`
	MB   float64 `json:"mb"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type eosEvent struct {
	Type string `json:"type"`
}

// wsClient serializes outbound writes for one connection and implements
// the session event sink. Pushes arriving after the connection closed
// are dropped.
type wsClient struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	closed bool
}

// OnTranscription pushes one transcription update.
func (c *wsClient) OnTranscription(fixed, tentative []string) {
	c.send(transcriptionEvent{
		Type: "transcription",
		Text: strings.Join(fixed, " "),
		Tmp:  strings.Join(tentative, " "),
	})
}

// OnBotResult pushes one bot output, mapped to the client event shape.
func (c *wsClient) OnBotResult(res *bot.VoiceRes) {
	switch res.Cmd {
	case bot.CmdAll, bot.CmdAppend:
		c.send(resultTextEvent{Type: "result_text", Cmd: res.Cmd.String(), Text: res.Text})
		if len(res.Voice) > 0 {
			c.send(audioStreamEvent{
				Type:  "audio_stream",
				Audio: base64.StdEncoding.EncodeToString(res.Voice),
			})
		}
	case bot.CmdLLMOn:
		c.send(evEvent{Type: "ev", LLM: "on"})
	case bot.CmdLLMOff:
		c.send(evEvent{Type: "ev", LLM: "off"})
	default:
		c.logger.Warn("Unknown bot command", slog.String("command", res.Cmd.String()))
	}
}

// OnEndOfStream tells the client that transcription has finished.
func (c *wsClient) OnEndOfStream() {
	c.send(eosEvent{Type: "eos"})
}

func (c *wsClient) sendError(message string) {
	c.send(errorEvent{Type: "error", Error: message})
}

// send marshals one event and writes it under the connection lock.
func (c *wsClient) send(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal event", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Debug("WebSocket write failed", slog.String("error", err.Error()))
	}
}

// close marks the connection dead and closes the underlying socket.
func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}
