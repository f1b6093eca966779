package websockets

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"dev.rubentxu.devops-platform/gateway/internal/domain"
	"dev.rubentxu.devops-platform/gateway/internal/ports"
)

const (
	writeWait    = 30 * time.Second
	pongWait     = 120 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	streamPeriod = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// gatewayFinder informa del proceso gateway seleccionado actualmente.
type gatewayFinder interface {
	Current(ctx context.Context) (domain.ManagedProcess, bool)
}

// LogsHandler emite la salida capturada del gateway por WebSocket, para
// inspección en vivo sin sondear el endpoint de logs.
type LogsHandler struct {
	finder  gatewayFinder
	sandbox ports.Sandbox
}

func NewLogsHandler(finder gatewayFinder, sandbox ports.Sandbox) *LogsHandler {
	return &LogsHandler{finder: finder, sandbox: sandbox}
}

type logsFrame struct {
	ProcessID string `json:"process_id,omitempty"`
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *LogsHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error en el upgrade de WebSocket: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Se drena el lado del cliente para procesar pongs y frames de cierre.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	streamTicker := time.NewTicker(streamPeriod)
	defer streamTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-streamTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(h.snapshot(ctx)); err != nil {
				return
			}
		}
	}
}

func (h *LogsHandler) snapshot(ctx context.Context) logsFrame {
	proc, found := h.finder.Current(ctx)
	if !found {
		return logsFrame{Error: "no gateway process found"}
	}
	logs, err := h.sandbox.ProcessLogs(ctx, proc.ID)
	if err != nil {
		return logsFrame{ProcessID: proc.ID, Error: err.Error()}
	}
	return logsFrame{ProcessID: proc.ID, Stdout: logs.Stdout, Stderr: logs.Stderr}
}
