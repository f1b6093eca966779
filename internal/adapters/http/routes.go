package http

import (
	"net/http"

	"dev.rubentxu.devops-platform/gateway/internal/adapters/websockets"
)

// SetupRoutes monta en un único mux la superficie pública del proxy y la
// superficie de introspección. Las rutas de introspección solo existen tras
// la puerta; con la puerta cerrada cualquier ruta /debug responde 404 como
// una ruta desconocida.
func SetupRoutes(s *Server, wsHandler *websockets.LogsHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.Healthz)

	mux.HandleFunc("/debug/processes", s.gated(s.Processes))
	mux.HandleFunc("/debug/processes/{id}/logs", s.gated(s.ProcessLogs))
	mux.HandleFunc("/debug/gateway/logs", s.gated(s.GatewayLogs))
	mux.HandleFunc("/debug/decisions", s.gated(s.Decisions))
	mux.HandleFunc("/debug/version", s.gated(s.Version))
	mux.HandleFunc("/debug/ws", s.gated(wsHandler.HandleConnection))
	mux.HandleFunc("/debug/", s.gated(http.NotFound))

	// Todo lo demás pertenece al gateway.
	mux.HandleFunc("/", s.Gateway)

	return mux
}
