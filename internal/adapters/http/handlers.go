package http

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sort"

	"dev.rubentxu.devops-platform/gateway/config"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/proxy"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/security"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/supervisor"
	"dev.rubentxu.devops-platform/gateway/internal/domain"
	"dev.rubentxu.devops-platform/gateway/internal/ports"
	"dev.rubentxu.devops-platform/gateway/internal/version"
)

// Server agrupa los handlers de la superficie del proxy y de la superficie
// de introspección tras la puerta de debug.
type Server struct {
	cfg        config.ServerConfig
	supervisor *supervisor.Supervisor
	sandbox    ports.Sandbox
	proxy      *proxy.Proxy
	decisions  ports.Store[domain.DecisionRecord]
	tokens     *security.TokenManager
	port       int
	lookupEnv  func(string) string
}

func NewServer(
	cfg config.ServerConfig,
	sup *supervisor.Supervisor,
	sandbox ports.Sandbox,
	pxy *proxy.Proxy,
	decisions ports.Store[domain.DecisionRecord],
	tokens *security.TokenManager,
	servicePort int,
) *Server {
	return &Server{
		cfg:        cfg,
		supervisor: sup,
		sandbox:    sandbox,
		proxy:      pxy,
		decisions:  decisions,
		tokens:     tokens,
		port:       servicePort,
		lookupEnv:  os.Getenv,
	}
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"port":   s.port,
	})
}

// gated envuelve un handler de introspección. Con la superficie
// deshabilitada, o si falla la comprobación del token configurado, la
// respuesta es indistinguible de una ruta inexistente.
func (s *Server) gated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.DebugEnabled {
			http.NotFound(w, r)
			return
		}
		if s.cfg.DebugSecret != "" && s.tokens != nil {
			if err := s.tokens.Authorize(r); err != nil {
				http.NotFound(w, r)
				return
			}
		}
		next(w, r)
	}
}

type processView struct {
	domain.ManagedProcess
	Logs *domain.ProcessLogs `json:"logs,omitempty"`
}

func (s *Server) Processes(w http.ResponseWriter, r *http.Request) {
	processes, err := s.sandbox.ListProcesses(r.Context())
	if err != nil {
		sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	withLogs := r.URL.Query().Get("logs") == "true"
	views := make([]processView, 0, len(processes))
	for _, proc := range processes {
		view := processView{ManagedProcess: proc}
		if withLogs {
			if logs, err := s.sandbox.ProcessLogs(r.Context(), proc.ID); err == nil {
				view.Logs = &logs
			}
		}
		views = append(views, view)
	}
	sendJSON(w, http.StatusOK, views)
}

func (s *Server) ProcessLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	logs, err := s.sandbox.ProcessLogs(r.Context(), id)
	if err != nil {
		sendJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, logs)
}

// GatewayLogs devuelve la salida capturada del gateway que el registro
// selecciona en este momento.
func (s *Server) GatewayLogs(w http.ResponseWriter, r *http.Request) {
	proc, found := s.supervisor.Current(r.Context())
	if !found {
		sendJSONError(w, http.StatusNotFound, "no gateway process found")
		return
	}
	logs, err := s.sandbox.ProcessLogs(r.Context(), proc.ID)
	if err != nil {
		sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"process": proc,
		"logs":    logs,
	})
}

func (s *Server) Decisions(w http.ResponseWriter, r *http.Request) {
	records, err := s.decisions.List()
	if err != nil {
		sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// El store no garantiza orden; el historial se entrega cronológico.
	sort.Slice(records, func(i, j int) bool { return records[i].At.Before(records[j].At) })
	sendJSON(w, http.StatusOK, records)
}

func (s *Server) Version(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, version.Get())
}

// Gateway es la ruta comodín del proxy: confirma un proceso gateway listo
// y le reenvía la petición tal cual.
func (s *Server) Gateway(w http.ResponseWriter, r *http.Request) {
	env := domain.CollectEnvironment(s.lookupEnv)
	proc, err := s.supervisor.Ensure(r.Context(), env)
	if err != nil {
		log.Printf("http: gateway no disponible: %v", err)
		sendGatewayError(w, err)
		return
	}
	addr, err := s.sandbox.Addr(r.Context(), proc, s.port)
	if err != nil {
		log.Printf("http: fallo al resolver la dirección del gateway: %v", err)
		sendGatewayError(w, err)
		return
	}
	s.proxy.Forward(w, r, addr)
}

func sendGatewayError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	response := struct {
		Error string `json:"error"`
		Hint  string `json:"hint,omitempty"`
	}{
		Error: err.Error(),
		Hint:  supervisor.RemediationHint(err.Error()),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error al codificar la respuesta de error: %v", err)
	}
}

func sendJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error al codificar la respuesta: %v", err)
	}
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error al codificar la respuesta de error: %v", err)
	}
}
