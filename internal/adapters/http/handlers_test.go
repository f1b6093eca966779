package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dev.rubentxu.devops-platform/gateway/config"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/proxy"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/security"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/store"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/supervisor"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/websockets"
	"dev.rubentxu.devops-platform/gateway/internal/domain"
	"dev.rubentxu.devops-platform/gateway/internal/ports"
)

var gatewayCommand = []string{"/usr/local/bin/gateway-bootstrap"}

type stubSandbox struct {
	procs    []domain.ManagedProcess
	addrs    map[string]string
	logs     map[string]domain.ProcessLogs
	listErr  error
	startErr error
	logsErr  error
}

func (s *stubSandbox) ListProcesses(ctx context.Context) ([]domain.ManagedProcess, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.procs, nil
}

func (s *stubSandbox) StartProcess(ctx context.Context, spec domain.ProcessSpec) (domain.ManagedProcess, error) {
	if s.startErr != nil {
		return domain.ManagedProcess{}, s.startErr
	}
	proc := domain.ManagedProcess{ID: "started", Command: spec.Command, Status: domain.StatusRunning, StartedAt: time.Now()}
	s.procs = append(s.procs, proc)
	return proc, nil
}

func (s *stubSandbox) KillProcess(ctx context.Context, id string) error { return nil }

func (s *stubSandbox) ProcessLogs(ctx context.Context, id string) (domain.ProcessLogs, error) {
	if s.logsErr != nil {
		return domain.ProcessLogs{}, s.logsErr
	}
	logs, ok := s.logs[id]
	if !ok {
		return domain.ProcessLogs{}, fmt.Errorf("sin logs para %s", id)
	}
	return logs, nil
}

func (s *stubSandbox) Addr(ctx context.Context, proc domain.ManagedProcess, port int) (string, error) {
	return s.addrs[proc.ID], nil
}

func newTestMuxWithStore(sandbox *stubSandbox, cfg config.ServerConfig, tokens *security.TokenManager, decisions ports.Store[domain.DecisionRecord]) *http.ServeMux {
	spec := domain.ProcessSpec{Command: gatewayCommand, ServicePort: config.GatewayPort}
	sup := supervisor.New(sandbox, spec, supervisor.NewProber(), time.Second, decisions)
	server := NewServer(cfg, sup, sandbox, proxy.New(), decisions, tokens, config.GatewayPort)
	return SetupRoutes(server, websockets.NewLogsHandler(sup, sandbox))
}

func newTestMux(sandbox *stubSandbox, cfg config.ServerConfig, tokens *security.TokenManager) *http.ServeMux {
	return newTestMuxWithStore(sandbox, cfg, tokens, store.NewCacheStore[domain.DecisionRecord]())
}

func TestDebugRoutesAnswer404WhenGateOff(t *testing.T) {
	mux := newTestMux(&stubSandbox{listErr: errors.New("nunca debería consultarse")},
		config.ServerConfig{DebugEnabled: false}, nil)

	paths := []string{
		"/debug/processes",
		"/debug/processes/abc/logs",
		"/debug/gateway/logs",
		"/debug/decisions",
		"/debug/version",
		"/debug/ws",
		"/debug/unknown",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: se esperaba 404 con la puerta cerrada, se obtuvo %d", path, rec.Code)
		}
	}
}

func TestHealthzAlwaysAnswers(t *testing.T) {
	mux := newTestMux(&stubSandbox{}, config.ServerConfig{DebugEnabled: false}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("se esperaba 200, se obtuvo %d", rec.Code)
	}
	var payload map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("Error al decodificar: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("payload inesperado: %v", payload)
	}
}

func TestDebugProcessesListsRegistry(t *testing.T) {
	sandbox := &stubSandbox{
		procs: []domain.ManagedProcess{
			{ID: "p1", Command: gatewayCommand, Status: domain.StatusRunning, StartedAt: time.Now()},
		},
		logs: map[string]domain.ProcessLogs{"p1": {Stderr: "warmup"}},
	}
	mux := newTestMux(sandbox, config.ServerConfig{DebugEnabled: true}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/processes?logs=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("se esperaba 200, se obtuvo %d", rec.Code)
	}
	var views []struct {
		ID   string              `json:"id"`
		Logs *domain.ProcessLogs `json:"logs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("Error al decodificar: %v", err)
	}
	if len(views) != 1 || views[0].ID != "p1" {
		t.Fatalf("listado inesperado: %+v", views)
	}
	if views[0].Logs == nil || views[0].Logs.Stderr != "warmup" {
		t.Errorf("logs=true debe adjuntar la salida capturada: %+v", views[0].Logs)
	}
}

// Un fallo de introspección es un error del servidor, no una
// indisponibilidad del gateway: la respuesta es 500.
func TestDebugFaultsAnswer500(t *testing.T) {
	sandbox := &stubSandbox{listErr: errors.New("daemon caído")}
	mux := newTestMux(sandbox, config.ServerConfig{DebugEnabled: true}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/processes", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("/debug/processes: se esperaba 500, se obtuvo %d", rec.Code)
	}

	sandbox = &stubSandbox{
		procs: []domain.ManagedProcess{
			{ID: "gw", Command: gatewayCommand, Status: domain.StatusRunning, StartedAt: time.Now()},
		},
		logsErr: errors.New("endpoint de logs caído"),
	}
	mux = newTestMux(sandbox, config.ServerConfig{DebugEnabled: true}, nil)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/gateway/logs", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("/debug/gateway/logs: se esperaba 500, se obtuvo %d", rec.Code)
	}
}

// El historial de decisiones sale en orden cronológico aunque el store
// subyacente no garantice ninguno.
func TestDebugDecisionsChronological(t *testing.T) {
	decisions := store.NewCacheStore[domain.DecisionRecord]()
	base := time.Now()
	for i, offset := range []time.Duration{2 * time.Minute, 0, time.Minute} {
		record := domain.DecisionRecord{
			ID:       fmt.Sprintf("d%d", i),
			Decision: domain.DecisionStartFresh,
			At:       base.Add(offset),
		}
		if err := decisions.Put(record.ID, record); err != nil {
			t.Fatalf("Error al guardar decisión: %v", err)
		}
	}
	mux := newTestMuxWithStore(&stubSandbox{}, config.ServerConfig{DebugEnabled: true}, nil, decisions)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/decisions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("se esperaba 200, se obtuvo %d", rec.Code)
	}
	var records []domain.DecisionRecord
	if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
		t.Fatalf("Error al decodificar: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("se esperaban 3 decisiones, se obtuvieron %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].At.Before(records[i-1].At) {
			t.Fatalf("historial fuera de orden: %+v", records)
		}
	}
}

func TestDebugTokenGate(t *testing.T) {
	tokens := security.NewTokenManager("gate-secret", time.Hour)
	mux := newTestMux(&stubSandbox{}, config.ServerConfig{
		DebugEnabled: true,
		DebugSecret:  "gate-secret",
	}, tokens)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/version", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("sin token debe parecer una ruta inexistente, se obtuvo %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/version", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("con token inválido debe parecer una ruta inexistente, se obtuvo %d", rec.Code)
	}

	token, err := tokens.GenerateToken("admin")
	if err != nil {
		t.Fatalf("Error al generar token: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/debug/version", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("con token válido se esperaba 200, se obtuvo %d", rec.Code)
	}
}

func TestGatewayProxiesToReadyProcess(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("gateway says hi"))
	}))
	defer backend.Close()

	sandbox := &stubSandbox{
		procs: []domain.ManagedProcess{
			{ID: "gw", Command: gatewayCommand, Status: domain.StatusRunning, StartedAt: time.Now()},
		},
		addrs: map[string]string{"gw": strings.TrimPrefix(backend.URL, "http://")},
	}
	mux := newTestMux(sandbox, config.ServerConfig{}, nil)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/chat")
	if err != nil {
		t.Fatalf("Error en la petición: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("se esperaba 200, se obtuvo %d", resp.StatusCode)
	}
}

func TestGatewayFailureAnswers503WithHint(t *testing.T) {
	sandbox := &stubSandbox{
		startErr: errors.New("invalid api key provided"),
	}
	mux := newTestMux(sandbox, config.ServerConfig{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("se esperaba 503, se obtuvo %d", rec.Code)
	}
	var payload struct {
		Error string `json:"error"`
		Hint  string `json:"hint"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("Error al decodificar: %v", err)
	}
	if !strings.Contains(payload.Error, "invalid api key") {
		t.Errorf("falta la causa raíz: %q", payload.Error)
	}
	if !strings.Contains(payload.Hint, "credential") {
		t.Errorf("se esperaba pista de credenciales, se obtuvo %q", payload.Hint)
	}
}
