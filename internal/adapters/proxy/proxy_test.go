package proxy

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func proxyServer(t *testing.T, upstreamAddr string) *httptest.Server {
	t.Helper()
	p := New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Forward(w, r, upstreamAddr)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func hostOf(t *testing.T, rawURL string) string {
	t.Helper()
	return strings.TrimPrefix(rawURL, "http://")
}

func TestForwardHTTPVerbatim(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo-Path", r.URL.Path)
		w.Header().Set("X-Echo-Header", r.Header.Get("X-Custom"))
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	defer backend.Close()

	srv := proxyServer(t, hostOf(t, backend.URL))

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", strings.NewReader("hello"))
	req.Header.Set("X-Custom", "value")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Error en la petición: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("se esperaba 200, se obtuvo %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Echo-Path"); got != "/api/chat" {
		t.Errorf("la ruta no se reenvió: %q", got)
	}
	if got := resp.Header.Get("X-Echo-Header"); got != "value" {
		t.Errorf("la cabecera no se reenvió: %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Errorf("el cuerpo no se reenvió: %q", body)
	}
}

func TestForwardAnswers502WhenUpstreamDead(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Error al abrir listener: %v", err)
	}
	deadAddr := ln.Addr().String()
	ln.Close()

	srv := proxyServer(t, deadAddr)

	resp, err := http.Get(srv.URL + "/anything")
	if err != nil {
		t.Fatalf("Error en la petición: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("se esperaba 502, se obtuvo %d", resp.StatusCode)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Error al decodificar el payload de error: %v", err)
	}
	if !strings.Contains(payload.Error, "unreachable") {
		t.Errorf("payload de error inesperado: %q", payload.Error)
	}
}

func TestRelayWebSocketEndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	defer backend.Close()

	srv := proxyServer(t, hostOf(t, backend.URL))

	wsURL := "ws://" + hostOf(t, srv.URL) + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Error al conectar a través del túnel: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("se esperaba 101, se obtuvo %d", resp.StatusCode)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping through tunnel")); err != nil {
		t.Fatalf("Error al escribir: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Error al leer: %v", err)
	}
	if string(msg) != "ping through tunnel" {
		t.Errorf("eco incorrecto: %q", msg)
	}
}

func TestRelayWebSocketUpstreamDead(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Error al abrir listener: %v", err)
	}
	deadAddr := ln.Addr().String()
	ln.Close()

	srv := proxyServer(t, deadAddr)

	wsURL := "ws://" + hostOf(t, srv.URL) + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("se esperaba fallo de conexión contra un upstream muerto")
	}
	if resp == nil || resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("se esperaba 502 en el handshake, se obtuvo %+v", resp)
	}
}
