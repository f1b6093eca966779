package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"dev.rubentxu.devops-platform/gateway/internal/domain"
)

const upstreamDialTimeout = 10 * time.Second

// Proxy reenvía el tráfico del cliente tal cual al proceso gateway. Los
// intercambios HTTP planos pasan por un reverse proxy; los upgrades de
// WebSocket se retransmiten como un túnel transparente a nivel de bytes
// para que cliente y gateway negocien el protocolo directamente entre
// ellos.
type Proxy struct{}

func New() *Proxy {
	return &Proxy{}
}

// Forward retransmite una petición al gateway en addr. Las peticiones
// nunca se reintentan ni se repiten contra otra instancia: un upstream
// inalcanzable responde 502 de inmediato.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, addr string) {
	if websocket.IsWebSocketUpgrade(r) {
		p.relayWebSocket(w, r, addr)
		return
	}
	p.forwardHTTP(w, r, addr)
}

func (p *Proxy) forwardHTTP(w http.ResponseWriter, r *http.Request, addr string) {
	target := &url.URL{Scheme: "http", Host: addr}
	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy: upstream %s inalcanzable: %v", addr, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{
			"error": fmt.Sprintf("%v: %v", domain.ErrUpstreamUnreachable, err),
		})
	}
	rp.ServeHTTP(w, r)
}

// relayWebSocket secuestra la conexión del cliente, repite la petición de
// upgrade contra el gateway y después copia bytes en ambos sentidos sin
// tocar el framing. La negociación de subprotocolo, los pings y los
// handshakes de cierre pasan intactos.
func (p *Proxy) relayWebSocket(w http.ResponseWriter, r *http.Request, addr string) {
	upstream, err := net.DialTimeout("tcp", addr, upstreamDialTimeout)
	if err != nil {
		log.Printf("proxy: upstream websocket %s inalcanzable: %v", addr, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{
			"error": fmt.Sprintf("%v: %v", domain.ErrUpstreamUnreachable, err),
		})
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		upstream.Close()
		http.Error(w, "connection cannot be hijacked", http.StatusInternalServerError)
		return
	}
	client, clientBuf, err := hijacker.Hijack()
	if err != nil {
		upstream.Close()
		log.Printf("proxy: hijack fallido: %v", err)
		return
	}

	// Se repite la petición de upgrade tal cual contra el gateway.
	if err := writeUpgradeRequest(upstream, r); err != nil {
		log.Printf("proxy: fallo al repetir el upgrade contra %s: %v", addr, err)
		client.Close()
		upstream.Close()
		return
	}
	// Los bytes que el servidor almacenó tras la cabecera pertenecen al túnel.
	if n := clientBuf.Reader.Buffered(); n > 0 {
		pending, _ := clientBuf.Reader.Peek(n)
		if _, err := upstream.Write(pending); err != nil {
			client.Close()
			upstream.Close()
			return
		}
	}

	done := make(chan struct{}, 2)
	go pipe(upstream, client, done)
	go pipe(client, upstream, done)
	<-done
	client.Close()
	upstream.Close()
	<-done
}

func writeUpgradeRequest(upstream net.Conn, r *http.Request) error {
	if _, err := fmt.Fprintf(upstream, "%s %s HTTP/1.1\r\n", r.Method, r.URL.RequestURI()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(upstream, "Host: %s\r\n", r.Host); err != nil {
		return err
	}
	if err := r.Header.Write(upstream); err != nil {
		return err
	}
	_, err := io.WriteString(upstream, "\r\n")
	return err
}

func pipe(dst, src net.Conn, done chan<- struct{}) {
	io.Copy(dst, src)
	done <- struct{}{}
}
