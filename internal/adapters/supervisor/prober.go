package supervisor

import (
	"net"
	"time"

	"dev.rubentxu.devops-platform/gateway/internal/domain"
)

const (
	probeInterval    = 500 * time.Millisecond
	probeDialTimeout = 2 * time.Second
	// finalDialTimeout acota el último intento en el límite del plazo, para
	// que el plazo agotado no suprima el dial final.
	finalDialTimeout = 50 * time.Millisecond
)

// Prober bloquea hasta que un puerto TCP acepta conexiones o expira el
// plazo. La espera solo la termina su propio plazo; no hay vía de aborto
// desde el llamador, así que una sonda en vuelo siempre llega a un
// desenlace definido.
type Prober struct {
	interval time.Duration
}

func NewProber() *Prober {
	return &Prober{interval: probeInterval}
}

// WaitForReady marca addr hasta que la conexión es aceptada o expira el
// plazo. Nunca devuelve TimedOut antes de que el plazo haya transcurrido:
// la espera entre intentos se recorta al tiempo restante y siempre hay un
// último dial en el límite. Un timeout que salta es un desenlace normal
// (TimedOut), no un error; el retorno de error queda reservado para fallos
// de transporte, como una dirección inutilizable, que ninguna espera
// arreglaría.
func (p *Prober) WaitForReady(addr string, timeout time.Duration) (domain.ReadinessResult, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return domain.TimedOut, &domain.ProbeError{Addr: addr, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		dialTimeout := probeDialTimeout
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
		if dialTimeout < finalDialTimeout {
			dialTimeout = finalDialTimeout
		}
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			conn.Close()
			return domain.Ready, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return domain.TimedOut, nil
		}
		if remaining < p.interval {
			time.Sleep(remaining)
		} else {
			time.Sleep(p.interval)
		}
	}
}
