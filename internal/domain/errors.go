package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrRegistryUnavailable señala que el registro de procesos del sandbox no
// pudo consultarse. Los llamadores lo tratan como "ningún proceso
// encontrado", nunca como fatal.
var ErrRegistryUnavailable = errors.New("sandbox process registry unavailable")

// ErrUpstreamUnreachable señala un fallo de conexión con el backend cuando
// la supervisión ya había concluido con éxito. Llega al llamador como 502.
var ErrUpstreamUnreachable = errors.New("gateway upstream unreachable")

// ProbeError es un fallo inesperado de transporte durante una espera de
// readiness, a diferencia de un puerto que simplemente no contesta antes
// del plazo.
type ProbeError struct {
	Addr string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("readiness probe against %q failed: %v", e.Addr, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// LaunchError significa que la propia llamada de arranque falló; no se
// creó ningún proceso.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("starting gateway process: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// StartupError significa que un proceso recién arrancado nunca llegó a ser
// alcanzable dentro del plazo completo de sondeo. Diagnostics lleva el
// stream de error capturado cuando pudo obtenerse ("(empty)" si el stream
// no tenía nada); queda vacío cuando la propia lectura falló, de modo que
// el timeout sigue siendo la causa raíz reportada.
type StartupError struct {
	Addr        string
	Timeout     time.Duration
	Diagnostics string
}

func (e *StartupError) Error() string {
	if e.Diagnostics == "" {
		return fmt.Sprintf("gateway did not become reachable on %s within %s", e.Addr, e.Timeout)
	}
	return fmt.Sprintf("gateway did not become reachable on %s within %s; captured stderr: %s", e.Addr, e.Timeout, e.Diagnostics)
}
