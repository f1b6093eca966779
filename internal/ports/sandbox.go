package ports

import (
	"context"

	"dev.rubentxu.devops-platform/gateway/internal/domain"
)

// Sandbox es la superficie de control de procesos del runtime aislado que
// aloja el gateway. Es la única fuente de verdad sobre qué proceso es "el"
// gateway; ni el supervisor ni el proxy guardan estado propio entre
// peticiones.
type Sandbox interface {
	// ListProcesses enumera los procesos gestionados. Devuelve un error
	// que envuelve domain.ErrRegistryUnavailable cuando el propio runtime
	// no puede consultarse; los llamadores lo tratan como registro vacío.
	ListProcesses(ctx context.Context) ([]domain.ManagedProcess, error)

	// StartProcess lanza un proceso nuevo a partir de la especificación.
	StartProcess(ctx context.Context, spec domain.ProcessSpec) (domain.ManagedProcess, error)

	// KillProcess termina el proceso de forma forzosa.
	KillProcess(ctx context.Context, id string) error

	// ProcessLogs obtiene los búferes capturados de stdout y stderr.
	ProcessLogs(ctx context.Context, id string) (domain.ProcessLogs, error)

	// Addr resuelve un host:port marcable para el puerto dado en el
	// espacio de red del proceso.
	Addr(ctx context.Context, proc domain.ManagedProcess, port int) (string, error)
}
