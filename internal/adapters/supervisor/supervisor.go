package supervisor

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"dev.rubentxu.devops-platform/gateway/internal/domain"
	"dev.rubentxu.devops-platform/gateway/internal/ports"
)

// supervisionKey es la identidad fija del gateway: cada sandbox aloja
// exactamente un gateway, así que todas las llamadas concurrentes a Ensure
// colapsan en un único ciclo de decisión en vuelo.
const supervisionKey = "gateway"

// Supervisor decide, por petición, si reutilizar, reiniciar o arrancar de
// cero el proceso gateway, y devuelve una referencia solo cuando el proceso
// está confirmado como alcanzable en su puerto de servicio.
type Supervisor struct {
	sandbox   ports.Sandbox
	prober    *Prober
	spec      domain.ProcessSpec
	timeout   time.Duration
	group     singleflight.Group
	decisions ports.Store[domain.DecisionRecord]
}

func New(sandbox ports.Sandbox, spec domain.ProcessSpec, prober *Prober, timeout time.Duration, decisions ports.Store[domain.DecisionRecord]) *Supervisor {
	return &Supervisor{
		sandbox:   sandbox,
		prober:    prober,
		spec:      spec,
		timeout:   timeout,
		decisions: decisions,
	}
}

// Ensure devuelve un proceso gateway con readiness confirmada. Es
// idempotente y seguro bajo concurrencia: las llamadas solapadas comparten
// un único ciclo en vuelo en lugar de competir por el registro y los
// arranques.
func (s *Supervisor) Ensure(ctx context.Context, env domain.GatewayEnvironment) (domain.ManagedProcess, error) {
	v, err, _ := s.group.Do(supervisionKey, func() (interface{}, error) {
		return s.ensure(ctx, env)
	})
	if err != nil {
		return domain.ManagedProcess{}, err
	}
	return v.(domain.ManagedProcess), nil
}

// Current informa del gateway que el registro seleccionaría ahora mismo,
// sin sondear ni arrancar nada.
func (s *Supervisor) Current(ctx context.Context) (domain.ManagedProcess, bool) {
	return s.findGateway(ctx)
}

func (s *Supervisor) ensure(ctx context.Context, env domain.GatewayEnvironment) (domain.ManagedProcess, error) {
	existing, found := s.findGateway(ctx)
	if !found {
		return s.startFresh(ctx, env, domain.DecisionStartFresh, "")
	}

	addr, result, err := s.resolveAndProbe(ctx, existing)
	if err == nil && result == domain.Ready {
		s.record(domain.DecisionReuseExisting, existing.ID, "", nil)
		return existing, nil
	}
	if err != nil {
		log.Printf("supervisor: sonda contra el proceso %s falló: %v", existing.ID, err)
	}

	// El presupuesto completo se agotó contra un proceso que el registro
	// reporta vivo: se asume atascado. El kill es best-effort; un fallo
	// aquí no debe enmascarar el camino de reinicio.
	log.Printf("supervisor: el proceso %s nunca fue alcanzable en %q, reiniciando", existing.ID, addr)
	if err := s.sandbox.KillProcess(ctx, existing.ID); err != nil {
		log.Printf("supervisor: el kill del proceso atascado %s falló: %v", existing.ID, err)
	}
	return s.startFresh(ctx, env, domain.DecisionRestartStuck, existing.ID)
}

// findGateway recorre el registro buscando un proceso vivo que coincida con
// la invocación conocida del gateway. Los fallos del registro se tratan como
// registro vacío, nunca se propagan. Cuando hay varias coincidencias gana la
// arrancada más recientemente; el orden de enumeración del runtime no
// ofrece garantías.
func (s *Supervisor) findGateway(ctx context.Context) (domain.ManagedProcess, bool) {
	processes, err := s.sandbox.ListProcesses(ctx)
	if err != nil {
		log.Printf("supervisor: consulta al registro falló, se trata como vacío: %v", err)
		return domain.ManagedProcess{}, false
	}

	var match domain.ManagedProcess
	found := false
	for _, proc := range processes {
		if !proc.Alive() || !commandMatches(proc.Command, s.spec.Command) {
			continue
		}
		if !found || proc.StartedAt.After(match.StartedAt) {
			match = proc
			found = true
		}
	}
	return match, found
}

// resolveAndProbe espera, dentro de un único presupuesto compartido, a que
// la dirección del proceso sea resoluble y después a que su puerto acepte
// conexiones. Una dirección aún no publicada (pod sin IP, contenedor sin
// binding) es parte normal del arranque y se reintenta hasta agotar el
// presupuesto; no corta el ciclo.
func (s *Supervisor) resolveAndProbe(ctx context.Context, proc domain.ManagedProcess) (string, domain.ReadinessResult, error) {
	deadline := time.Now().Add(s.timeout)
	var addr string
	for {
		a, err := s.sandbox.Addr(ctx, proc, s.spec.ServicePort)
		if err == nil && a != "" {
			addr = a
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", domain.TimedOut, nil
		}
		if remaining < s.prober.interval {
			time.Sleep(remaining)
		} else {
			time.Sleep(s.prober.interval)
		}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return addr, domain.TimedOut, nil
	}
	result, err := s.prober.WaitForReady(addr, remaining)
	return addr, result, err
}

func (s *Supervisor) startFresh(ctx context.Context, env domain.GatewayEnvironment, decision domain.Decision, killedID string) (domain.ManagedProcess, error) {
	spec := s.spec
	if len(env) > 0 {
		spec.Env = env
	}
	proc, err := s.sandbox.StartProcess(ctx, spec)
	if err != nil {
		launchErr := &domain.LaunchError{Err: err}
		s.record(decision, "", killedID, launchErr)
		return domain.ManagedProcess{}, launchErr
	}

	addr, result, err := s.resolveAndProbe(ctx, proc)
	if err != nil {
		s.record(decision, proc.ID, killedID, err)
		return domain.ManagedProcess{}, err
	}

	if result == domain.Ready {
		if logs, err := s.sandbox.ProcessLogs(ctx, proc.ID); err != nil {
			log.Printf("supervisor: no se pudo obtener la salida de arranque de %s: %v", proc.ID, err)
		} else if out := strings.TrimSpace(logs.Stdout + logs.Stderr); out != "" {
			log.Printf("supervisor: salida de arranque del gateway %s: %s", proc.ID, out)
		}
		s.record(decision, proc.ID, killedID, nil)
		return proc, nil
	}

	// Readiness agotada sobre el proceso recién arrancado. El fallo lleva
	// embebido el stream de error capturado cuando se puede obtener; si la
	// propia lectura falla, se reporta solo el timeout en lugar del error
	// de contabilidad.
	if addr == "" {
		addr = "(unresolved)"
	}
	startupErr := &domain.StartupError{Addr: addr, Timeout: s.timeout}
	logs, err := s.sandbox.ProcessLogs(ctx, proc.ID)
	if err != nil {
		log.Printf("supervisor: no se pudo obtener el diagnóstico de %s: %v", proc.ID, err)
	} else {
		diagnostics := strings.TrimSpace(logs.Stderr)
		if diagnostics == "" {
			diagnostics = "(empty)"
		}
		startupErr.Diagnostics = diagnostics
	}
	s.record(decision, proc.ID, killedID, startupErr)
	return domain.ManagedProcess{}, startupErr
}

func (s *Supervisor) record(decision domain.Decision, processID, killedID string, failure error) {
	if s.decisions == nil {
		return
	}
	record := domain.DecisionRecord{
		ID:        uuid.NewString(),
		Decision:  decision,
		ProcessID: processID,
		KilledID:  killedID,
		At:        time.Now(),
	}
	if failure != nil {
		record.Error = failure.Error()
	}
	if err := s.decisions.Put(record.ID, record); err != nil {
		log.Printf("supervisor: no se pudo registrar la decisión: %v", err)
	}
}

// commandMatches indica si una línea de comando del registro corresponde a
// la invocación conocida del gateway. El registro puede añadir argumentos,
// así que la comparación es de prefijo sobre el comando unido.
func commandMatches(procCommand, gatewayCommand []string) bool {
	if len(procCommand) == 0 || len(gatewayCommand) == 0 {
		return false
	}
	return strings.HasPrefix(strings.Join(procCommand, " "), strings.Join(gatewayCommand, " "))
}
