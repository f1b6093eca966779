package domain

import (
	"time"
)

// ProcessStatus es el estado de ciclo de vida reportado por el runtime del
// sandbox.
type ProcessStatus string

const (
	StatusStarting ProcessStatus = "starting"
	StatusRunning  ProcessStatus = "running"
	StatusExited   ProcessStatus = "exited"
	StatusFailed   ProcessStatus = "failed"
)

// ManagedProcess es una vista de solo lectura de un proceso propiedad del
// runtime del sandbox. El supervisor guarda únicamente referencias; toda
// mutación pasa por las operaciones de arranque y kill del sandbox.
type ManagedProcess struct {
	ID         string         `json:"id"`
	Command    []string       `json:"command"`
	Status     ProcessStatus  `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	ExitCode   *int           `json:"exit_code,omitempty"`
}

// Alive indica si el proceso es candidato a reutilización.
func (p ManagedProcess) Alive() bool {
	return p.Status == StatusStarting || p.Status == StatusRunning
}

// ProcessSpec describe un proceso a lanzar. Un Env vacío significa "sin
// override": aplican los valores por defecto del runtime, en lugar de que
// un mapeo vacío los pise.
type ProcessSpec struct {
	Command     []string
	Env         GatewayEnvironment
	ServicePort int
}

// ProcessLogs contiene los búferes de salida capturados de un proceso.
type ProcessLogs struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// ReadinessResult es el desenlace de una sonda de salud. No hay estados
// parciales: o el puerto aceptó una conexión TCP o saltó el timeout.
type ReadinessResult int

const (
	Ready ReadinessResult = iota
	TimedOut
)

func (r ReadinessResult) String() string {
	if r == Ready {
		return "ready"
	}
	return "timed-out"
}

// Decision es el resultado de supervisión de un ciclo de decisión. Es
// derivado, el runtime no lo almacena; el supervisor lo registra para
// introspección.
type Decision string

const (
	DecisionReuseExisting Decision = "reuse-existing"
	DecisionRestartStuck  Decision = "restart-stuck"
	DecisionStartFresh    Decision = "start-fresh"
)

// DecisionRecord es una entrada del historial de supervisión.
type DecisionRecord struct {
	ID        string    `json:"id"`
	Decision  Decision  `json:"decision"`
	ProcessID string    `json:"process_id,omitempty"`
	KilledID  string    `json:"killed_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}
