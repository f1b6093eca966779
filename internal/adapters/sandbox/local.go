package sandbox

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"dev.rubentxu.devops-platform/gateway/internal/domain"
)

// LocalSandbox ejecuta el gateway como hijo directo en el host. El registro
// es la unión de los procesos que él mismo lanzó y de los supervivientes
// coincidentes hallados en la tabla de procesos del host, de modo que un
// gateway que sobrevive a una ejecución previa del supervisor sigue
// descubriéndose y reutilizándose.
type LocalSandbox struct {
	stateDir string
	// matchToken acota los barridos de la tabla del host al binario del gateway.
	matchToken string

	mu    sync.RWMutex
	procs map[string]*localProcess
}

type localProcess struct {
	info       domain.ManagedProcess
	cmd        *exec.Cmd
	stdoutPath string
	stderrPath string
}

func NewLocalSandbox(stateDir string, gatewayCommand []string) (*LocalSandbox, error) {
	if err := os.MkdirAll(filepath.Join(stateDir, "logs"), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	matchToken := "gateway"
	if len(gatewayCommand) > 0 {
		matchToken = filepath.Base(gatewayCommand[0])
	}
	return &LocalSandbox{
		stateDir:   stateDir,
		matchToken: matchToken,
		procs:      make(map[string]*localProcess),
	}, nil
}

func (l *LocalSandbox) ListProcesses(ctx context.Context) ([]domain.ManagedProcess, error) {
	l.mu.RLock()
	result := make([]domain.ManagedProcess, 0, len(l.procs))
	trackedPIDs := make(map[int32]bool, len(l.procs))
	for _, lp := range l.procs {
		result = append(result, lp.info)
		if lp.cmd.Process != nil {
			trackedPIDs[int32(lp.cmd.Process.Pid)] = true
		}
	}
	l.mu.RUnlock()

	survivors, err := l.scanHost(ctx, trackedPIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	return append(result, survivors...), nil
}

// scanHost localiza en la tabla de procesos del host los gateways que esta
// instancia del sandbox no lanzó por sí misma.
func (l *LocalSandbox) scanHost(ctx context.Context, trackedPIDs map[int32]bool) ([]domain.ManagedProcess, error) {
	hostProcs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var survivors []domain.ManagedProcess
	for _, hp := range hostProcs {
		if trackedPIDs[hp.Pid] {
			continue
		}
		cmdline, err := hp.CmdlineSliceWithContext(ctx)
		if err != nil || len(cmdline) == 0 {
			continue
		}
		if !strings.Contains(strings.Join(cmdline, " "), l.matchToken) {
			continue
		}
		proc := domain.ManagedProcess{
			ID:      fmt.Sprintf("pid:%d", hp.Pid),
			Command: cmdline,
			Status:  domain.StatusRunning,
		}
		if createdMs, err := hp.CreateTimeWithContext(ctx); err == nil {
			proc.StartedAt = time.UnixMilli(createdMs)
		}
		survivors = append(survivors, proc)
	}
	return survivors, nil
}

func (l *LocalSandbox) StartProcess(ctx context.Context, spec domain.ProcessSpec) (domain.ManagedProcess, error) {
	if len(spec.Command) == 0 {
		return domain.ManagedProcess{}, fmt.Errorf("empty command")
	}

	id := uuid.NewString()
	stdoutPath := filepath.Join(l.stateDir, "logs", id+".stdout")
	stderrPath := filepath.Join(l.stateDir, "logs", id+".stderr")
	stdout, err := os.Create(stdoutPath)
	if err != nil {
		return domain.ManagedProcess{}, fmt.Errorf("creating stdout capture: %w", err)
	}
	stderr, err := os.Create(stderrPath)
	if err != nil {
		stdout.Close()
		return domain.ManagedProcess{}, fmt.Errorf("creating stderr capture: %w", err)
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Env = append(os.Environ(), buildEnvVars(spec.Env)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Grupo de procesos propio para que un kill alcance todo el árbol del gateway.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return domain.ManagedProcess{}, fmt.Errorf("starting %s: %w", spec.Command[0], err)
	}

	lp := &localProcess{
		info: domain.ManagedProcess{
			ID:        id,
			Command:   spec.Command,
			Status:    domain.StatusRunning,
			StartedAt: time.Now(),
		},
		cmd:        cmd,
		stdoutPath: stdoutPath,
		stderrPath: stderrPath,
	}
	// Copia del valor antes de lanzar el reaper: un hijo que termina al
	// instante mutaría lp.info mientras el llamador aún lo lee.
	info := lp.info

	l.mu.Lock()
	l.procs[id] = lp
	l.mu.Unlock()

	go l.reap(lp, stdout, stderr)
	log.Printf("sandbox: proceso %s arrancado (pid=%d)", id, cmd.Process.Pid)
	return info, nil
}

func (l *LocalSandbox) reap(lp *localProcess, stdout, stderr *os.File) {
	err := lp.cmd.Wait()
	stdout.Close()
	stderr.Close()

	now := time.Now()
	code := lp.cmd.ProcessState.ExitCode()

	l.mu.Lock()
	defer l.mu.Unlock()
	lp.info.FinishedAt = &now
	lp.info.ExitCode = &code
	if err != nil || code != 0 {
		lp.info.Status = domain.StatusFailed
	} else {
		lp.info.Status = domain.StatusExited
	}
}

func (l *LocalSandbox) KillProcess(ctx context.Context, id string) error {
	l.mu.RLock()
	lp, tracked := l.procs[id]
	l.mu.RUnlock()

	if tracked {
		if lp.cmd.Process == nil {
			return fmt.Errorf("process %s has no pid", id)
		}
		// Un pid negativo apunta al grupo de procesos completo.
		if err := syscall.Kill(-lp.cmd.Process.Pid, syscall.SIGKILL); err != nil {
			return fmt.Errorf("killing process group of %s: %w", id, err)
		}
		return nil
	}

	pid, ok := survivorPID(id)
	if !ok {
		return fmt.Errorf("unknown process %s", id)
	}
	hp, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("resolving process %s: %w", id, err)
	}
	if err := hp.KillWithContext(ctx); err != nil {
		return fmt.Errorf("killing process %s: %w", id, err)
	}
	return nil
}

func (l *LocalSandbox) ProcessLogs(ctx context.Context, id string) (domain.ProcessLogs, error) {
	l.mu.RLock()
	lp, tracked := l.procs[id]
	l.mu.RUnlock()
	if !tracked {
		return domain.ProcessLogs{}, fmt.Errorf("no captured output for process %s", id)
	}

	stdout, err := os.ReadFile(lp.stdoutPath)
	if err != nil {
		return domain.ProcessLogs{}, fmt.Errorf("reading stdout capture: %w", err)
	}
	stderr, err := os.ReadFile(lp.stderrPath)
	if err != nil {
		return domain.ProcessLogs{}, fmt.Errorf("reading stderr capture: %w", err)
	}
	return domain.ProcessLogs{Stdout: string(stdout), Stderr: string(stderr)}, nil
}

func (l *LocalSandbox) Addr(ctx context.Context, proc domain.ManagedProcess, port int) (string, error) {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), nil
}

func survivorPID(id string) (int32, bool) {
	raw, ok := strings.CutPrefix(id, "pid:")
	if !ok {
		return 0, false
	}
	pid, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(pid), true
}
