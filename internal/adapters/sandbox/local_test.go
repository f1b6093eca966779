package sandbox

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"dev.rubentxu.devops-platform/gateway/internal/domain"
)

func newLocalForTest(t *testing.T) *LocalSandbox {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("el manejo de grupos de procesos es solo POSIX")
	}
	box, err := NewLocalSandbox(t.TempDir(), []string{"/bin/sh"})
	if err != nil {
		t.Fatalf("NewLocalSandbox: %v", err)
	}
	return box
}

func TestLocalSandboxCapturesOutput(t *testing.T) {
	box := newLocalForTest(t)
	ctx := context.Background()

	proc, err := box.StartProcess(ctx, domain.ProcessSpec{
		Command: []string{"/bin/sh", "-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("StartProcess: %v", err)
	}

	// Margen para que el shell termine y el reaper corra.
	time.Sleep(300 * time.Millisecond)

	logs, err := box.ProcessLogs(ctx, proc.ID)
	if err != nil {
		t.Fatalf("ProcessLogs: %v", err)
	}
	if strings.TrimSpace(logs.Stdout) != "out" {
		t.Errorf("captura de stdout incorrecta: %q", logs.Stdout)
	}
	if strings.TrimSpace(logs.Stderr) != "err" {
		t.Errorf("captura de stderr incorrecta: %q", logs.Stderr)
	}

	procs, err := box.ListProcesses(ctx)
	if err != nil {
		t.Fatalf("ListProcesses: %v", err)
	}
	var found *domain.ManagedProcess
	for i := range procs {
		if procs[i].ID == proc.ID {
			found = &procs[i]
		}
	}
	if found == nil {
		t.Fatal("el proceso arrancado no aparece en el registro")
	}
	if found.Status != domain.StatusExited {
		t.Errorf("se esperaba exited, se obtuvo %s", found.Status)
	}
	if found.ExitCode == nil || *found.ExitCode != 0 {
		t.Errorf("se esperaba código de salida 0, se obtuvo %v", found.ExitCode)
	}
}

// La instantánea que devuelve StartProcess es del arranque: un hijo que
// termina al instante no debe colarse en el valor devuelto mientras el
// reaper actualiza el registro en paralelo.
func TestLocalSandboxStartSnapshotStable(t *testing.T) {
	box := newLocalForTest(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		proc, err := box.StartProcess(ctx, domain.ProcessSpec{
			Command: []string{"/bin/sh", "-c", "true"},
		})
		if err != nil {
			t.Fatalf("StartProcess: %v", err)
		}
		if proc.Status != domain.StatusRunning {
			t.Fatalf("la instantánea de arranque debe reportar running, se obtuvo %s", proc.Status)
		}
		if proc.FinishedAt != nil || proc.ExitCode != nil {
			t.Fatalf("la instantánea de arranque no debe llevar datos de salida: %+v", proc)
		}
	}
}

func TestLocalSandboxKill(t *testing.T) {
	box := newLocalForTest(t)
	ctx := context.Background()

	proc, err := box.StartProcess(ctx, domain.ProcessSpec{
		Command: []string{"/bin/sh", "-c", "sleep 30"},
	})
	if err != nil {
		t.Fatalf("StartProcess: %v", err)
	}

	if err := box.KillProcess(ctx, proc.ID); err != nil {
		t.Fatalf("KillProcess: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	procs, err := box.ListProcesses(ctx)
	if err != nil {
		t.Fatalf("ListProcesses: %v", err)
	}
	for _, p := range procs {
		if p.ID == proc.ID && p.Alive() {
			t.Fatalf("el proceso sigue vivo tras el kill: %+v", p)
		}
	}
}

func TestLocalSandboxFailedExit(t *testing.T) {
	box := newLocalForTest(t)
	ctx := context.Background()

	proc, err := box.StartProcess(ctx, domain.ProcessSpec{
		Command: []string{"/bin/sh", "-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("StartProcess: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	procs, err := box.ListProcesses(ctx)
	if err != nil {
		t.Fatalf("ListProcesses: %v", err)
	}
	for _, p := range procs {
		if p.ID != proc.ID {
			continue
		}
		if p.Status != domain.StatusFailed {
			t.Errorf("se esperaba failed, se obtuvo %s", p.Status)
		}
		if p.ExitCode == nil || *p.ExitCode != 3 {
			t.Errorf("se esperaba código de salida 3, se obtuvo %v", p.ExitCode)
		}
	}
}
