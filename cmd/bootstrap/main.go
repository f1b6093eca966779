// gateway-bootstrap prepara un sandbox nuevo y cede el control al servicio
// gateway: restaura el estado persistido desde el bucket de sincronización,
// parchea la configuración del servicio con el entorno ambiente, deja un
// bucle de sincronización en segundo plano y se reemplaza a sí mismo por el
// binario del servicio.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"dev.rubentxu.devops-platform/gateway/config"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/syncer"
	"dev.rubentxu.devops-platform/gateway/internal/domain"
)

func main() {
	syncMode := flag.Bool("sync", false, "ejecuta el bucle periódico de sincronización de estado en lugar del bootstrap")
	flag.Parse()

	cfg := config.LoadSyncConfig()

	if *syncMode {
		runSyncLoop(cfg)
		return
	}

	ctx := context.Background()

	if cfg.Bucket != "" {
		restorer, err := syncer.NewRestorer(ctx, cfg.Bucket, cfg.Region, cfg.StateDir)
		if err != nil {
			log.Fatalf("Error al crear el restaurador: %v", err)
		}
		if err := restorer.Restore(ctx, cfg.ConfigFile); err != nil {
			log.Fatalf("Error al restaurar el estado desde s3://%s: %v", cfg.Bucket, err)
		}
	} else {
		log.Println("SYNC_BUCKET sin definir, se omiten restauración y sincronización")
	}

	env := domain.CollectEnvironment(os.Getenv)
	if err := syncer.ApplyOverrides(cfg.ConfigFile, env); err != nil {
		log.Fatalf("Error al parchear %s: %v", cfg.ConfigFile, err)
	}

	if cfg.Bucket != "" {
		if err := spawnSyncChild(); err != nil {
			log.Printf("Aviso: no se pudo arrancar el bucle de sincronización: %v", err)
		}
	}

	// Este proceso se reemplaza por el servicio para que herede el pid y
	// la entrega de señales del sandbox.
	argv := append([]string{cfg.ServiceBin}, flag.Args()...)
	if err := syscall.Exec(cfg.ServiceBin, argv, os.Environ()); err != nil {
		log.Fatalf("Error al ejecutar %s: %v", cfg.ServiceBin, err)
	}
}

// spawnSyncChild reinvoca este binario en modo sync, desligado del grupo de
// procesos actual para que sobreviva al exec posterior.
func spawnSyncChild() error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(self, "-sync")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	log.Printf("Bucle de sincronización arrancado (pid=%d)", cmd.Process.Pid)
	return cmd.Process.Release()
}

func runSyncLoop(cfg config.SyncConfig) {
	if cfg.Bucket == "" {
		log.Fatal("SYNC_BUCKET sin definir")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := syncer.NewSyncer(ctx, cfg)
	if err != nil {
		log.Fatalf("Error al crear el sincronizador: %v", err)
	}
	log.Printf("Sincronizando %s a s3://%s cada %s", cfg.StateDir, cfg.Bucket, cfg.Interval)
	s.Run(ctx)
}
