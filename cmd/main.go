package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dev.rubentxu.devops-platform/gateway/config"
	gatewayhttp "dev.rubentxu.devops-platform/gateway/internal/adapters/http"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/proxy"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/sandbox"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/security"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/store"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/supervisor"
	"dev.rubentxu.devops-platform/gateway/internal/adapters/websockets"
	"dev.rubentxu.devops-platform/gateway/internal/domain"
	"dev.rubentxu.devops-platform/gateway/internal/ports"
	"dev.rubentxu.devops-platform/gateway/internal/version"
)

const debugTokenTTL = 12 * time.Hour

func main() {
	serverCfg := config.LoadServerConfig()
	sandboxCfg := config.LoadSandboxConfig()

	box, err := sandbox.NewFromConfig(sandboxCfg)
	if err != nil {
		log.Fatalf("Error al crear el adaptador de sandbox: %v", err)
	}

	var decisions ports.Store[domain.DecisionRecord] = store.NewCacheStore[domain.DecisionRecord]()
	spec := domain.ProcessSpec{
		Command:     sandboxCfg.Command,
		ServicePort: config.GatewayPort,
	}
	sup := supervisor.New(box, spec, supervisor.NewProber(), config.ReadyTimeout, decisions)

	var tokens *security.TokenManager
	if serverCfg.DebugSecret != "" {
		tokens = security.NewTokenManager(serverCfg.DebugSecret, debugTokenTTL)
	}

	server := gatewayhttp.NewServer(serverCfg, sup, box, proxy.New(), decisions, tokens, config.GatewayPort)
	wsHandler := websockets.NewLogsHandler(sup, box)
	mux := gatewayhttp.SetupRoutes(server, wsHandler)

	httpServer := &http.Server{
		Addr:    serverCfg.BindAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("╔════════════════════════════════════════════╗")
		log.Printf("║  Gateway supervisor %s", version.Get().Version)
		log.Printf("║  Escuchando en %s", serverCfg.BindAddr)
		log.Printf("║  Driver de sandbox: %s", sandboxCfg.Driver)
		log.Printf("║  Superficie de debug habilitada: %v", serverCfg.DebugEnabled)
		log.Printf("╚════════════════════════════════════════════╝")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error al iniciar el servidor: %v", err)
		}
	}()

	handleSignals(httpServer)
}

func handleSignals(server *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Println("Señal recibida, apagando...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error durante el apagado: %v", err)
	}
}
