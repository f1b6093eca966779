package config

import (
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GatewayPort es el puerto fijo en el que escucha el proceso gateway
// supervisado dentro del sandbox. El supervisor lo sondea y el proxy
// reenvía hacia él.
const GatewayPort = 18789

// ReadyTimeout es el presupuesto de sondeo de readiness que se aplica por
// igual a toda espera, incluidos los procesos que el registro ya reporta
// como running. Un proceso puede marcarse running antes de tener su socket
// de escucha ligado, así que el plazo nunca se acorta según el estado
// reportado.
const ReadyTimeout = 180 * time.Second

type ServerConfig struct {
	BindAddr     string
	DebugEnabled bool
	DebugSecret  string
}

type SandboxConfig struct {
	Driver     string // docker | local | kubernetes
	Image      string
	Command    []string
	Namespace  string
	Kubeconfig string
	StateDir   string
}

type SyncConfig struct {
	Bucket     string
	Region     string
	StateDir   string
	ConfigFile string
	MarkerFile string
	ServiceBin string
	Interval   time.Duration
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{
		BindAddr:     getEnvironmentValue("GATEWAY_ADDR", "0.0.0.0:8080"),
		DebugEnabled: getEnvironmentBool("GATEWAY_DEBUG", false),
		DebugSecret:  getEnvironmentValue("GATEWAY_DEBUG_SECRET", ""),
	}
}

func LoadSandboxConfig() SandboxConfig {
	command := strings.Fields(getEnvironmentValue("GATEWAY_COMMAND", "/usr/local/bin/gateway-bootstrap"))
	return SandboxConfig{
		Driver:     getEnvironmentValue("SANDBOX_DRIVER", "docker"),
		Image:      getEnvironmentValue("GATEWAY_IMAGE", "devops-platform/gateway-runtime:latest"),
		Command:    command,
		Namespace:  getEnvironmentValue("KUBE_NAMESPACE", "default"),
		Kubeconfig: getEnvironmentValue("KUBECONFIG", ""),
		StateDir:   getEnvironmentValue("GATEWAY_STATE_DIR", "/var/lib/gateway"),
	}
}

func LoadSyncConfig() SyncConfig {
	stateDir := getEnvironmentValue("GATEWAY_STATE_DIR", "/var/lib/gateway")
	intervalStr := getEnvironmentValue("SYNC_INTERVAL_SECONDS", "30")
	interval, err := strconv.Atoi(intervalStr)
	if err != nil || interval < 1 {
		log.Printf("SYNC_INTERVAL_SECONDS inválido %q, se usa 30", intervalStr)
		interval = 30
	}
	return SyncConfig{
		Bucket:     getEnvironmentValue("SYNC_BUCKET", ""),
		Region:     getEnvironmentValue("AWS_REGION", "us-east-1"),
		StateDir:   stateDir,
		ConfigFile: getEnvironmentValue("GATEWAY_CONFIG_FILE", filepath.Join(stateDir, "config", "gateway.yaml")),
		MarkerFile: getEnvironmentValue("SYNC_MARKER_FILE", filepath.Join(stateDir, ".last-sync")),
		ServiceBin: getEnvironmentValue("GATEWAY_SERVICE_BIN", "/usr/local/bin/gateway-service"),
		Interval:   time.Duration(interval) * time.Second,
	}
}
