package sandbox

import (
	"fmt"

	"dev.rubentxu.devops-platform/gateway/config"
	"dev.rubentxu.devops-platform/gateway/internal/ports"
)

// NewFromConfig construye el adaptador de sandbox seleccionado por SANDBOX_DRIVER.
func NewFromConfig(cfg config.SandboxConfig) (ports.Sandbox, error) {
	switch cfg.Driver {
	case "docker":
		return NewDockerSandbox(cfg.Image)
	case "local":
		return NewLocalSandbox(cfg.StateDir, cfg.Command)
	case "kubernetes":
		return NewKubernetesSandbox(cfg.Namespace, cfg.Kubeconfig, cfg.Image)
	default:
		return nil, fmt.Errorf("unknown sandbox driver %q", cfg.Driver)
	}
}
