package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"dev.rubentxu.devops-platform/gateway/internal/domain"
)

// Los contenedores gestionados por este supervisor llevan esta etiqueta
// para que los barridos del registro nunca recojan cargas ajenas del mismo
// daemon.
const gatewayLabel = "devops-platform.gateway"

// DockerSandbox ejecuta el gateway como contenedor etiquetado y reporta la
// vista del daemon como registro de procesos.
type DockerSandbox struct {
	client *dockerclient.Client
	image  string
	host   string
}

func NewDockerSandbox(gatewayImage string) (*DockerSandbox, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &DockerSandbox{
		client: cli,
		image:  gatewayImage,
		host:   cli.DaemonHost(),
	}, nil
}

func (d *DockerSandbox) ListProcesses(ctx context.Context) ([]domain.ManagedProcess, error) {
	containers, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", gatewayLabel)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}

	processes := make([]domain.ManagedProcess, 0, len(containers))
	for _, cont := range containers {
		insp, err := d.client.ContainerInspect(ctx, cont.ID)
		if err != nil {
			// El contenedor desapareció entre el list y el inspect.
			log.Printf("sandbox: fallo al inspeccionar el contenedor %s: %v", cont.ID, err)
			continue
		}
		processes = append(processes, processFromInspect(insp))
	}
	return processes, nil
}

func (d *DockerSandbox) StartProcess(ctx context.Context, spec domain.ProcessSpec) (domain.ManagedProcess, error) {
	if err := d.ensureImage(ctx); err != nil {
		return domain.ManagedProcess{}, err
	}

	servicePort := nat.Port(fmt.Sprintf("%d/tcp", spec.ServicePort))
	containerCfg := &container.Config{
		Image:        d.image,
		Cmd:          spec.Command,
		Env:          buildEnvVars(spec.Env),
		ExposedPorts: nat.PortSet{servicePort: struct{}{}},
		Labels:       map[string]string{gatewayLabel: "true"},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			servicePort: []nat.PortBinding{{
				HostIP:   "0.0.0.0",
				HostPort: "", // dinámico
			}},
		},
		NetworkMode: "bridge",
	}

	name := fmt.Sprintf("gateway-%s", uuid.NewString()[:8])
	resp, err := d.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return domain.ManagedProcess{}, fmt.Errorf("creating container: %w", err)
	}
	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return domain.ManagedProcess{}, fmt.Errorf("starting container %s: %w", name, err)
	}
	log.Printf("sandbox: contenedor %s arrancado (ID=%s)", name, resp.ID)

	insp, err := d.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return domain.ManagedProcess{}, fmt.Errorf("inspecting container %s: %w", name, err)
	}
	return processFromInspect(insp), nil
}

func (d *DockerSandbox) KillProcess(ctx context.Context, id string) error {
	if err := d.client.ContainerKill(ctx, id, "SIGKILL"); err != nil {
		return fmt.Errorf("killing container %s: %w", id, err)
	}
	return nil
}

func (d *DockerSandbox) ProcessLogs(ctx context.Context, id string) (domain.ProcessLogs, error) {
	reader, err := d.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return domain.ProcessLogs{}, fmt.Errorf("fetching logs of container %s: %w", id, err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil && err != io.EOF {
		return domain.ProcessLogs{}, fmt.Errorf("demultiplexing logs of container %s: %w", id, err)
	}
	return domain.ProcessLogs{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Addr resuelve el puerto publicado en el host para el puerto de servicio
// del contenedor. El daemon asigna puertos de host dinámicamente, así que
// el binding hay que releerlo por proceso.
func (d *DockerSandbox) Addr(ctx context.Context, proc domain.ManagedProcess, port int) (string, error) {
	insp, err := d.client.ContainerInspect(ctx, proc.ID)
	if err != nil {
		return "", fmt.Errorf("inspecting container %s: %w", proc.ID, err)
	}
	bindings := insp.NetworkSettings.Ports[nat.Port(fmt.Sprintf("%d/tcp", port))]
	if len(bindings) == 0 {
		return "", fmt.Errorf("container %s publishes no binding for port %d", proc.ID, port)
	}
	return net.JoinHostPort(d.hostAddress(), bindings[0].HostPort), nil
}

func (d *DockerSandbox) ensureImage(ctx context.Context) error {
	_, _, err := d.client.ImageInspectWithRaw(ctx, d.image)
	if err == nil {
		return nil
	}
	log.Printf("sandbox: imagen %s no encontrada en local, descargando", d.image)
	reader, err := d.client.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", d.image, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func (d *DockerSandbox) hostAddress() string {
	host := d.host
	if host == "" || strings.HasPrefix(host, "unix://") {
		return "localhost"
	}
	host = strings.TrimPrefix(host, "tcp://")
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func processFromInspect(insp types.ContainerJSON) domain.ManagedProcess {
	command := append([]string{}, insp.Config.Entrypoint...)
	command = append(command, insp.Config.Cmd...)
	proc := domain.ManagedProcess{
		ID:      insp.ID,
		Command: command,
		Status:  statusFromState(insp.State),
	}
	if t, err := time.Parse(time.RFC3339Nano, insp.State.StartedAt); err == nil && !t.IsZero() {
		proc.StartedAt = t
	}
	if insp.State.Status == "exited" || insp.State.Status == "dead" {
		code := insp.State.ExitCode
		proc.ExitCode = &code
		if t, err := time.Parse(time.RFC3339Nano, insp.State.FinishedAt); err == nil && !t.IsZero() {
			proc.FinishedAt = &t
		}
	}
	return proc
}

func statusFromState(state *types.ContainerState) domain.ProcessStatus {
	if state == nil {
		return domain.StatusFailed
	}
	switch state.Status {
	case "created", "restarting":
		return domain.StatusStarting
	case "running", "paused":
		return domain.StatusRunning
	case "exited", "removing":
		return domain.StatusExited
	default:
		return domain.StatusFailed
	}
}

// buildEnvVars convierte un mapa de entorno a la forma KEY=VALUE.
func buildEnvVars(env domain.GatewayEnvironment) []string {
	var result []string
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}
