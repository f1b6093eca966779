package sandbox

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/google/uuid"
	apiv1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"dev.rubentxu.devops-platform/gateway/internal/domain"
)

// KubernetesSandbox ejecuta el gateway como un Pod etiquetado y usa el
// servidor de API como registro de procesos.
type KubernetesSandbox struct {
	clientset *kubernetes.Clientset
	namespace string
	image     string
}

func NewKubernetesSandbox(namespace, kubeconfig, gatewayImage string) (*KubernetesSandbox, error) {
	cs, err := newClientset(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}
	if namespace == "" {
		namespace = "default"
	}
	return &KubernetesSandbox{
		clientset: cs,
		namespace: namespace,
		image:     gatewayImage,
	}, nil
}

func newClientset(kubeconfig string) (*kubernetes.Clientset, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return kubernetes.NewForConfig(cfg)
	}
	if kubeconfig == "" {
		return nil, fmt.Errorf("not running in-cluster and KUBECONFIG not set")
	}
	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(cfg)
}

func (k *KubernetesSandbox) ListProcesses(ctx context.Context) ([]domain.ManagedProcess, error) {
	pods, err := k.clientset.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: gatewayLabel + "=true",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	processes := make([]domain.ManagedProcess, 0, len(pods.Items))
	for i := range pods.Items {
		processes = append(processes, processFromPod(&pods.Items[i]))
	}
	return processes, nil
}

func (k *KubernetesSandbox) StartProcess(ctx context.Context, spec domain.ProcessSpec) (domain.ManagedProcess, error) {
	name := fmt.Sprintf("gateway-%s", uuid.NewString()[:8])
	pod := &apiv1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: k.namespace,
			Labels:    map[string]string{gatewayLabel: "true"},
		},
		Spec: apiv1.PodSpec{
			RestartPolicy: apiv1.RestartPolicyNever,
			Containers: []apiv1.Container{{
				Name:    "gateway",
				Image:   k.image,
				Command: spec.Command,
				Env:     buildK8sEnvVars(spec.Env),
				Ports: []apiv1.ContainerPort{{
					ContainerPort: int32(spec.ServicePort),
					Protocol:      apiv1.ProtocolTCP,
				}},
			}},
		},
	}

	created, err := k.clientset.CoreV1().Pods(k.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return domain.ManagedProcess{}, fmt.Errorf("creating pod %s: %w", name, err)
	}
	return processFromPod(created), nil
}

func (k *KubernetesSandbox) KillProcess(ctx context.Context, id string) error {
	zero := int64(0)
	err := k.clientset.CoreV1().Pods(k.namespace).Delete(ctx, id, metav1.DeleteOptions{
		GracePeriodSeconds: &zero,
	})
	if err != nil {
		return fmt.Errorf("deleting pod %s: %w", id, err)
	}
	return nil
}

func (k *KubernetesSandbox) ProcessLogs(ctx context.Context, id string) (domain.ProcessLogs, error) {
	stream, err := k.clientset.CoreV1().Pods(k.namespace).GetLogs(id, &apiv1.PodLogOptions{}).Stream(ctx)
	if err != nil {
		return domain.ProcessLogs{}, fmt.Errorf("fetching logs of pod %s: %w", id, err)
	}
	defer stream.Close()
	out, err := io.ReadAll(stream)
	if err != nil {
		return domain.ProcessLogs{}, fmt.Errorf("reading logs of pod %s: %w", id, err)
	}
	// El kubelet fusiona stdout y stderr en un único stream. Se reporta
	// como stream de error para que el diagnóstico de arranque lo recoja.
	return domain.ProcessLogs{Stderr: string(out)}, nil
}

// Addr resuelve la IP del Pod. Los Pods escuchan directamente en el puerto
// del contenedor, no hay mapeo de puertos en el host que consultar.
func (k *KubernetesSandbox) Addr(ctx context.Context, proc domain.ManagedProcess, port int) (string, error) {
	pod, err := k.clientset.CoreV1().Pods(k.namespace).Get(ctx, proc.ID, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("getting pod %s: %w", proc.ID, err)
	}
	if pod.Status.PodIP == "" {
		return "", fmt.Errorf("pod %s has no IP yet", proc.ID)
	}
	return net.JoinHostPort(pod.Status.PodIP, strconv.Itoa(port)), nil
}

func processFromPod(pod *apiv1.Pod) domain.ManagedProcess {
	var command []string
	if len(pod.Spec.Containers) > 0 {
		command = append(command, pod.Spec.Containers[0].Command...)
		command = append(command, pod.Spec.Containers[0].Args...)
	}
	proc := domain.ManagedProcess{
		ID:      pod.Name,
		Command: command,
		Status:  statusFromPhase(pod.Status.Phase),
	}
	if pod.Status.StartTime != nil {
		proc.StartedAt = pod.Status.StartTime.Time
	} else {
		proc.StartedAt = pod.CreationTimestamp.Time
	}
	if len(pod.Status.ContainerStatuses) > 0 {
		if term := pod.Status.ContainerStatuses[0].State.Terminated; term != nil {
			code := int(term.ExitCode)
			proc.ExitCode = &code
			finished := term.FinishedAt.Time
			proc.FinishedAt = &finished
		}
	}
	return proc
}

func statusFromPhase(phase apiv1.PodPhase) domain.ProcessStatus {
	switch phase {
	case apiv1.PodPending:
		return domain.StatusStarting
	case apiv1.PodRunning:
		return domain.StatusRunning
	case apiv1.PodSucceeded:
		return domain.StatusExited
	default:
		return domain.StatusFailed
	}
}

func buildK8sEnvVars(env domain.GatewayEnvironment) []apiv1.EnvVar {
	var vars []apiv1.EnvVar
	for k, v := range env {
		vars = append(vars, apiv1.EnvVar{Name: k, Value: v})
	}
	return vars
}
