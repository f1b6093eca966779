package supervisor

import "strings"

// RemediationHint deriva una pista orientativa del texto de diagnóstico
// capturado. La pista es un emparejamiento de patrones best-effort y nunca
// condiciona los reintentos.
func RemediationHint(diagnostics string) string {
	text := strings.ToLower(diagnostics)
	switch {
	case strings.Contains(text, "api key") ||
		strings.Contains(text, "credential") ||
		strings.Contains(text, "unauthorized") ||
		strings.Contains(text, "missing token"):
		return "a required credential appears to be missing; check the provider and channel tokens in the environment"
	case strings.Contains(text, "out of memory") ||
		strings.Contains(text, "oom") ||
		strings.Contains(text, "cannot allocate memory") ||
		strings.Contains(text, "signal: killed"):
		return "out-of-memory suspected; raise the sandbox memory limit"
	case strings.Contains(text, "address already in use") ||
		strings.Contains(text, "eaddrinuse"):
		return "the service port is already bound; a stale process may be holding it"
	default:
		return ""
	}
}
