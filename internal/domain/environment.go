package domain

// GatewayEnvironment asocia nombres reconocidos de secretos y configuración
// con sus valores. Se ensambla una vez por petición; solo entran las
// entradas no vacías, así que una clave ausente se omite en lugar de
// pasarse como cadena vacía.
type GatewayEnvironment map[string]string

// recognizedEnvKeys es el conjunto completo de nombres que se reenvían al
// proceso gateway: credenciales de proveedores de modelos, el token de
// acceso del gateway, credenciales de bots de canales de chat y flags de
// funcionalidad.
var recognizedEnvKeys = []string{
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"OPENROUTER_API_KEY",
	"GATEWAY_TOKEN",
	"TELEGRAM_BOT_TOKEN",
	"DISCORD_BOT_TOKEN",
	"SLACK_BOT_TOKEN",
	"SLACK_APP_TOKEN",
	"SYNC_BUCKET",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_REGION",
	"GATEWAY_DEV_MODE",
	"GATEWAY_VERBOSE",
}

// CollectEnvironment construye un GatewayEnvironment a partir de una
// función de consulta (normalmente os.Getenv).
func CollectEnvironment(lookup func(string) string) GatewayEnvironment {
	env := make(GatewayEnvironment)
	for _, key := range recognizedEnvKeys {
		if value := lookup(key); value != "" {
			env[key] = value
		}
	}
	return env
}
