package syncer

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"dev.rubentxu.devops-platform/gateway/config"
	"dev.rubentxu.devops-platform/gateway/internal/domain"
)

// GatewayFileConfig es la configuración en disco que consume el servicio
// gateway. Solo se tipan los campos que este supervisor gestiona; las
// claves desconocidas de un fichero existente se pierden al reescribir, lo
// cual es aceptable porque el fichero es propiedad de este bootstrap.
type GatewayFileConfig struct {
	Gateway struct {
		Host  string `yaml:"host,omitempty"`
		Port  int    `yaml:"port"`
		Token string `yaml:"token,omitempty"`
	} `yaml:"gateway"`
	Channels struct {
		TelegramToken string `yaml:"telegram_token,omitempty"`
		DiscordToken  string `yaml:"discord_token,omitempty"`
		SlackBotToken string `yaml:"slack_bot_token,omitempty"`
		SlackAppToken string `yaml:"slack_app_token,omitempty"`
	} `yaml:"channels,omitempty"`
	Providers struct {
		AnthropicKey  string `yaml:"anthropic_api_key,omitempty"`
		OpenAIKey     string `yaml:"openai_api_key,omitempty"`
		OpenRouterKey string `yaml:"openrouter_api_key,omitempty"`
	} `yaml:"providers,omitempty"`
}

// ApplyOverrides parchea el fichero de configuración del gateway con
// valores del entorno ambiente. El puerto de servicio se fija siempre; los
// campos de credenciales solo se tocan cuando el entorno trae valor, así
// que reejecutar contra un fichero ya parcheado no cambia nada.
func ApplyOverrides(path string, env domain.GatewayEnvironment) error {
	var fileCfg GatewayFileConfig
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fichero nuevo
	default:
		return fmt.Errorf("reading %s: %w", path, err)
	}

	fileCfg.Gateway.Port = config.GatewayPort
	setIfPresent(&fileCfg.Gateway.Token, env, "GATEWAY_TOKEN")
	setIfPresent(&fileCfg.Channels.TelegramToken, env, "TELEGRAM_BOT_TOKEN")
	setIfPresent(&fileCfg.Channels.DiscordToken, env, "DISCORD_BOT_TOKEN")
	setIfPresent(&fileCfg.Channels.SlackBotToken, env, "SLACK_BOT_TOKEN")
	setIfPresent(&fileCfg.Channels.SlackAppToken, env, "SLACK_APP_TOKEN")
	setIfPresent(&fileCfg.Providers.AnthropicKey, env, "ANTHROPIC_API_KEY")
	setIfPresent(&fileCfg.Providers.OpenAIKey, env, "OPENAI_API_KEY")
	setIfPresent(&fileCfg.Providers.OpenRouterKey, env, "OPENROUTER_API_KEY")

	out, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func setIfPresent(field *string, env domain.GatewayEnvironment, key string) {
	if v, ok := env[key]; ok && v != "" {
		*field = v
	}
}
