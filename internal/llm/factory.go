package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/codefionn/seeky/internal/config"
)

// KeyEnv names the environment variable holding the API key for mc.
func KeyEnv(mc config.ModelConfig) string {
	if mc.APIKeyEnv != "" {
		return mc.APIKeyEnv
	}
	switch provider(mc) {
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GEMINI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	}
	return ""
}

func provider(mc config.ModelConfig) string {
	p := strings.ToLower(strings.TrimSpace(mc.Provider))
	if p == "" {
		return "anthropic"
	}
	return p
}

// FromConfig builds the model selected by mc.
func FromConfig(mc config.ModelConfig) (Model, error) {
	switch p := provider(mc); p {
	case "anthropic", "openai", "google":
		env := KeyEnv(mc)
		key := os.Getenv(env)
		if key == "" {
			return nil, fmt.Errorf("%s model requires an API key in $%s", p, env)
		}
		switch p {
		case "openai":
			return NewOpenAIModel(key, mc.Name, mc.MaxTokens)
		case "google":
			return NewGoogleModel(context.Background(), key, mc.Name, mc.MaxTokens)
		}
		return NewAnthropicModel(key, mc.Name, mc.MaxTokens)
	case "scripted":
		if mc.ScriptPath == "" {
			return nil, fmt.Errorf("scripted model requires script_path")
		}
		return LoadScript(mc.ScriptPath)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", mc.Provider)
	}
}
