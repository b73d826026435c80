package appid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	identity := Get()
	assert.Equal(t, "creditgate", identity.BinaryName)
	assert.Equal(t, "CREDITGATE_", identity.EnvPrefix)
	assert.NotEmpty(t, identity.Description)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "CREDITGATE_ADMIN_TOKEN", Get().EnvKey("admin_token"))

	noUnderscore := Identity{EnvPrefix: "APP"}
	assert.Equal(t, "APP_PORT", noUnderscore.EnvKey("PORT"))
	assert.Equal(t, "APP", noUnderscore.ViperPrefix())
	assert.Equal(t, "CREDITGATE", Get().ViperPrefix())
}

func TestTelemetryNamespaceFallback(t *testing.T) {
	assert.Equal(t, "creditgate", Get().TelemetryNamespace())
	assert.Equal(t, "bin", Identity{BinaryName: "bin"}.TelemetryNamespace())
}
