package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"terralens/internal/auth"
	"terralens/internal/config"
)

func TestAppOptionsValidate(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite, config.DriverPostgres} {
		t.Run(driver, func(t *testing.T) {
			cfg := &config.Config{
				ServiceName: "terralens",
				HTTPAddr:    "127.0.0.1:0",
				LogLevel:    "error",
				MCPEnabled:  true,
				Store:       config.StoreConfig{Driver: driver},
				Auth:        config.AuthConfig{JWTSecret: "secret"},
				Model:       config.ModelConfig{Provider: config.ProviderOpenAI, OpenAIAPIKey: "key"},
			}
			require.NoError(t, fx.ValidateApp(appOptions(cfg)...))
		})
	}
}

func TestTokenCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_JWT_SECRET", "secret")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--subject", "ops-lead", "--role", "admin"})
	require.NoError(t, cmd.Execute())

	claims, err := auth.ParseJWT(strings.TrimSpace(out.String()), []byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, "ops-lead", claims.Subject)
	assert.Equal(t, string(auth.RoleAdmin), claims.Role)
}

func TestTokenCommandRejects(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name   string
		secret string
		args   []string
	}{
		{name: "missing secret", args: []string{"token", "--subject", "a"}},
		{name: "unknown role", secret: "secret", args: []string{"token", "--subject", "a", "--role", "root"}},
		{name: "missing subject", secret: "secret", args: []string{"token"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_JWT_SECRET", tt.secret)
			cmd := newRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			assert.Error(t, cmd.Execute())
		})
	}
}
