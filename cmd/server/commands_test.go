package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/testutil"
)

const testConfigYAML = `
dataverse:
  currentEnvironment: dev
  environments:
    dev:
      displayName: Development
      organizationUrl: https://dev.crm.dynamics.com
      authentication:
        authType: ServicePrincipal
        clientId: app
        clientSecret: secret
    prod:
      displayName: Production
      organizationUrl: https://prod.crm.dynamics.com
      authentication:
        authType: Interactive
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, backend domain.MetadataBackend, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{
		stdin:   strings.NewReader(stdin),
		stdout:  &stdout,
		stderr:  &stderr,
		dir:     t.TempDir(),
		backend: backend,
	}
	root := newRootCommand(a)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestEnvironmentsCommand(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	out, _, err := run(t, testutil.NewFakeBackend(), "", "--config", path, "environments")

	require.NoError(t, err)
	assert.Contains(t, out, "Development")
	assert.Contains(t, out, "https://prod.crm.dynamics.com")
	assert.Contains(t, out, "Interactive")
	assert.Less(t, strings.Index(out, "dev"), strings.Index(out, "prod"))
}

func TestCheckCommand(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	t.Run("current environment", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.SetBehavior("dev", testutil.EnvironmentBehavior{OrganizationName: "Contoso", Version: "9.2"})

		out, _, err := run(t, backend, "", "--config", path, "check")

		require.NoError(t, err)
		assert.Contains(t, out, "Connected")
		assert.Contains(t, out, "Contoso")
	})

	t.Run("named environment", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.SetBehavior("prod", testutil.EnvironmentBehavior{ConnectErr: errors.New("sign-in declined")})

		out, _, err := run(t, backend, "", "--config", path, "check", "prod")

		assert.ErrorIs(t, err, errCheckFailed)
		assert.Contains(t, out, "Production")
		assert.Contains(t, out, "sign-in declined")
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, _, err := run(t, testutil.NewFakeBackend(), "", "--config", path, "check", "staging")

		assert.True(t, domain.IsEnvironmentNotFound(err))
	})
}

func TestServeCommand(t *testing.T) {
	path := writeConfig(t, testConfigYAML)
	backend := testutil.NewFakeBackend()

	out, logs, err := run(t, backend, `{"jsonrpc":"2.0","id":7,"method":"ping"}`+"\n",
		"--config", path, "--skip-startup-check")

	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{"success":true}}`, strings.TrimSpace(out))
	assert.Contains(t, logs, "listening on stdio")
	assert.Zero(t, backend.ConnectCount())
}

func TestServeSubcommandSelectsEnvironment(t *testing.T) {
	path := writeConfig(t, testConfigYAML)
	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_environments"}}` + "\n"

	out, _, err := run(t, testutil.NewFakeBackend(), input,
		"serve", "--config", path, "--environment", "prod", "--skip-startup-check")

	require.NoError(t, err)
	assert.Contains(t, out, `\"currentEnvironment\":\"prod\"`)
}

func TestMalformedConfigFails(t *testing.T) {
	path := writeConfig(t, "dataverse: [unclosed")

	_, _, err := run(t, testutil.NewFakeBackend(), "", "--config", path, "environments")

	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := run(t, testutil.NewFakeBackend(), "", "--log-level", "verbose", "environments")

	assert.Error(t, err)
}
