package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitriko/contactd/pkg/dbconn"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"DATABASE_URI", "MONGO_URI", "VERCEL", "AWS_LAMBDA_FUNCTION_NAME", "CONTACTD_MODE", "PORT"} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func TestRootCommands(t *testing.T) {
	root := RootCmd()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "lambda"}, names)
}

func TestServeFailsWithoutDatabaseURI(t *testing.T) {
	clearEnv(t)
	root := RootCmd()
	root.SetArgs([]string{"serve", "--env-file", filepath.Join(t.TempDir(), "none.env"), "--port", "0"})
	err := root.Execute()
	require.Error(t, err)
	var cerr *dbconn.ConfigurationError
	assert.True(t, errors.As(err, &cerr))
}

func TestServeRejectsBadConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONNECT_TIMEOUT", "soon")
	root := RootCmd()
	root.SetArgs([]string{"serve", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONNECT_TIMEOUT")
}

func TestAutoModeRefusesVercel(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERCEL", "1")
	root := RootCmd()
	root.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vercel")
}
