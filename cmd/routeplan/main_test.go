// Copyright (c) 2025 Berik Ashimov

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeplan/internal/design"
)

func writeDesign(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanCommandJSON(t *testing.T) {
	path := writeDesign(t, "campus.yaml", chainDesign)
	out, err := runCLI(t, "plan", "-f", path, "-o", "json", "--log-level", "error")
	require.NoError(t, err)

	var plan design.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, "campus", plan.Name)
	require.Len(t, plan.LANs, 2)
	assert.Equal(t, "10.0.2.0/24", plan.LANs[1].CIDR)
	assert.Len(t, plan.RoutesOf(1), 2)
}

func TestPlanCommandText(t *testing.T) {
	path := writeDesign(t, "campus.yaml", chainDesign)
	out, err := runCLI(t, "plan", "-f", path, "--log-level", "error")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "plan campus, base 10.0.0.0, 3 routers"))
	assert.Contains(t, out, "R1-R2")
	assert.Contains(t, out, "10.0.0.4/30")
	assert.Contains(t, out, "10.0.0.6")
	assert.NotContains(t, out, "UPLINK")
}

func TestPlanCommandRouterConfig(t *testing.T) {
	path := writeDesign(t, "campus.yaml", chainDesign)
	out, err := runCLI(t, "plan", "-f", path, "--router", "3", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "hostname R3")
	assert.Contains(t, out, "ip route 10.0.1.0 255.255.255.0 10.0.0.9")

	_, err = runCLI(t, "plan", "-f", path, "--router", "3", "--template", "nope", "--log-level", "error")
	assert.Error(t, err)
}

func TestPlanCommandSavesAndMigrate(t *testing.T) {
	path := writeDesign(t, "campus.yaml", chainDesign)
	db := filepath.Join(t.TempDir(), "plans.sqlite")
	_, err := runCLI(t, "plan", "-f", path, "--save", "--db", db, "--log-level", "error")
	require.NoError(t, err)

	out, err := runCLI(t, "migrate", "--db", db, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "schema version 2\n", out)
}

func TestPlanCommandErrors(t *testing.T) {
	_, err := runCLI(t, "plan", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeDesign(t, "campus.yaml", chainDesign)
	_, err = runCLI(t, "plan", "-f", path, "-o", "xml", "--log-level", "error")
	assert.Error(t, err)

	_, err = runCLI(t, "plan", "-f", path, "--log-level", "loud")
	assert.Error(t, err)
}

func TestTemplatesCommand(t *testing.T) {
	out, err := runCLI(t, "templates")
	require.NoError(t, err)
	assert.Equal(t, "cisco\tv1\nvyos\tv1\n", out)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	log.WithField("plan", "campus").Info("plan built")
	assert.Contains(t, buf.String(), `"plan":"campus"`)

	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestMustEnv(t *testing.T) {
	t.Setenv("ROUTEPLAN_TEST_VALUE", "  set  ")
	assert.Equal(t, "set", mustEnv("ROUTEPLAN_TEST_VALUE", "def"))
	t.Setenv("ROUTEPLAN_TEST_VALUE", " ")
	assert.Equal(t, "def", mustEnv("ROUTEPLAN_TEST_VALUE", "def"))
}
