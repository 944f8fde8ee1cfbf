package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvDefaults(t *testing.T) {
	t.Setenv("AC_TEST_ADDR", "")
	t.Setenv("AC_TEST_INT", "")
	t.Setenv("AC_TEST_DUR", "")
	t.Setenv("AC_TEST_BOOL", "")
	t.Setenv("AC_TEST_LIST", "")

	assert.Equal(t, ":8080", GetEnv("AC_TEST_ADDR", ":8080"))
	assert.Equal(t, 7, GetEnvInt("AC_TEST_INT", 7))
	assert.Equal(t, 3*time.Second, GetEnvDuration("AC_TEST_DUR", 3*time.Second))
	assert.True(t, GetEnvBool("AC_TEST_BOOL", true))
	assert.Equal(t, []string{"a"}, GetEnvList("AC_TEST_LIST", []string{"a"}))
}

func TestGetEnvOverrides(t *testing.T) {
	t.Setenv("AC_TEST_ADDR", ":9090")
	t.Setenv("AC_TEST_INT", "42")
	t.Setenv("AC_TEST_DUR", "250ms")
	t.Setenv("AC_TEST_BOOL", "false")
	t.Setenv("AC_TEST_LIST", "kafka-1:9092, kafka-2:9092,,")

	assert.Equal(t, ":9090", GetEnv("AC_TEST_ADDR", ":8080"))
	assert.Equal(t, 42, GetEnvInt("AC_TEST_INT", 7))
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("AC_TEST_DUR", time.Second))
	assert.False(t, GetEnvBool("AC_TEST_BOOL", true))
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, GetEnvList("AC_TEST_LIST", nil))
}

func TestGetEnvMalformedFallsBack(t *testing.T) {
	t.Setenv("AC_TEST_INT", "many")
	t.Setenv("AC_TEST_DUR", "soon")
	t.Setenv("AC_TEST_BOOL", "perhaps")

	assert.Equal(t, 7, GetEnvInt("AC_TEST_INT", 7))
	assert.Equal(t, time.Second, GetEnvDuration("AC_TEST_DUR", time.Second))
	assert.True(t, GetEnvBool("AC_TEST_BOOL", true))
}

func TestGetEnvDurationSeconds(t *testing.T) {
	t.Setenv("AC_TEST_DUR", "15")
	assert.Equal(t, 15*time.Second, GetEnvDuration("AC_TEST_DUR", time.Second))
}

func TestBindFlagPrecedence(t *testing.T) {
	t.Setenv("AC_TEST_FLAG_ADDR", ":7000")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("flag-addr", ":6000", "")
	require.NoError(t, BindFlag("AC_TEST_FLAG_ADDR", fs.Lookup("flag-addr")))

	// an unset flag does not shadow the environment
	assert.Equal(t, ":7000", GetEnv("AC_TEST_FLAG_ADDR", ""))

	require.NoError(t, fs.Parse([]string{"--flag-addr=:5000"}))
	assert.Equal(t, ":5000", GetEnv("AC_TEST_FLAG_ADDR", ""))
}
