package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseNumFromEnv(t *testing.T) {
	const envVar = "MESHBOARD_TEST_NUM"
	assert.Equal(t, 10, ParseNumFromEnv(envVar, 10, 0, 100))
	t.Setenv(envVar, "42")
	assert.Equal(t, 42, ParseNumFromEnv(envVar, 10, 0, 100))
	t.Setenv(envVar, "not-a-number")
	assert.Equal(t, 10, ParseNumFromEnv(envVar, 10, 0, 100))
	t.Setenv(envVar, "-1")
	assert.Equal(t, 10, ParseNumFromEnv(envVar, 10, 0, 100))
	t.Setenv(envVar, "101")
	assert.Equal(t, 10, ParseNumFromEnv(envVar, 10, 0, 100))
}

func TestParseFloatFromEnv(t *testing.T) {
	const envVar = "MESHBOARD_TEST_FLOAT"
	assert.Equal(t, 1.0, ParseFloatFromEnv(envVar, 1.0, 0.1, 10))
	t.Setenv(envVar, "2.5")
	assert.Equal(t, 2.5, ParseFloatFromEnv(envVar, 1.0, 0.1, 10))
	t.Setenv(envVar, "not-a-float")
	assert.Equal(t, 1.0, ParseFloatFromEnv(envVar, 1.0, 0.1, 10))
	// out-of-range values fall back to the default
	t.Setenv(envVar, "0.01")
	assert.Equal(t, 1.0, ParseFloatFromEnv(envVar, 1.0, 0.1, 10))
	t.Setenv(envVar, "11")
	assert.Equal(t, 1.0, ParseFloatFromEnv(envVar, 1.0, 0.1, 10))
}

func TestParseDurationFromEnv(t *testing.T) {
	const envVar = "MESHBOARD_TEST_DURATION"
	assert.Equal(t, time.Minute, ParseDurationFromEnv(envVar, time.Minute, time.Second, time.Hour))
	t.Setenv(envVar, "90s")
	assert.Equal(t, 90*time.Second, ParseDurationFromEnv(envVar, time.Minute, time.Second, time.Hour))
	t.Setenv(envVar, "2h")
	assert.Equal(t, time.Minute, ParseDurationFromEnv(envVar, time.Minute, time.Second, time.Hour))
	t.Setenv(envVar, "garbage")
	assert.Equal(t, time.Minute, ParseDurationFromEnv(envVar, time.Minute, time.Second, time.Hour))
}

func TestParseBoolFromEnv(t *testing.T) {
	const envVar = "MESHBOARD_TEST_BOOL"
	assert.True(t, ParseBoolFromEnv(envVar, true))
	t.Setenv(envVar, "false")
	assert.False(t, ParseBoolFromEnv(envVar, true))
	t.Setenv(envVar, "maybe")
	assert.True(t, ParseBoolFromEnv(envVar, true))
}

func TestStringFromEnv(t *testing.T) {
	const envVar = "MESHBOARD_TEST_STRING"
	assert.Equal(t, "fallback", StringFromEnv(envVar, "fallback"))
	t.Setenv(envVar, "value")
	assert.Equal(t, "value", StringFromEnv(envVar, "fallback"))
}
