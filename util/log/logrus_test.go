package log

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/meshboard/meshboard/common"
)

func TestCreateFormatter(t *testing.T) {
	assert.IsType(t, &logrus.JSONFormatter{}, CreateFormatter("json"))
	assert.IsType(t, &logrus.JSONFormatter{}, CreateFormatter("JSON"))
	assert.IsType(t, &logrus.TextFormatter{}, CreateFormatter("text"))
	// unknown formats fall back to text
	assert.IsType(t, &logrus.TextFormatter{}, CreateFormatter("nonsense"))
}

func TestNewWithCurrentConfig(t *testing.T) {
	t.Setenv(common.EnvLogFormat, "json")
	t.Setenv(common.EnvLogLevel, "debug")
	l := NewWithCurrentConfig()
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestNewWithCurrentConfig_Defaults(t *testing.T) {
	t.Setenv(common.EnvLogFormat, "")
	t.Setenv(common.EnvLogLevel, "nonsense")
	l := NewWithCurrentConfig()
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
