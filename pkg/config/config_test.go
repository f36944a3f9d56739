package config_test

import (
	"testing"
	"time"

	"github.com/jhoicas/sifen-transmisor/pkg/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg := config.FromViper(viper.New())

	assert.Equal(t, 60*time.Second, cfg.Worker.DocInterval)
	assert.Equal(t, 50, cfg.Worker.DocBatch)
	assert.Equal(t, 30*time.Second, cfg.Worker.EventInterval)
	assert.Equal(t, 20, cfg.Worker.EventBatch)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, 10, cfg.Worker.MaxConsultas)
	assert.Equal(t, 45*time.Second, cfg.SIFEN.Timeout)
	assert.Equal(t, "0001", cfg.SIFEN.IdCSC)
	assert.False(t, cfg.HTTP.Enabled)
	assert.EqualValues(t, 10, cfg.DB.MaxConns)
}

func TestFromViper_Sobrescrituras(t *testing.T) {
	v := viper.New()
	v.Set("WORKER_DOC_INTERVAL", "2m")
	v.Set("WORKER_EVENT_INTERVAL", "15")
	v.Set("WORKER_DOC_BATCH", "10")
	v.Set("SIFEN_DEBUG", "true")
	v.Set("HTTP_ENABLED", "1")
	v.Set("SIFEN_ENDPOINT_LOTE", "https://sifen-test.set.gov.py/de/ws/async/recibe-lote.wsdl")

	cfg := config.FromViper(v)
	assert.Equal(t, 2*time.Minute, cfg.Worker.DocInterval)
	assert.Equal(t, 15*time.Second, cfg.Worker.EventInterval)
	assert.Equal(t, 10, cfg.Worker.DocBatch)
	assert.True(t, cfg.SIFEN.Debug)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, "https://sifen-test.set.gov.py/de/ws/async/recibe-lote.wsdl", cfg.SIFEN.Endpoints.RecibeLote)
}

func TestValidate_ReportaTodosLosFaltantes(t *testing.T) {
	v := viper.New()
	v.Set("HTTP_ENABLED", "true")
	cfg := config.FromViper(v)

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "SIFEN_CSC")
	assert.Contains(t, msg, "SIFEN_ENDPOINT_LOTE")
	assert.Contains(t, msg, "JWT_SECRET")
}

func TestValidate_ConfiguracionCompleta(t *testing.T) {
	v := viper.New()
	v.Set("SIFEN_P12_PATH", "/certs/emisor.p12")
	v.Set("SIFEN_CSC", "ABCD0000000000000000000000000000")
	v.Set("SIFEN_ENDPOINT_LOTE", "https://x/lote")
	v.Set("SIFEN_ENDPOINT_CONSULTA_LOTE", "https://x/consulta-lote")
	v.Set("SIFEN_ENDPOINT_EVENTO", "https://x/evento")

	assert.NoError(t, config.FromViper(v).Validate())
}

func TestDBConfig_DSNConCaracteresEspeciales(t *testing.T) {
	c := config.DBConfig{Host: "db", Port: 5432, User: "sifen", Password: "p@ss:w", DBName: "sifen", SSLMode: "disable"}
	assert.Equal(t, "postgres://sifen:p%40ss%3Aw@db:5432/sifen?sslmode=disable", c.ConnectionString())
}
