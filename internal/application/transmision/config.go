package transmision

import (
	"time"

	"github.com/jhoicas/sifen-transmisor/pkg/config"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// DesfaseFirmaDefault se resta al reloj local en dFecFirma para tolerar desfase con SIFEN.
const DesfaseFirmaDefault = 120 * time.Second

// Config parámetros de los pipelines de transmisión.
type Config struct {
	BatchSize    int // documentos reclamados por ciclo
	MaxLoteDocs  int // documentos por rLoteDE (≤ 50)
	EventBatch   int
	MaxRetries   int // intentos de envío antes de ERROR_SEND
	MaxConsultas int // consultas de resultado por lote

	CSC          string
	IdCSC        string
	URLQR        string
	DesfaseFirma time.Duration
}

// ConfigFrom arma la configuración de transmisión desde la configuración de la aplicación.
func ConfigFrom(c *config.Config) Config {
	return Config{
		BatchSize:    c.Worker.DocBatch,
		MaxLoteDocs:  sifen.MaxDocumentosPorLote,
		EventBatch:   c.Worker.EventBatch,
		MaxRetries:   c.Worker.MaxRetries,
		MaxConsultas: c.Worker.MaxConsultas,
		CSC:          c.SIFEN.CSC,
		IdCSC:        c.SIFEN.IdCSC,
		URLQR:        c.SIFEN.URLQR,
		DesfaseFirma: DesfaseFirmaDefault,
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = sifen.MaxDocumentosPorLote
	}
	if c.MaxLoteDocs <= 0 || c.MaxLoteDocs > sifen.MaxDocumentosPorLote {
		c.MaxLoteDocs = sifen.MaxDocumentosPorLote
	}
	if c.EventBatch <= 0 {
		c.EventBatch = 20
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.MaxConsultas <= 0 {
		c.MaxConsultas = 10
	}
	if c.URLQR == "" {
		c.URLQR = sifen.URLQRDefault
	}
	if c.DesfaseFirma < 0 {
		c.DesfaseFirma = 0
	}
	return c
}
