package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Documentos ────────────────────────────────────────────────────────────────

// HistorialDTO un cambio de estado del documento.
type HistorialDTO struct {
	Estado       string    `json:"estado"`
	Codigo       string    `json:"codigo,omitempty"`
	Mensaje      string    `json:"mensaje,omitempty"`
	FechaProceso time.Time `json:"fecha_proceso"`
}

// DocumentoResponse estado de un DE para GET /api/documentos/:id.
type DocumentoResponse struct {
	ID               int64            `json:"id"`
	CDC              string           `json:"cdc"`
	NumeroDocumento  string           `json:"numero_documento"`
	FechaEmision     time.Time        `json:"fecha_emision"`
	FechaFirma       *time.Time       `json:"fecha_firma,omitempty"`
	Estado           string           `json:"estado"`
	IntentosEnvio    int              `json:"intentos_envio"`
	IntentosConsulta int              `json:"intentos_consulta"`
	LoteID           *int64           `json:"lote_id,omitempty"`
	QRURL            string           `json:"qr_url,omitempty"`
	TotalGeneral     *decimal.Decimal `json:"total_general,omitempty"` // dTotGralOpe
	Historial        []HistorialDTO   `json:"historial"`
}

// EnvioResponse resultado de POST /api/documentos/:id/enviar.
type EnvioResponse struct {
	DocumentoID int64  `json:"documento_id"`
	CDC         string `json:"cdc"`
	Estado      string `json:"estado"`
	Codigo      string `json:"codigo,omitempty"`
	Mensaje     string `json:"mensaje,omitempty"`
	Protocolo   string `json:"protocolo,omitempty"`
	QRURL       string `json:"qr_url,omitempty"`
}

// ── Lotes ─────────────────────────────────────────────────────────────────────

// MiembroLoteDTO resultado individual de un documento dentro del lote.
type MiembroLoteDTO struct {
	DocumentoID int64  `json:"documento_id"`
	CDC         string `json:"cdc"`
	Estado      string `json:"estado"`
	Codigo      string `json:"codigo,omitempty"`
	Mensaje     string `json:"mensaje,omitempty"`
	Protocolo   string `json:"protocolo,omitempty"` // dProtAut
}

// LoteResponse estado del lote para GET /api/lotes/:id.
type LoteResponse struct {
	ID                  int64            `json:"id"`
	TipoDocumento       int              `json:"tipo_documento"`
	Estado              string           `json:"estado"`
	NumeroLote          string           `json:"numero_lote,omitempty"` // dProtConsLote
	FechaEnvio          *time.Time       `json:"fecha_envio,omitempty"`
	IntentosConsulta    int              `json:"intentos_consulta"`
	FechaUltimaConsulta *time.Time       `json:"fecha_ultima_consulta,omitempty"`
	Documentos          []MiembroLoteDTO `json:"documentos"`
}

// ConciliacionResponse resultado de POST /api/lotes/:id/consultar.
type ConciliacionResponse struct {
	LoteID       int64  `json:"lote_id"`
	Codigo       string `json:"codigo"`
	Estado       string `json:"estado"`
	Aprobados    int    `json:"aprobados"`
	Rechazados   int    `json:"rechazados"`
	SinResultado int    `json:"sin_resultado"`
}

// ── Consultas ─────────────────────────────────────────────────────────────────

// ConsultaCDCResponse respuesta de siConsDE.
type ConsultaCDCResponse struct {
	CDC          string     `json:"cdc"`
	Codigo       string     `json:"codigo"`
	Mensaje      string     `json:"mensaje"`
	FechaProceso *time.Time `json:"fecha_proceso,omitempty"`
	XML          string     `json:"xml,omitempty"` // xContenDE
}

// ConsultaRUCResponse respuesta de siConsRUC.
type ConsultaRUCResponse struct {
	Codigo        string `json:"codigo"`
	Mensaje       string `json:"mensaje"`
	RUC           string `json:"ruc,omitempty"`
	RazonSocial   string `json:"razon_social,omitempty"`
	Estado        string `json:"estado,omitempty"`
	CodigoEstado  string `json:"codigo_estado,omitempty"`
	FacturadorEle bool   `json:"facturador_electronico"`
}
