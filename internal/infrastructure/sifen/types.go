// Package sifen implementa la estructuración XML, el armado de lotes y el transporte
// SOAP 1.2 hacia SIFEN (Paraguay), Manual Técnico v150.
package sifen

import (
	"strings"
	"time"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// DocumentoBuildContext contexto con todo lo necesario para construir el rDE.
type DocumentoBuildContext struct {
	Documento *entity.Documento
	// FechaFirma se informa en dFecFirma; el pipeline la fija unos segundos atrás del reloj local.
	FechaFirma time.Time
}

// EventoBuildContext contexto para construir gGroupGesEve.
type EventoBuildContext struct {
	Evento     *entity.Evento
	FechaFirma time.Time
}

// LoteEntry un rDE recuperado de un rLoteDE con sus bytes exactos.
type LoteEntry struct {
	CDC string
	Raw []byte
}

// Exchange request y response crudos de una llamada SOAP, para auditoría.
type Exchange struct {
	Request  []byte
	Response []byte
}

// ── Respuestas de SIFEN ───────────────────────────────────────────────────────

// RecepcionLote respuesta de siRecepLoteDE (rResEnviLoteDe).
type RecepcionLote struct {
	FechaProceso  *time.Time
	Codigo        string // dCodRes
	Mensaje       string // dMsgRes
	NumeroLote    string // dProtConsLote
	TiempoProceso string // dTpoProces
}

// Aceptado indica que SIFEN encoló el lote (0300).
func (r *RecepcionLote) Aceptado() bool {
	return r != nil && r.Codigo == sifen.CodLoteRecibido && r.NumeroLote != ""
}

// ResultadoLote respuesta de siConsLoteDE (rResEnviConsLoteDe).
type ResultadoLote struct {
	FechaProceso *time.Time
	Codigo       string // dCodResLot
	Mensaje      string // dMsgResLot
	Documentos   []ResultadoDocumento
	Raw          []byte
}

// ResultadoDocumento resultado individual de un DE (gResProcLote o rProtDe).
type ResultadoDocumento struct {
	CDC              string // id
	EstadoResultado  string // dEstRes
	ProtocoloAutoriz string // dProtAut
	FechaProceso     *time.Time
	Mensajes         []MensajeResultado // gResProc
}

// Codigo primer código de gResProc, o vacío.
func (r ResultadoDocumento) Codigo() string {
	if len(r.Mensajes) == 0 {
		return ""
	}
	return r.Mensajes[0].Codigo
}

// Mensaje mensajes de gResProc unidos por "; ".
func (r ResultadoDocumento) Mensaje() string {
	msgs := make([]string, 0, len(r.Mensajes))
	for _, m := range r.Mensajes {
		msgs = append(msgs, m.Mensaje)
	}
	return strings.Join(msgs, "; ")
}

// MensajeResultado gResProc{dCodRes, dMsgRes}.
type MensajeResultado struct {
	Codigo  string
	Mensaje string
}

// RespuestaEvento respuesta de siRecepEvento (rRetEnviEventoDe/gResProcEVe).
type RespuestaEvento struct {
	FechaProceso    *time.Time
	EstadoResultado string
	Protocolo       string
	ID              string
	Mensajes        []MensajeResultado
}

// Codigo primer dCodRes, o vacío.
func (r *RespuestaEvento) Codigo() string {
	if r == nil || len(r.Mensajes) == 0 {
		return ""
	}
	return r.Mensajes[0].Codigo
}

// RespuestaRUC respuesta de siConsRUC (rResEnviConsRUC).
type RespuestaRUC struct {
	Codigo        string
	Mensaje       string
	RUC           string // dRUCCons
	RazonSocial   string // dRazCons
	Estado        string // dDesEstCons
	CodigoEstado  string // dCodEstCons
	FacturadorEle string // dRUCFactElec: S/N
}

// ConsultaDE respuesta de siConsDE (rEnviConsDeResponse).
type ConsultaDE struct {
	FechaProceso *time.Time
	Codigo       string
	Mensaje      string
	ContenidoXML []byte // xContenDE, tal cual lo devuelve SIFEN
}
