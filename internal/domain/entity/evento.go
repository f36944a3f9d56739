package entity

import "time"

// Evento evento del emisor sobre documentos ya transmitidos (gGroupGesEve).
type Evento struct {
	ID            int64
	Tipo          int // 1 cancelación, 2 inutilización
	FechaFirma    *time.Time
	Estado        string
	Cancelacion   *EventoCancelacion
	Inutilizacion *EventoInutilizacion

	// Respuesta de SIFEN
	CodigoRespuesta  string
	MensajeRespuesta string
	Protocolo        string
	EstadoResultado  string
	FechaProceso     *time.Time
	XMLRequest       []byte
	XMLResponse      []byte
	CreatedAt        time.Time
}

// EventoCancelacion rGeVeCan: anula un DE aprobado dentro del plazo permitido.
type EventoCancelacion struct {
	CDC    string
	Motivo string
}

// EventoInutilizacion rGeVeInu: declara no utilizado un rango de numeración.
type EventoInutilizacion struct {
	Timbrado        string
	Establecimiento string
	PuntoExpedicion string
	NumeroInicio    string
	NumeroFin       string
	TipoDocumento   int
	Motivo          string
}
