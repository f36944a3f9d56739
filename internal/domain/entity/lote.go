package entity

import "time"

// Lote envío asíncrono de hasta 50 DE del mismo tipo (rEnvioLote).
type Lote struct {
	ID                  int64
	TipoDocumento       int
	Estado              string
	NumeroLoteSIFEN     string // dProtConsLote
	XMLRequest          []byte
	XMLResponse         []byte
	FechaEnvio          *time.Time
	IntentosConsulta    int
	FechaUltimaConsulta *time.Time
	CreatedAt           time.Time
}

// LoteDocumento pertenencia de un documento a un lote y su resultado individual.
type LoteDocumento struct {
	ID               int64
	LoteID           int64
	DocumentoID      int64
	CDC              string
	EstadoResultado  string // APPROVED, REJECTED, SENT, ERROR_SEND
	Codigo           string
	Mensaje          string
	ProtocoloAutoriz string // dProtAut
}

// ConsultaLote auditoría de cada consulta de resultado de lote.
type ConsultaLote struct {
	ID            int64
	LoteID        int64
	NumeroLote    string
	Codigo        string
	Mensaje       string
	FechaConsulta time.Time
}
