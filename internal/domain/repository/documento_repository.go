package repository

import (
	"context"
	"time"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
)

// DocumentoRepository define el puerto de persistencia de documentos electrónicos.
// Los métodos de lectura devuelven nil, nil cuando el documento no existe.
type DocumentoRepository interface {
	// ClaimPending pasa atómicamente hasta limit documentos PENDING_SEND (orden por id) a IN_BATCH
	// y los devuelve con todos sus agregados. Dos workers concurrentes nunca reciben el mismo documento.
	ClaimPending(ctx context.Context, limit int) ([]*entity.Documento, error)
	GetByID(ctx context.Context, id int64) (*entity.Documento, error)
	GetByCDC(ctx context.Context, cdc string) (*entity.Documento, error)
	// MarcarFirmado persiste fecha de firma, XML firmado y URL del QR.
	MarcarFirmado(ctx context.Context, id int64, fechaFirma time.Time, xmlFirmado []byte, qrURL string) error
	// ActualizarEstado aplica la transición solo si el estado actual es from; si no, ErrTransicionInvalida.
	ActualizarEstado(ctx context.Context, id int64, from, to string) error
	AsignarLote(ctx context.Context, id, loteID int64) error
	// RegistrarFalloEnvio incrementa IntentosEnvio y devuelve el documento a PENDING_SEND,
	// o lo pasa a ERROR_SEND si alcanzó maxIntentos. Devuelve el estado resultante.
	RegistrarFalloEnvio(ctx context.Context, id int64, maxIntentos int) (string, error)
	RegistrarHistorial(ctx context.Context, h *entity.EstadoHistorial) error
	ListHistorial(ctx context.Context, documentoID int64) ([]*entity.EstadoHistorial, error)
	// ListByLote devuelve los documentos del lote sin agregados.
	ListByLote(ctx context.Context, loteID int64) ([]*entity.Documento, error)
}
