package repository

import (
	"context"
	"time"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
)

// LoteRepository define el puerto de persistencia de lotes, sus miembros y consultas.
type LoteRepository interface {
	Create(ctx context.Context, lote *entity.Lote) error
	GetByID(ctx context.Context, id int64) (*entity.Lote, error)
	// LockForUpdate lee el lote con SELECT ... FOR UPDATE; solo tiene efecto dentro de una transacción.
	LockForUpdate(ctx context.Context, id int64) (*entity.Lote, error)
	// MarkSent registra la recepción por SIFEN (0300) con el número de lote asignado.
	MarkSent(ctx context.Context, id int64, protocolo string, request, response []byte, fecha time.Time) error
	// UpdateEstado aplica la transición solo desde from. request/response nil conservan el valor previo.
	UpdateEstado(ctx context.Context, id int64, from, to string, request, response []byte) error
	// RegistrarIntentoConsulta incrementa IntentosConsulta del lote y de sus documentos.
	RegistrarIntentoConsulta(ctx context.Context, id int64, fecha time.Time) error
	// ListPorConsultar devuelve lotes SENT con protocolo y menos de maxConsultas intentos.
	ListPorConsultar(ctx context.Context, maxConsultas, limit int) ([]*entity.Lote, error)
	RegistrarConsulta(ctx context.Context, c *entity.ConsultaLote) error

	AgregarMiembro(ctx context.Context, m *entity.LoteDocumento) error
	ListMiembros(ctx context.Context, loteID int64) ([]*entity.LoteDocumento, error)
	ActualizarMiembro(ctx context.Context, m *entity.LoteDocumento) error
}
