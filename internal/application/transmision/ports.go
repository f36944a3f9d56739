package transmision

import (
	"context"

	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
)

// TxRunner ejecuta una función dentro de una transacción con repos de lotes y documentos.
// Si fn devuelve error no se aplica ningún cambio.
type TxRunner interface {
	RunLote(ctx context.Context, fn func(
		lotes repository.LoteRepository,
		docs repository.DocumentoRepository,
	) error) error
}

// DocumentBuilder estructura el rDE sin firmar.
type DocumentBuilder interface {
	Build(ctx *infrasifen.DocumentoBuildContext) ([]byte, error)
}

// EventBuilder estructura gGroupGesEve sin firmar.
type EventBuilder interface {
	Build(ctx *infrasifen.EventoBuildContext) ([]byte, error)
}

// Transport puerto de salida hacia los servicios web de SIFEN.
// Cada llamada devuelve el intercambio crudo para auditoría, incluso ante HTTP no 2xx.
type Transport interface {
	EnviarDE(ctx context.Context, dID string, rde []byte) (*infrasifen.Exchange, error)
	EnviarLote(ctx context.Context, dID string, zipLote []byte) (*infrasifen.Exchange, error)
	ConsultarLote(ctx context.Context, dID, protocolo string) (*infrasifen.Exchange, error)
	ConsultarDE(ctx context.Context, dID, cdc string) (*infrasifen.Exchange, error)
	EnviarEvento(ctx context.Context, dID string, evento []byte) (*infrasifen.Exchange, error)
	ConsultarRUC(ctx context.Context, dID, ruc string) (*infrasifen.Exchange, error)
}

var (
	_ DocumentBuilder = (*infrasifen.XMLBuilderService)(nil)
	_ EventBuilder    = (*infrasifen.EventBuilderService)(nil)
	_ Transport       = (*infrasifen.SOAPClient)(nil)
)

// Ciclo una pasada de un pipeline; el Scheduler la repite en cada tick.
type Ciclo interface {
	RunCycle(ctx context.Context) error
}
