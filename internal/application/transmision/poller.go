package transmision

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
)

// LotePoller consulta el resultado de un lote enviado y lo concilia.
type LotePoller struct {
	lotes      repository.LoteRepository
	transport  Transport
	reconciler *Reconciler
	log        zerolog.Logger
	now        func() time.Time
}

// NewLotePoller crea el consultor de lotes.
func NewLotePoller(lotes repository.LoteRepository, transport Transport, reconciler *Reconciler, log zerolog.Logger) *LotePoller {
	return &LotePoller{
		lotes:      lotes,
		transport:  transport,
		reconciler: reconciler,
		log:        log.With().Str("component", "lote_poller").Logger(),
		now:        time.Now,
	}
}

// Poll llama a siConsLoteDE con el número de lote y concilia la respuesta.
// Un fallo de transporte o una respuesta ilegible cuenta como intento de consulta.
func (p *LotePoller) Poll(ctx context.Context, lote *entity.Lote) (*Conciliacion, error) {
	if lote.NumeroLoteSIFEN == "" {
		return nil, fmt.Errorf("lote %d sin número de SIFEN: %w", lote.ID, domain.ErrConflict)
	}
	log := loggerFrom(ctx, p.log, "lote_poller").With().
		Int64("lote_id", lote.ID).
		Str("protocolo", lote.NumeroLoteSIFEN).
		Logger()

	ex, err := p.transport.ConsultarLote(ctx, infrasifen.NewDID(p.now()), lote.NumeroLoteSIFEN)
	if err != nil {
		p.registrarIntento(ctx, log, lote.ID)
		return nil, fmt.Errorf("consultar lote %d: %w", lote.ID, err)
	}
	res, err := infrasifen.ParseResultadoLote(ex.Response)
	if err != nil {
		p.registrarIntento(ctx, log, lote.ID)
		return nil, fmt.Errorf("consultar lote %d: %w", lote.ID, err)
	}

	log.Debug().Str("codigo", res.Codigo).Int("documentos", len(res.Documentos)).Msg("resultado de lote recibido")
	return p.reconciler.Reconcile(ctx, lote.ID, res)
}

func (p *LotePoller) registrarIntento(ctx context.Context, log zerolog.Logger, loteID int64) {
	if err := p.lotes.RegistrarIntentoConsulta(ctx, loteID, p.now()); err != nil {
		log.Error().Err(err).Msg("no se pudo registrar el intento de consulta")
	}
}
