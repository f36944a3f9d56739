package transmision

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// EventPipeline envía los eventos del emisor (cancelación, inutilización) pendientes.
type EventPipeline struct {
	eventos   repository.EventoRepository
	builder   EventBuilder
	signer    sifen.Signer
	cert      tls.Certificate
	transport Transport
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewEventPipeline crea el pipeline de eventos.
func NewEventPipeline(
	eventos repository.EventoRepository,
	builder EventBuilder,
	signer sifen.Signer,
	cert tls.Certificate,
	transport Transport,
	cfg Config,
	log zerolog.Logger,
) *EventPipeline {
	return &EventPipeline{
		eventos:   eventos,
		builder:   builder,
		signer:    signer,
		cert:      cert,
		transport: transport,
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("component", "evento_pipeline").Logger(),
		now:       time.Now,
	}
}

// RunCycle reclama eventos pendientes y los envía uno por uno; el fallo de un evento no afecta al resto.
func (p *EventPipeline) RunCycle(ctx context.Context) error {
	log := loggerFrom(ctx, p.log, "evento_pipeline")

	eventos, err := p.eventos.ClaimPending(ctx, p.cfg.EventBatch)
	if err != nil {
		return fmt.Errorf("reclamar eventos: %w", err)
	}

	var (
		errs                 []error
		procesados, fallidos int
	)
	for _, ev := range eventos {
		elog := log.With().Int64("evento_id", ev.ID).Int("tipo", ev.Tipo).Logger()

		p.enviar(ctx, ev)
		if ev.Estado == entity.EstadoProcesado {
			procesados++
			elog.Info().Str("protocolo", ev.Protocolo).Msg("evento registrado por SIFEN")
		} else {
			fallidos++
			elog.Warn().Str("codigo", ev.CodigoRespuesta).Str("mensaje", ev.MensajeRespuesta).Msg("evento no registrado")
		}

		if err := p.eventos.GuardarRespuesta(context.WithoutCancel(ctx), ev); err != nil {
			errs = append(errs, fmt.Errorf("evento %d: guardar respuesta: %w", ev.ID, err))
		}
	}

	log.Info().
		Int("reclamados", len(eventos)).
		Int("procesados", procesados).
		Int("fallidos", fallidos).
		Msg("ciclo de eventos terminado")
	return errors.Join(errs...)
}

// enviar deja en ev el estado final y los datos de la respuesta; no persiste.
func (p *EventPipeline) enviar(ctx context.Context, ev *entity.Evento) {
	now := p.now()
	fallar := func(err error) {
		ev.Estado = entity.EstadoError
		ev.CodigoRespuesta = ""
		ev.MensajeRespuesta = truncar(err.Error(), maxMensaje)
	}

	fecha := now.Add(-p.cfg.DesfaseFirma).Truncate(time.Second)
	gesEve, err := p.builder.Build(&infrasifen.EventoBuildContext{Evento: ev, FechaFirma: fecha})
	if err != nil {
		fallar(fmt.Errorf("estructurar: %w", err))
		return
	}
	if err := p.eventos.SetFechaFirma(ctx, ev.ID, fecha); err != nil {
		fallar(fmt.Errorf("guardar fecha de firma: %w", err))
		return
	}
	ev.FechaFirma = &fecha

	firma, err := p.signer.Sign(gesEve, p.cert)
	if err != nil {
		fallar(fmt.Errorf("firmar: %w", err))
		return
	}

	ex, err := p.transport.EnviarEvento(ctx, infrasifen.NewDID(now), firma.XML)
	if ex != nil {
		ev.XMLRequest = ex.Request
		ev.XMLResponse = ex.Response
	}
	if err != nil {
		fallar(err)
		return
	}

	res, err := infrasifen.ParseRespuestaEvento(ex.Response)
	if err != nil {
		fallar(err)
		return
	}
	ev.CodigoRespuesta = res.Codigo()
	ev.MensajeRespuesta = truncar(infrasifen.ResultadoDocumento{Mensajes: res.Mensajes}.Mensaje(), maxMensaje)
	ev.Protocolo = res.Protocolo
	ev.EstadoResultado = res.EstadoResultado
	ev.FechaProceso = res.FechaProceso

	switch res.Codigo() {
	case sifen.CodEventoRegistrado, sifen.CodLoteRecibido:
		ev.Estado = entity.EstadoProcesado
	default:
		ev.Estado = entity.EstadoError
	}
}
