package transmision

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// EstadoLote lote con el resultado individual de cada documento.
type EstadoLote struct {
	Lote     *entity.Lote
	Miembros []*entity.LoteDocumento
}

// ResultadoEnvio resultado del envío síncrono de un documento (siRecepDE).
type ResultadoEnvio struct {
	DocumentoID int64
	CDC         string
	Estado      string
	Codigo      string
	Mensaje     string
	Protocolo   string
	QRURL       string
}

// ConsultaService consultas a demanda y envío síncrono para la API de operación.
type ConsultaService struct {
	docs       repository.DocumentoRepository
	lotes      repository.LoteRepository
	tx         TxRunner
	transport  Transport
	preparador *Preparador
	poller     *LotePoller
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

// NewConsultaService crea el servicio.
func NewConsultaService(
	docs repository.DocumentoRepository,
	lotes repository.LoteRepository,
	tx TxRunner,
	transport Transport,
	preparador *Preparador,
	poller *LotePoller,
	cfg Config,
	log zerolog.Logger,
) *ConsultaService {
	return &ConsultaService{
		docs:       docs,
		lotes:      lotes,
		tx:         tx,
		transport:  transport,
		preparador: preparador,
		poller:     poller,
		cfg:        cfg.withDefaults(),
		log:        log.With().Str("component", "consulta_service").Logger(),
		now:        time.Now,
	}
}

// ConsultarDocumento consulta un DE por CDC en SIFEN (siConsDE).
func (s *ConsultaService) ConsultarDocumento(ctx context.Context, cdc string) (*infrasifen.ConsultaDE, error) {
	if err := sifen.ValidateCDC(cdc); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	ex, err := s.transport.ConsultarDE(ctx, infrasifen.NewDID(s.now()), cdc)
	if err != nil {
		return nil, err
	}
	return infrasifen.ParseConsultaDE(ex.Response)
}

// ConsultarRUC consulta un contribuyente (siConsRUC). Acepta el RUC con o sin "-DV".
func (s *ConsultaService) ConsultarRUC(ctx context.Context, ruc string) (*infrasifen.RespuestaRUC, error) {
	ruc = strings.TrimSpace(ruc)
	if i := strings.IndexByte(ruc, '-'); i >= 0 {
		ruc = ruc[:i]
	}
	if ruc == "" || strings.IndexFunc(ruc, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return nil, fmt.Errorf("%w: RUC %q", domain.ErrInvalidInput, ruc)
	}
	ex, err := s.transport.ConsultarRUC(ctx, infrasifen.NewDID(s.now()), ruc)
	if err != nil {
		return nil, err
	}
	return infrasifen.ParseRespuestaRUC(ex.Response)
}

// ConsultarLote consulta y concilia un lote SENT fuera del ciclo del worker.
func (s *ConsultaService) ConsultarLote(ctx context.Context, loteID int64) (*Conciliacion, error) {
	lote, err := s.lotes.GetByID(ctx, loteID)
	if err != nil {
		return nil, err
	}
	if lote == nil {
		return nil, fmt.Errorf("lote %d: %w", loteID, domain.ErrNotFound)
	}
	switch lote.Estado {
	case entity.EstadoEnviado:
	case entity.EstadoProcesado:
		return nil, domain.ErrYaConciliado
	default:
		return nil, fmt.Errorf("lote %d en estado %s: %w", loteID, lote.Estado, domain.ErrConflict)
	}
	return s.poller.Poll(ctx, lote)
}

// EstadoLote devuelve el lote y sus miembros.
func (s *ConsultaService) EstadoLote(ctx context.Context, loteID int64) (*EstadoLote, error) {
	lote, err := s.lotes.GetByID(ctx, loteID)
	if err != nil {
		return nil, err
	}
	if lote == nil {
		return nil, fmt.Errorf("lote %d: %w", loteID, domain.ErrNotFound)
	}
	miembros, err := s.lotes.ListMiembros(ctx, loteID)
	if err != nil {
		return nil, err
	}
	return &EstadoLote{Lote: lote, Miembros: miembros}, nil
}

// Documento devuelve el documento con su historial de respuestas.
func (s *ConsultaService) Documento(ctx context.Context, id int64) (*entity.Documento, []*entity.EstadoHistorial, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("documento %d: %w", id, domain.ErrNotFound)
	}
	hist, err := s.docs.ListHistorial(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return doc, hist, nil
}

// EnviarDocumentoSincrono envía un documento PENDING_SEND por siRecepDE y aplica el resultado.
// Un fallo de transporte sigue la misma regla de reintentos que el envío por lotes.
func (s *ConsultaService) EnviarDocumentoSincrono(ctx context.Context, docID int64) (*ResultadoEnvio, error) {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("documento %d: %w", docID, domain.ErrNotFound)
	}
	if doc.EstadoActual != entity.EstadoPendienteEnvio {
		return nil, fmt.Errorf("documento %d en estado %s: %w", docID, doc.EstadoActual, domain.ErrConflict)
	}
	// La transición protegida evita competir con un ciclo del worker.
	if err := s.docs.ActualizarEstado(ctx, docID, entity.EstadoPendienteEnvio, entity.EstadoEnLote); err != nil {
		return nil, fmt.Errorf("documento %d: %w", docID, err)
	}
	doc.EstadoActual = entity.EstadoEnLote

	log := s.log.With().Int64("documento_id", doc.ID).Str("cdc", doc.CDC).Logger()
	now := s.now()
	out := &ResultadoEnvio{DocumentoID: doc.ID, CDC: doc.CDC}

	firmado, err := s.preparador.Preparar(doc)
	if err != nil {
		log.Warn().Err(err).Msg("documento inválido, pasa a ERROR_XML")
		if e := marcarErrorXML(ctx, s.docs, doc, err, now); e != nil {
			return nil, e
		}
		out.Estado = entity.EstadoErrorXML
		out.Mensaje = err.Error()
		return out, nil
	}
	if !firmado.Reutilizado {
		if err := s.docs.MarcarFirmado(ctx, doc.ID, firmado.FechaFirma, firmado.XML, firmado.QRURL); err != nil {
			return nil, fmt.Errorf("documento %d: guardar firma: %w", doc.ID, err)
		}
	}
	out.QRURL = firmado.QRURL

	ex, err := s.transport.EnviarDE(ctx, infrasifen.NewDID(now), firmado.XML)
	var res *infrasifen.ResultadoDocumento
	if err == nil {
		res, err = infrasifen.ParseRespuestaDE(ex.Response)
	}
	if err == nil && res.CDC != "" && res.CDC != doc.CDC {
		err = fmt.Errorf("rProtDe informa %s: %w", res.CDC, domain.ErrCDCDesconocido)
	}
	if err != nil {
		estado, e := registrarFalloEnvio(ctx, s.docs, doc, s.cfg.MaxRetries, "", err.Error(), now)
		if e != nil {
			return nil, e
		}
		log.Warn().Err(err).Str("estado", estado).Msg("envío síncrono fallido")
		return nil, fmt.Errorf("documento %d: %w", doc.ID, err)
	}

	estado := entity.EstadoRechazado
	if sifen.EsAprobado(res.EstadoResultado) {
		estado = entity.EstadoAprobado
	}
	// rEnviDe recibe y resuelve en la misma respuesta: SENT y el resultado se registran juntos.
	fecha := fechaOAhora(res.FechaProceso, now)
	err = s.tx.RunLote(ctx, func(_ repository.LoteRepository, docs repository.DocumentoRepository) error {
		if err := docs.ActualizarEstado(ctx, doc.ID, entity.EstadoEnLote, entity.EstadoEnviado); err != nil {
			return fmt.Errorf("documento %d: %w", doc.ID, err)
		}
		if err := registrarHistorial(ctx, docs, doc.ID, entity.EstadoEnviado, "", "recibido por siRecepDE", fecha); err != nil {
			return err
		}
		if err := docs.ActualizarEstado(ctx, doc.ID, entity.EstadoEnviado, estado); err != nil {
			return fmt.Errorf("documento %d: %w", doc.ID, err)
		}
		return registrarHistorial(ctx, docs, doc.ID, estado, res.Codigo(), res.Mensaje(), fecha)
	})
	if err != nil {
		return nil, err
	}
	doc.EstadoActual = estado

	out.Estado = estado
	out.Codigo = res.Codigo()
	out.Mensaje = res.Mensaje()
	out.Protocolo = res.ProtocoloAutoriz
	log.Info().Str("estado", estado).Str("codigo", out.Codigo).Msg("documento enviado por siRecepDE")
	return out, nil
}
