package transmision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
)

// ErrLoteNoEncolado SIFEN respondió a siRecepLoteDE con un código distinto de 0300.
var ErrLoteNoEncolado = errors.New("SIFEN no encoló el lote")

// DocumentPipeline reclama documentos pendientes, los envía en lotes y consulta los resultados.
type DocumentPipeline struct {
	docs       repository.DocumentoRepository
	lotes      repository.LoteRepository
	tx         TxRunner
	preparador *Preparador
	transport  Transport
	poller     *LotePoller
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

// NewDocumentPipeline crea el pipeline de documentos.
func NewDocumentPipeline(
	docs repository.DocumentoRepository,
	lotes repository.LoteRepository,
	tx TxRunner,
	preparador *Preparador,
	transport Transport,
	poller *LotePoller,
	cfg Config,
	log zerolog.Logger,
) *DocumentPipeline {
	return &DocumentPipeline{
		docs:       docs,
		lotes:      lotes,
		tx:         tx,
		preparador: preparador,
		transport:  transport,
		poller:     poller,
		cfg:        cfg.withDefaults(),
		log:        log.With().Str("component", "documento_pipeline").Logger(),
		now:        time.Now,
	}
}

// resumenCiclo contadores que se loguean al terminar cada ciclo.
type resumenCiclo struct {
	reclamados  int
	lotes       int
	enviados    int
	errorXML    int
	fallidos    int
	consultados int
	conciliados int
}

// miembroLote documento firmado que viaja en el lote.
type miembroLote struct {
	doc     *entity.Documento
	miembro *entity.LoteDocumento
	xml     []byte
}

// RunCycle ejecuta una pasada completa: envío de pendientes y consulta de lotes enviados.
// Los fallos de transporte se reflejan en el estado de los documentos; solo se devuelven
// errores de persistencia.
func (p *DocumentPipeline) RunCycle(ctx context.Context) error {
	log := loggerFrom(ctx, p.log, "documento_pipeline")
	var (
		res  resumenCiclo
		errs []error
	)

	pendientes, err := p.docs.ClaimPending(ctx, p.cfg.BatchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("reclamar pendientes: %w", err))
	}
	res.reclamados = len(pendientes)

	for _, grupo := range particionar(pendientes, p.cfg.MaxLoteDocs) {
		if ctx.Err() != nil {
			p.devolver(ctx, log, grupo)
			continue
		}
		if err := p.enviarLote(ctx, log, grupo, &res); err != nil {
			errs = append(errs, err)
		}
	}

	p.consultarEnviados(ctx, log, &res)

	log.Info().
		Int("reclamados", res.reclamados).
		Int("lotes", res.lotes).
		Int("enviados", res.enviados).
		Int("error_xml", res.errorXML).
		Int("fallidos", res.fallidos).
		Int("consultados", res.consultados).
		Int("conciliados", res.conciliados).
		Msg("ciclo de documentos terminado")
	return errors.Join(errs...)
}

// particionar agrupa por tipo de documento en orden de aparición y corta cada grupo en tope.
func particionar(docs []*entity.Documento, tope int) [][]*entity.Documento {
	var (
		orden   []int
		porTipo = make(map[int][]*entity.Documento)
	)
	for _, d := range docs {
		tipo := tipoDocumento(d)
		if _, ok := porTipo[tipo]; !ok {
			orden = append(orden, tipo)
		}
		porTipo[tipo] = append(porTipo[tipo], d)
	}

	var grupos [][]*entity.Documento
	for _, tipo := range orden {
		g := porTipo[tipo]
		for len(g) > tope {
			grupos = append(grupos, g[:tope])
			g = g[tope:]
		}
		grupos = append(grupos, g)
	}
	return grupos
}

func tipoDocumento(d *entity.Documento) int {
	if d.Timbrado == nil {
		return 0
	}
	return d.Timbrado.TipoDocumento
}

func (p *DocumentPipeline) enviarLote(ctx context.Context, log zerolog.Logger, grupo []*entity.Documento, res *resumenCiclo) error {
	now := p.now()
	lote := &entity.Lote{TipoDocumento: tipoDocumento(grupo[0]), Estado: entity.EstadoPendienteEnvio}
	if err := p.lotes.Create(ctx, lote); err != nil {
		p.devolver(ctx, log, grupo)
		return fmt.Errorf("crear lote: %w", err)
	}
	res.lotes++
	log = log.With().Int64("lote_id", lote.ID).Logger()

	var (
		miembros []miembroLote
		errs     []error
	)
	for _, doc := range grupo {
		m, err := p.prepararMiembro(ctx, log, lote, doc, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if m == nil {
			res.errorXML++
			continue
		}
		miembros = append(miembros, *m)
	}

	if len(miembros) == 0 {
		if err := p.lotes.UpdateEstado(ctx, lote.ID, entity.EstadoPendienteEnvio, entity.EstadoErrorXML, nil, nil); err != nil {
			errs = append(errs, err)
		}
		log.Warn().Msg("lote sin documentos válidos, queda en ERROR_XML")
		return errors.Join(errs...)
	}

	xmls := make([][]byte, len(miembros))
	for i, m := range miembros {
		xmls[i] = m.xml
	}
	loteXML, err := infrasifen.BuildLote(xmls, p.cfg.MaxLoteDocs)
	if err == nil {
		var zipLote []byte
		if zipLote, err = infrasifen.CompressLote(loteXML); err == nil {
			return errors.Join(append(errs, p.transmitir(ctx, log, lote, miembros, zipLote, res))...)
		}
	}

	// El armado falla solo con datos corruptos: el lote no se puede reintentar tal cual.
	log.Error().Err(err).Msg("no se pudo armar el lote")
	for _, m := range miembros {
		if e := marcarErrorXML(ctx, p.docs, m.doc, err, now); e != nil {
			errs = append(errs, e)
		}
		res.errorXML++
	}
	if e := p.lotes.UpdateEstado(ctx, lote.ID, entity.EstadoPendienteEnvio, entity.EstadoErrorXML, nil, nil); e != nil {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// prepararMiembro firma el documento y lo registra en el lote.
// Devuelve nil, nil si el documento quedó en ERROR_XML.
func (p *DocumentPipeline) prepararMiembro(ctx context.Context, log zerolog.Logger, lote *entity.Lote, doc *entity.Documento, now time.Time) (*miembroLote, error) {
	dlog := log.With().Int64("documento_id", doc.ID).Str("cdc", doc.CDC).Logger()

	firmado, err := p.preparador.Preparar(doc)
	if err != nil {
		dlog.Warn().Err(err).Msg("documento inválido, pasa a ERROR_XML")
		if err := marcarErrorXML(ctx, p.docs, doc, err, now); err != nil {
			return nil, fmt.Errorf("documento %d: %w", doc.ID, err)
		}
		return nil, nil
	}

	if !firmado.Reutilizado {
		if err := p.docs.MarcarFirmado(ctx, doc.ID, firmado.FechaFirma, firmado.XML, firmado.QRURL); err != nil {
			return nil, fmt.Errorf("documento %d: guardar firma: %w", doc.ID, err)
		}
		fecha := firmado.FechaFirma
		doc.FechaFirma = &fecha
		doc.XMLFirmado = firmado.XML
		doc.QRURL = firmado.QRURL
	} else {
		dlog.Debug().Msg("se reutiliza el XML firmado en un ciclo anterior")
	}

	if err := p.docs.AsignarLote(ctx, doc.ID, lote.ID); err != nil {
		return nil, fmt.Errorf("documento %d: asignar lote: %w", doc.ID, err)
	}
	m := &entity.LoteDocumento{LoteID: lote.ID, DocumentoID: doc.ID, CDC: doc.CDC}
	if err := p.lotes.AgregarMiembro(ctx, m); err != nil {
		return nil, fmt.Errorf("documento %d: agregar al lote: %w", doc.ID, err)
	}
	loteID := lote.ID
	doc.LoteID = &loteID
	return &miembroLote{doc: doc, miembro: m, xml: firmado.XML}, nil
}

func (p *DocumentPipeline) transmitir(ctx context.Context, log zerolog.Logger, lote *entity.Lote, miembros []miembroLote, zipLote []byte, res *resumenCiclo) error {
	now := p.now()
	ex, err := p.transport.EnviarLote(ctx, infrasifen.NewDID(now), zipLote)
	var rec *infrasifen.RecepcionLote
	if err == nil {
		rec, err = infrasifen.ParseRecepcionLote(ex.Response)
	}
	if err == nil && !rec.Aceptado() {
		err = fmt.Errorf("%w: %s %s", ErrLoteNoEncolado, rec.Codigo, rec.Mensaje)
	}
	if err != nil {
		log.Warn().Err(err).Int("documentos", len(miembros)).Msg("envío de lote fallido")
		res.fallidos += len(miembros)
		return p.registrarFallo(ctx, lote, miembros, ex, rec, err, now)
	}

	err = p.tx.RunLote(ctx, func(lotes repository.LoteRepository, docs repository.DocumentoRepository) error {
		if err := lotes.MarkSent(ctx, lote.ID, rec.NumeroLote, ex.Request, ex.Response, fechaOAhora(rec.FechaProceso, now)); err != nil {
			return err
		}
		for _, m := range miembros {
			if err := docs.ActualizarEstado(ctx, m.doc.ID, entity.EstadoEnLote, entity.EstadoEnviado); err != nil {
				return fmt.Errorf("documento %d: %w", m.doc.ID, err)
			}
			m.miembro.EstadoResultado = entity.EstadoEnviado
			m.miembro.Codigo = rec.Codigo
			m.miembro.Mensaje = truncar(rec.Mensaje, maxMensaje)
			if err := lotes.ActualizarMiembro(ctx, m.miembro); err != nil {
				return err
			}
			if err := registrarHistorial(ctx, docs, m.doc.ID, entity.EstadoEnviado, rec.Codigo, rec.Mensaje, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// SIFEN ya tiene el lote: sin el número persistido no hay forma de consultarlo.
		log.Error().Err(err).Str("protocolo", rec.NumeroLote).Msg("lote recibido por SIFEN pero no registrado")
		return fmt.Errorf("lote %d: registrar envío (protocolo %s): %w", lote.ID, rec.NumeroLote, err)
	}

	for _, m := range miembros {
		m.doc.EstadoActual = entity.EstadoEnviado
	}
	lote.Estado = entity.EstadoEnviado
	lote.NumeroLoteSIFEN = rec.NumeroLote
	res.enviados += len(miembros)
	log.Info().Str("protocolo", rec.NumeroLote).Int("documentos", len(miembros)).Msg("lote recibido por SIFEN")
	return nil
}

// registrarFallo pasa el lote a ERROR_SEND y aplica la regla de reintentos a cada documento.
func (p *DocumentPipeline) registrarFallo(ctx context.Context, lote *entity.Lote, miembros []miembroLote,
	ex *infrasifen.Exchange, rec *infrasifen.RecepcionLote, causa error, now time.Time,
) error {
	var req, resp []byte
	if ex != nil {
		req, resp = ex.Request, ex.Response
	}
	codigo, mensaje := "", causa.Error()
	if rec != nil {
		codigo, mensaje = rec.Codigo, rec.Mensaje
	}

	err := p.tx.RunLote(ctx, func(lotes repository.LoteRepository, docs repository.DocumentoRepository) error {
		if err := lotes.UpdateEstado(ctx, lote.ID, entity.EstadoPendienteEnvio, entity.EstadoErrorEnvio, req, resp); err != nil {
			return err
		}
		for _, m := range miembros {
			if _, err := registrarFalloEnvio(ctx, docs, m.doc, p.cfg.MaxRetries, codigo, mensaje, now); err != nil {
				return fmt.Errorf("documento %d: %w", m.doc.ID, err)
			}
			m.miembro.EstadoResultado = entity.EstadoErrorEnvio
			m.miembro.Codigo = codigo
			m.miembro.Mensaje = truncar(mensaje, maxMensaje)
			if err := lotes.ActualizarMiembro(ctx, m.miembro); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("lote %d: registrar fallo de envío: %w", lote.ID, err)
	}
	lote.Estado = entity.EstadoErrorEnvio
	return nil
}

// devolver regresa a la cola documentos reclamados que no llegaron a procesarse.
func (p *DocumentPipeline) devolver(ctx context.Context, log zerolog.Logger, grupo []*entity.Documento) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range grupo {
		if err := p.docs.ActualizarEstado(ctx, d.ID, entity.EstadoEnLote, entity.EstadoPendienteEnvio); err != nil {
			log.Error().Err(err).Int64("documento_id", d.ID).Msg("documento queda en IN_BATCH")
			continue
		}
		d.EstadoActual = entity.EstadoPendienteEnvio
	}
}

func (p *DocumentPipeline) consultarEnviados(ctx context.Context, log zerolog.Logger, res *resumenCiclo) {
	if ctx.Err() != nil {
		return
	}
	enviados, err := p.lotes.ListPorConsultar(ctx, p.cfg.MaxConsultas, p.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("no se pudieron listar los lotes por consultar")
		return
	}
	for _, lote := range enviados {
		if ctx.Err() != nil {
			return
		}
		res.consultados++
		llog := log.With().Int64("lote_id", lote.ID).Logger()

		c, err := p.poller.Poll(ctx, lote)
		switch {
		case err == nil:
			if c.Estado == entity.EstadoProcesado {
				res.conciliados++
			}
		case errors.Is(err, domain.ErrYaConciliado):
			llog.Info().Msg("lote ya conciliado")
		case esAlertaIntegridad(err):
			llog.Error().Err(err).Msg("alerta de integridad: resultado de lote descartado")
		default:
			llog.Warn().Err(err).Msg("consulta de lote fallida")
		}
	}
}
