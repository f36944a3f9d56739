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
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// Conciliacion resumen de la aplicación de un resultado de lote.
type Conciliacion struct {
	LoteID       int64
	Codigo       string
	Estado       string // estado del lote tras conciliar
	Aprobados    int
	Rechazados   int
	SinResultado int // miembros cerrados en ERROR_SEND sin resultado individual
}

// Reconciler aplica el resultado de siConsLoteDE sobre el lote y sus documentos.
type Reconciler struct {
	tx  TxRunner
	log zerolog.Logger
	now func() time.Time
}

// NewReconciler crea el conciliador.
func NewReconciler(tx TxRunner, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		tx:  tx,
		log: log.With().Str("component", "reconciler").Logger(),
		now: time.Now,
	}
}

// Reconcile aplica res en una sola transacción.
// Un lote ya PROCESSED devuelve domain.ErrYaConciliado sin cambios; un CDC ajeno al lote
// devuelve domain.ErrCDCDesconocido y no se aplica ninguna fila.
func (r *Reconciler) Reconcile(ctx context.Context, loteID int64, res *infrasifen.ResultadoLote) (*Conciliacion, error) {
	if res == nil {
		return nil, fmt.Errorf("lote %d: resultado nil: %w", loteID, domain.ErrInvalidInput)
	}
	now := r.now()
	out := &Conciliacion{LoteID: loteID, Codigo: res.Codigo}

	err := r.tx.RunLote(ctx, func(lotes repository.LoteRepository, docs repository.DocumentoRepository) error {
		lote, err := lotes.LockForUpdate(ctx, loteID)
		if err != nil {
			return err
		}
		if lote == nil {
			return fmt.Errorf("lote %d: %w", loteID, domain.ErrNotFound)
		}
		if lote.Estado == entity.EstadoProcesado {
			return domain.ErrYaConciliado
		}
		if lote.Estado != entity.EstadoEnviado {
			return fmt.Errorf("lote %d en estado %s: %w", loteID, lote.Estado, domain.ErrConflict)
		}
		out.Estado = lote.Estado

		consulta := &entity.ConsultaLote{
			LoteID:        loteID,
			NumeroLote:    lote.NumeroLoteSIFEN,
			Codigo:        res.Codigo,
			Mensaje:       truncar(res.Mensaje, maxMensaje),
			FechaConsulta: now,
		}

		switch res.Codigo {
		case sifen.CodConsultaLoteConcluido:
			// resultados individuales, más abajo
		case sifen.CodConsultaLoteExpirada:
			miembros, err := lotes.ListMiembros(ctx, loteID)
			if err != nil {
				return err
			}
			for _, m := range miembros {
				if m.EstadoResultado != entity.EstadoEnviado {
					continue
				}
				if err := cerrarSinResultado(ctx, lotes, docs, m, res.Codigo, "consulta de lote expirada sin resultado del documento", now); err != nil {
					return err
				}
				out.SinResultado++
			}
			if err := lotes.UpdateEstado(ctx, loteID, entity.EstadoEnviado, entity.EstadoError, nil, res.Raw); err != nil {
				return err
			}
			out.Estado = entity.EstadoError
			return lotes.RegistrarConsulta(ctx, consulta)
		default:
			// 0360, 0361 o un código no catalogado: el lote sigue SENT y se vuelve a consultar.
			if res.Codigo != sifen.CodConsultaLoteEnCurso && res.Codigo != sifen.CodConsultaLoteNoExiste {
				r.log.Warn().Int64("lote_id", loteID).Str("codigo", res.Codigo).Msg("código de consulta de lote no reconocido")
			}
			if err := lotes.RegistrarIntentoConsulta(ctx, loteID, now); err != nil {
				return err
			}
			return lotes.RegistrarConsulta(ctx, consulta)
		}

		miembros, err := lotes.ListMiembros(ctx, loteID)
		if err != nil {
			return err
		}
		porCDC := make(map[string]*entity.LoteDocumento, len(miembros))
		for _, m := range miembros {
			porCDC[m.CDC] = m
		}
		informados := make(map[string]bool, len(res.Documentos))
		for _, d := range res.Documentos {
			if _, ok := porCDC[d.CDC]; !ok {
				return fmt.Errorf("lote %d, CDC %s: %w", loteID, d.CDC, domain.ErrCDCDesconocido)
			}
			informados[d.CDC] = true
		}

		for _, d := range res.Documentos {
			m := porCDC[d.CDC]
			estado := entity.EstadoRechazado
			if sifen.EsAprobado(d.EstadoResultado) {
				estado = entity.EstadoAprobado
				out.Aprobados++
			} else {
				out.Rechazados++
			}

			m.EstadoResultado = estado
			m.Codigo = d.Codigo()
			m.Mensaje = truncar(d.Mensaje(), maxMensaje)
			m.ProtocoloAutoriz = d.ProtocoloAutoriz
			if err := lotes.ActualizarMiembro(ctx, m); err != nil {
				return err
			}
			if err := docs.ActualizarEstado(ctx, m.DocumentoID, entity.EstadoEnviado, estado); err != nil {
				return fmt.Errorf("documento %d: %w", m.DocumentoID, err)
			}
			fecha := fechaOAhora(d.FechaProceso, fechaOAhora(res.FechaProceso, now))
			if err := registrarHistorial(ctx, docs, m.DocumentoID, estado, m.Codigo, m.Mensaje, fecha); err != nil {
				return err
			}
		}

		fechaLote := fechaOAhora(res.FechaProceso, now)
		for _, m := range miembros {
			if informados[m.CDC] || m.EstadoResultado != entity.EstadoEnviado {
				continue
			}
			if err := cerrarSinResultado(ctx, lotes, docs, m, res.Codigo, "SIFEN no informó el resultado del documento en el lote concluido", fechaLote); err != nil {
				return err
			}
			out.SinResultado++
		}

		if err := lotes.UpdateEstado(ctx, loteID, entity.EstadoEnviado, entity.EstadoProcesado, nil, res.Raw); err != nil {
			return err
		}
		out.Estado = entity.EstadoProcesado
		return lotes.RegistrarConsulta(ctx, consulta)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Int64("lote_id", loteID).
		Str("codigo", res.Codigo).
		Str("estado", out.Estado).
		Int("aprobados", out.Aprobados).
		Int("rechazados", out.Rechazados).
		Int("sin_resultado", out.SinResultado).
		Msg("resultado de lote conciliado")
	if out.SinResultado > 0 {
		r.log.Error().
			Int64("lote_id", loteID).
			Int("documentos", out.SinResultado).
			Msg("documentos del lote cerrados en ERROR_SEND sin resultado de SIFEN")
	}
	return out, nil
}

// cerrarSinResultado pasa a ERROR_SEND un miembro SENT que SIFEN no resolvió.
// El CDC puede verificarse después con siConsDE.
func cerrarSinResultado(ctx context.Context, lotes repository.LoteRepository, docs repository.DocumentoRepository,
	m *entity.LoteDocumento, codigo, mensaje string, fecha time.Time,
) error {
	m.EstadoResultado = entity.EstadoErrorEnvio
	m.Codigo = codigo
	m.Mensaje = truncar(mensaje, maxMensaje)
	m.ProtocoloAutoriz = ""
	if err := lotes.ActualizarMiembro(ctx, m); err != nil {
		return err
	}
	if err := docs.ActualizarEstado(ctx, m.DocumentoID, entity.EstadoEnviado, entity.EstadoErrorEnvio); err != nil {
		return fmt.Errorf("documento %d: %w", m.DocumentoID, err)
	}
	return registrarHistorial(ctx, docs, m.DocumentoID, entity.EstadoErrorEnvio, codigo, mensaje, fecha)
}

// esAlertaIntegridad indica un error que requiere intervención manual sobre el lote.
func esAlertaIntegridad(err error) bool {
	return errors.Is(err, domain.ErrCDCDesconocido)
}
