package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

var _ repository.EventoRepository = (*EventoRepo)(nil)

// EventoRepo implementación de EventoRepository.
type EventoRepo struct {
	q Querier
}

// NewEventoRepository construye el adaptador. Pasar pool o tx (Querier).
func NewEventoRepository(q Querier) *EventoRepo {
	return &EventoRepo{q: q}
}

const eventoColumns = `
	id, tipo, fecha_firma, estado, cdc, timbrado, establecimiento, punto_expedicion,
	numero_inicio, numero_fin, tipo_documento, motivo, codigo_respuesta, mensaje_respuesta,
	protocolo, estado_resultado, fecha_proceso, xml_request, xml_response, created_at`

func (r *EventoRepo) ClaimPending(ctx context.Context, limit int) ([]*entity.Evento, error) {
	q := `
		UPDATE de_evento
		SET estado = $2
		WHERE id IN (
			SELECT id FROM de_evento
			WHERE estado = $1
			ORDER BY id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING` + eventoColumns
	rows, err := r.q.Query(ctx, q, entity.EstadoPendienteEnvio, entity.EstadoEnviado, limit)
	if err != nil {
		return nil, fmt.Errorf("claim eventos: %w", err)
	}
	defer rows.Close()
	var list []*entity.Evento
	for rows.Next() {
		ev, err := scanEvento(rows)
		if err != nil {
			return nil, fmt.Errorf("scan de_evento: %w", err)
		}
		list = append(list, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim eventos: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *EventoRepo) GetByID(ctx context.Context, id int64) (*entity.Evento, error) {
	ev, err := scanEvento(r.q.QueryRow(ctx, `SELECT`+eventoColumns+` FROM de_evento WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get de_evento: %w", err)
	}
	return ev, nil
}

func (r *EventoRepo) SetFechaFirma(ctx context.Context, id int64, fecha time.Time) error {
	if _, err := r.q.Exec(ctx, `UPDATE de_evento SET fecha_firma = $2 WHERE id = $1`, id, fecha); err != nil {
		return fmt.Errorf("update fecha_firma de_evento: %w", err)
	}
	return nil
}

// GuardarRespuesta persiste la respuesta y mueve el evento desde SENT al estado de ev.
func (r *EventoRepo) GuardarRespuesta(ctx context.Context, ev *entity.Evento) error {
	if !entity.CanTransitionEvento(entity.EstadoEnviado, ev.Estado) {
		return fmt.Errorf("%w: evento %d %s → %s", domain.ErrTransicionInvalida, ev.ID, entity.EstadoEnviado, ev.Estado)
	}
	const q = `
		UPDATE de_evento
		SET estado = $3, codigo_respuesta = $4, mensaje_respuesta = $5, protocolo = $6,
		    estado_resultado = $7, fecha_proceso = $8, xml_request = $9, xml_response = $10
		WHERE id = $1 AND estado = $2`
	tag, err := r.q.Exec(ctx, q, ev.ID, entity.EstadoEnviado, ev.Estado,
		ev.CodigoRespuesta, ev.MensajeRespuesta, ev.Protocolo, ev.EstadoResultado, ev.FechaProceso,
		bytesOrNil(ev.XMLRequest), bytesOrNil(ev.XMLResponse))
	if err != nil {
		return fmt.Errorf("update respuesta de_evento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: evento %d no está en %s", domain.ErrTransicionInvalida, ev.ID, entity.EstadoEnviado)
	}
	return nil
}

func (r *EventoRepo) ActualizarEstado(ctx context.Context, id int64, from, to string) error {
	if !entity.CanTransitionEvento(from, to) {
		return fmt.Errorf("%w: evento %d %s → %s", domain.ErrTransicionInvalida, id, from, to)
	}
	tag, err := r.q.Exec(ctx, `UPDATE de_evento SET estado = $3 WHERE id = $1 AND estado = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("update estado de_evento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: evento %d no está en %s", domain.ErrTransicionInvalida, id, from)
	}
	return nil
}

func scanEvento(row pgxScanner) (*entity.Evento, error) {
	var (
		ev   entity.Evento
		can  entity.EventoCancelacion
		inu  entity.EventoInutilizacion
		motv string
	)
	err := row.Scan(
		&ev.ID, &ev.Tipo, &ev.FechaFirma, &ev.Estado, &can.CDC, &inu.Timbrado, &inu.Establecimiento, &inu.PuntoExpedicion,
		&inu.NumeroInicio, &inu.NumeroFin, &inu.TipoDocumento, &motv, &ev.CodigoRespuesta, &ev.MensajeRespuesta,
		&ev.Protocolo, &ev.EstadoResultado, &ev.FechaProceso, &ev.XMLRequest, &ev.XMLResponse, &ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	switch ev.Tipo {
	case sifen.EventoCancelacion:
		can.Motivo = motv
		ev.Cancelacion = &can
	case sifen.EventoInutilizacion:
		inu.Motivo = motv
		ev.Inutilizacion = &inu
	}
	return &ev, nil
}
