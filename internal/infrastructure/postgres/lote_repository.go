package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
)

var _ repository.LoteRepository = (*LoteRepo)(nil)

// LoteRepo implementación de LoteRepository (usable con pool o tx).
type LoteRepo struct {
	q Querier
}

// NewLoteRepository construye el adaptador. Pasar pool o tx (Querier).
func NewLoteRepository(q Querier) *LoteRepo {
	return &LoteRepo{q: q}
}

const loteColumns = `
	id, tipo_documento, estado, COALESCE(nro_lote_sifen, ''), xml_request, xml_response,
	fecha_envio, intentos_consulta, fecha_ultima_consulta, created_at`

func (r *LoteRepo) Create(ctx context.Context, lote *entity.Lote) error {
	if lote.Estado == "" {
		lote.Estado = entity.EstadoPendienteEnvio
	}
	const q = `
		INSERT INTO de_lote (tipo_documento, estado)
		VALUES ($1, $2)
		RETURNING id, created_at`
	if err := r.q.QueryRow(ctx, q, lote.TipoDocumento, lote.Estado).Scan(&lote.ID, &lote.CreatedAt); err != nil {
		return fmt.Errorf("insert de_lote: %w", err)
	}
	return nil
}

func (r *LoteRepo) GetByID(ctx context.Context, id int64) (*entity.Lote, error) {
	return r.getOne(ctx, `SELECT`+loteColumns+` FROM de_lote WHERE id = $1`, id)
}

func (r *LoteRepo) LockForUpdate(ctx context.Context, id int64) (*entity.Lote, error) {
	return r.getOne(ctx, `SELECT`+loteColumns+` FROM de_lote WHERE id = $1 FOR UPDATE`, id)
}

func (r *LoteRepo) getOne(ctx context.Context, q string, id int64) (*entity.Lote, error) {
	l, err := scanLote(r.q.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get de_lote: %w", err)
	}
	return l, nil
}

func (r *LoteRepo) MarkSent(ctx context.Context, id int64, protocolo string, request, response []byte, fecha time.Time) error {
	const q = `
		UPDATE de_lote
		SET estado = $3, nro_lote_sifen = $4, xml_request = $5, xml_response = $6, fecha_envio = $7
		WHERE id = $1 AND estado = $2`
	tag, err := r.q.Exec(ctx, q, id, entity.EstadoPendienteEnvio, entity.EstadoEnviado,
		nullIfEmpty(protocolo), bytesOrNil(request), bytesOrNil(response), fecha)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: número de lote %s ya registrado", domain.ErrConflict, protocolo)
		}
		return fmt.Errorf("update de_lote enviado: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lote %d no está en %s", domain.ErrTransicionInvalida, id, entity.EstadoPendienteEnvio)
	}
	return nil
}

func (r *LoteRepo) UpdateEstado(ctx context.Context, id int64, from, to string, request, response []byte) error {
	if !entity.CanTransitionLote(from, to) {
		return fmt.Errorf("%w: lote %d %s → %s", domain.ErrTransicionInvalida, id, from, to)
	}
	const q = `
		UPDATE de_lote
		SET estado       = $3,
		    xml_request  = COALESCE($4, xml_request),
		    xml_response = COALESCE($5, xml_response)
		WHERE id = $1 AND estado = $2`
	tag, err := r.q.Exec(ctx, q, id, from, to, bytesOrNil(request), bytesOrNil(response))
	if err != nil {
		return fmt.Errorf("update estado de_lote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lote %d no está en %s", domain.ErrTransicionInvalida, id, from)
	}
	return nil
}

func (r *LoteRepo) RegistrarIntentoConsulta(ctx context.Context, id int64, fecha time.Time) error {
	const q = `
		UPDATE de_lote
		SET intentos_consulta = intentos_consulta + 1, fecha_ultima_consulta = $2
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, q, id, fecha); err != nil {
		return fmt.Errorf("update consulta de_lote: %w", err)
	}
	const qd = `
		UPDATE de_documento
		SET intentos_consulta = intentos_consulta + 1, fecha_ultima_consulta = $2, updated_at = now()
		WHERE id IN (SELECT documento_id FROM de_lote_documento WHERE lote_id = $1)`
	if _, err := r.q.Exec(ctx, qd, id, fecha); err != nil {
		return fmt.Errorf("update consulta documentos: %w", err)
	}
	return nil
}

func (r *LoteRepo) ListPorConsultar(ctx context.Context, maxConsultas, limit int) ([]*entity.Lote, error) {
	q := `
		SELECT` + loteColumns + `
		FROM de_lote
		WHERE estado = $1 AND nro_lote_sifen IS NOT NULL AND intentos_consulta < $2
		ORDER BY id
		LIMIT $3`
	rows, err := r.q.Query(ctx, q, entity.EstadoEnviado, maxConsultas, limit)
	if err != nil {
		return nil, fmt.Errorf("list lotes por consultar: %w", err)
	}
	defer rows.Close()
	var list []*entity.Lote
	for rows.Next() {
		l, err := scanLote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan de_lote: %w", err)
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

func (r *LoteRepo) RegistrarConsulta(ctx context.Context, c *entity.ConsultaLote) error {
	if c.FechaConsulta.IsZero() {
		c.FechaConsulta = time.Now()
	}
	const q = `
		INSERT INTO de_consulta_lote (lote_id, nro_lote, codigo, mensaje, fecha_consulta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := r.q.QueryRow(ctx, q, c.LoteID, c.NumeroLote, c.Codigo, c.Mensaje, c.FechaConsulta).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert de_consulta_lote: %w", err)
	}
	return nil
}

// ── miembros ──────────────────────────────────────────────────────────────────

func (r *LoteRepo) AgregarMiembro(ctx context.Context, m *entity.LoteDocumento) error {
	const q = `
		INSERT INTO de_lote_documento (lote_id, documento_id, cdc)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := r.q.QueryRow(ctx, q, m.LoteID, m.DocumentoID, m.CDC).Scan(&m.ID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: documento %d ya pertenece al lote %d", domain.ErrConflict, m.DocumentoID, m.LoteID)
		}
		return fmt.Errorf("insert de_lote_documento: %w", err)
	}
	return nil
}

func (r *LoteRepo) ListMiembros(ctx context.Context, loteID int64) ([]*entity.LoteDocumento, error) {
	const q = `
		SELECT id, lote_id, documento_id, cdc, estado_resultado, codigo, mensaje, protocolo_autoriz
		FROM de_lote_documento WHERE lote_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, q, loteID)
	if err != nil {
		return nil, fmt.Errorf("list de_lote_documento: %w", err)
	}
	defer rows.Close()
	var list []*entity.LoteDocumento
	for rows.Next() {
		var m entity.LoteDocumento
		err := rows.Scan(&m.ID, &m.LoteID, &m.DocumentoID, &m.CDC,
			&m.EstadoResultado, &m.Codigo, &m.Mensaje, &m.ProtocoloAutoriz)
		if err != nil {
			return nil, fmt.Errorf("scan de_lote_documento: %w", err)
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

func (r *LoteRepo) ActualizarMiembro(ctx context.Context, m *entity.LoteDocumento) error {
	const q = `
		UPDATE de_lote_documento
		SET estado_resultado = $2, codigo = $3, mensaje = $4, protocolo_autoriz = $5
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, q, m.ID, m.EstadoResultado, m.Codigo, m.Mensaje, m.ProtocoloAutoriz); err != nil {
		return fmt.Errorf("update de_lote_documento: %w", err)
	}
	return nil
}

func scanLote(row pgxScanner) (*entity.Lote, error) {
	var l entity.Lote
	err := row.Scan(
		&l.ID, &l.TipoDocumento, &l.Estado, &l.NumeroLoteSIFEN, &l.XMLRequest, &l.XMLResponse,
		&l.FechaEnvio, &l.IntentosConsulta, &l.FechaUltimaConsulta, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
