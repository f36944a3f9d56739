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
)

var _ repository.DocumentoRepository = (*DocumentoRepo)(nil)

// DocumentoRepo implementación de DocumentoRepository (usable con pool o tx).
type DocumentoRepo struct {
	q Querier
}

// NewDocumentoRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentoRepository(q Querier) *DocumentoRepo {
	return &DocumentoRepo{q: q}
}

const documentoColumns = `
	id, cdc, dv, sistema_facturacion, numero_documento, fecha_emision, fecha_firma,
	estado_actual, intentos_envio, intentos_consulta, fecha_ultima_consulta, lote_id,
	xml_firmado, qr_url, emisor_id, timbrado_id, tipo_emision, codigo_seguridad,
	info_emisor, info_fiscal, created_at, updated_at`

// ClaimPending reclama documentos y carga sus agregados en una sola transacción:
// si el reclamo no se confirma, las filas siguen en PENDING_SEND.
// FOR UPDATE SKIP LOCKED evita que dos instancias tomen la misma fila.
func (r *DocumentoRepo) ClaimPending(ctx context.Context, limit int) ([]*entity.Documento, error) {
	var list []*entity.Documento
	err := pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		reclamados, refs, err := claimRows(ctx, tx, limit)
		if err != nil {
			return err
		}
		loader := newAggregateLoader(tx)
		repo := NewDocumentoRepository(tx)
		list, err = cargarReclamados(reclamados,
			func(doc *entity.Documento) error {
				// Savepoint: una consulta fallida no invalida el resto del reclamo.
				return pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
					return loader.con(sp).load(ctx, doc, refs[doc.ID])
				})
			},
			func(doc *entity.Documento, causa error) error {
				return repo.descartarReclamado(ctx, doc.ID, causa)
			},
			func(error) bool { return ctx.Err() != nil || tx.Conn().IsClosed() },
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func claimRows(ctx context.Context, q Querier, limit int) ([]*entity.Documento, map[int64]documentoRefs, error) {
	const sql = `
		UPDATE de_documento
		SET estado_actual = $2, updated_at = now()
		WHERE id IN (
			SELECT id FROM de_documento
			WHERE estado_actual = $1
			ORDER BY id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING` + documentoColumns
	rows, err := q.Query(ctx, sql, entity.EstadoPendienteEnvio, entity.EstadoEnLote, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("claim documentos: %w", err)
	}
	defer rows.Close()

	var list []*entity.Documento
	refs := map[int64]documentoRefs{}
	for rows.Next() {
		doc, ref, err := scanDocumento(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan documento: %w", err)
		}
		list = append(list, doc)
		refs[doc.ID] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("claim documentos: %w", err)
	}
	// RETURNING no garantiza orden.
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, refs, nil
}

// cargarReclamados completa cada documento con cargar. Si la carga de un documento falla,
// descartar lo saca del reclamo; si fatal reconoce el error (conexión o contexto),
// se aborta el reclamo completo.
func cargarReclamados(
	list []*entity.Documento,
	cargar func(*entity.Documento) error,
	descartar func(*entity.Documento, error) error,
	fatal func(error) bool,
) ([]*entity.Documento, error) {
	out := make([]*entity.Documento, 0, len(list))
	for _, doc := range list {
		err := cargar(doc)
		if err == nil {
			out = append(out, doc)
			continue
		}
		if fatal(err) {
			return nil, fmt.Errorf("cargar agregados documento %d: %w", doc.ID, err)
		}
		if err := descartar(doc, err); err != nil {
			return nil, fmt.Errorf("descartar documento %d: %w", doc.ID, err)
		}
	}
	return out, nil
}

// descartarReclamado pasa a ERROR_XML un documento recién reclamado cuyos datos no se pudieron leer.
func (r *DocumentoRepo) descartarReclamado(ctx context.Context, id int64, causa error) error {
	if err := r.ActualizarEstado(ctx, id, entity.EstadoEnLote, entity.EstadoErrorXML); err != nil {
		return err
	}
	return r.RegistrarHistorial(ctx, &entity.EstadoHistorial{
		DocumentoID: id,
		Estado:      entity.EstadoErrorXML,
		Mensaje:     recortar("no se pudieron cargar los datos del documento: "+causa.Error(), maxMensaje),
	})
}

func (r *DocumentoRepo) GetByID(ctx context.Context, id int64) (*entity.Documento, error) {
	return r.getOne(ctx, `SELECT`+documentoColumns+` FROM de_documento WHERE id = $1`, id)
}

func (r *DocumentoRepo) GetByCDC(ctx context.Context, cdc string) (*entity.Documento, error) {
	return r.getOne(ctx, `SELECT`+documentoColumns+` FROM de_documento WHERE cdc = $1`, cdc)
}

func (r *DocumentoRepo) getOne(ctx context.Context, q string, arg any) (*entity.Documento, error) {
	doc, ref, err := scanDocumento(r.q.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get documento: %w", err)
	}
	if err := newAggregateLoader(r.q).load(ctx, doc, ref); err != nil {
		return nil, fmt.Errorf("cargar agregados documento %d: %w", doc.ID, err)
	}
	return doc, nil
}

func (r *DocumentoRepo) MarcarFirmado(ctx context.Context, id int64, fechaFirma time.Time, xmlFirmado []byte, qrURL string) error {
	const q = `
		UPDATE de_documento
		SET fecha_firma = $2, xml_firmado = $3, qr_url = $4, updated_at = now()
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, q, id, fechaFirma, xmlFirmado, qrURL); err != nil {
		return fmt.Errorf("update documento firmado: %w", err)
	}
	return nil
}

func (r *DocumentoRepo) ActualizarEstado(ctx context.Context, id int64, from, to string) error {
	if !entity.CanTransition(from, to) {
		return fmt.Errorf("%w: documento %d %s → %s", domain.ErrTransicionInvalida, id, from, to)
	}
	const q = `
		UPDATE de_documento
		SET estado_actual = $3, updated_at = now()
		WHERE id = $1 AND estado_actual = $2`
	tag, err := r.q.Exec(ctx, q, id, from, to)
	if err != nil {
		return fmt.Errorf("update estado documento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: documento %d no está en %s", domain.ErrTransicionInvalida, id, from)
	}
	return nil
}

func (r *DocumentoRepo) AsignarLote(ctx context.Context, id, loteID int64) error {
	const q = `UPDATE de_documento SET lote_id = $2, updated_at = now() WHERE id = $1`
	if _, err := r.q.Exec(ctx, q, id, loteID); err != nil {
		return fmt.Errorf("update lote documento: %w", err)
	}
	return nil
}

func (r *DocumentoRepo) RegistrarFalloEnvio(ctx context.Context, id int64, maxIntentos int) (string, error) {
	const q = `
		UPDATE de_documento
		SET intentos_envio = intentos_envio + 1,
		    estado_actual  = CASE WHEN intentos_envio + 1 >= $3 THEN $4 ELSE $5 END,
		    updated_at     = now()
		WHERE id = $1 AND estado_actual = $2
		RETURNING estado_actual`
	var estado string
	err := r.q.QueryRow(ctx, q, id, entity.EstadoEnLote, maxIntentos,
		entity.EstadoErrorEnvio, entity.EstadoPendienteEnvio).Scan(&estado)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: documento %d no está en %s", domain.ErrTransicionInvalida, id, entity.EstadoEnLote)
		}
		return "", fmt.Errorf("update intentos envio: %w", err)
	}
	return estado, nil
}

func (r *DocumentoRepo) RegistrarHistorial(ctx context.Context, h *entity.EstadoHistorial) error {
	if h.FechaProceso.IsZero() {
		h.FechaProceso = time.Now()
	}
	const q = `
		INSERT INTO de_estado (de_id, codigo, mensaje, estado, fecha_proceso)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := r.q.QueryRow(ctx, q, h.DocumentoID, h.Codigo, h.Mensaje, h.Estado, h.FechaProceso).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("insert de_estado: %w", err)
	}
	return nil
}

func (r *DocumentoRepo) ListHistorial(ctx context.Context, documentoID int64) ([]*entity.EstadoHistorial, error) {
	const q = `
		SELECT id, de_id, codigo, mensaje, estado, fecha_proceso
		FROM de_estado WHERE de_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, q, documentoID)
	if err != nil {
		return nil, fmt.Errorf("list de_estado: %w", err)
	}
	defer rows.Close()
	var list []*entity.EstadoHistorial
	for rows.Next() {
		var h entity.EstadoHistorial
		if err := rows.Scan(&h.ID, &h.DocumentoID, &h.Codigo, &h.Mensaje, &h.Estado, &h.FechaProceso); err != nil {
			return nil, fmt.Errorf("scan de_estado: %w", err)
		}
		list = append(list, &h)
	}
	return list, rows.Err()
}

func (r *DocumentoRepo) ListByLote(ctx context.Context, loteID int64) ([]*entity.Documento, error) {
	q := `
		SELECT` + documentoColumns + `
		FROM de_documento
		WHERE id IN (SELECT documento_id FROM de_lote_documento WHERE lote_id = $1)
		ORDER BY id`
	rows, err := r.q.Query(ctx, q, loteID)
	if err != nil {
		return nil, fmt.Errorf("list documentos lote: %w", err)
	}
	defer rows.Close()
	var list []*entity.Documento
	for rows.Next() {
		doc, _, err := scanDocumento(rows)
		if err != nil {
			return nil, fmt.Errorf("scan documento: %w", err)
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

// ── helpers ───────────────────────────────────────────────────────────────────

// documentoRefs claves foráneas necesarias para cargar los agregados compartidos.
type documentoRefs struct {
	emisorID   *int64
	timbradoID *int64
}

func scanDocumento(row pgxScanner) (*entity.Documento, documentoRefs, error) {
	var (
		d           entity.Documento
		ref         documentoRefs
		tipoEmision *int
		codSeg      *string
		infoEmi     string
		infoFisc    string
	)
	err := row.Scan(
		&d.ID, &d.CDC, &d.DV, &d.SistemaFacturacion, &d.NumeroDocumento, &d.FechaEmision, &d.FechaFirma,
		&d.EstadoActual, &d.IntentosEnvio, &d.IntentosConsulta, &d.FechaUltimaConsulta, &d.LoteID,
		&d.XMLFirmado, &d.QRURL, &ref.emisorID, &ref.timbradoID, &tipoEmision, &codSeg,
		&infoEmi, &infoFisc, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, ref, err
	}
	if tipoEmision != nil && codSeg != nil {
		d.Operacion = &entity.Operacion{
			TipoEmision:     *tipoEmision,
			CodigoSeguridad: *codSeg,
			InfoEmisor:      infoEmi,
			InfoFiscal:      infoFisc,
		}
	}
	return &d, ref, nil
}
