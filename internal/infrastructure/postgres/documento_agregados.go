package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
	"github.com/shopspring/decimal"
)

// aggregateLoader carga los agregados de un documento. Emisores y timbrados se
// comparten entre documentos del mismo ciclo y se leen una sola vez.
type aggregateLoader struct {
	q         Querier
	emisores  map[int64]*entity.Emisor
	timbrados map[int64]*entity.Timbrado
}

func newAggregateLoader(q Querier) *aggregateLoader {
	return &aggregateLoader{
		q:         q,
		emisores:  map[int64]*entity.Emisor{},
		timbrados: map[int64]*entity.Timbrado{},
	}
}

// con comparte las cachés y consulta sobre q.
func (l *aggregateLoader) con(q Querier) *aggregateLoader {
	return &aggregateLoader{q: q, emisores: l.emisores, timbrados: l.timbrados}
}

// load completa doc. Un agregado ausente queda en nil; la validación del documento decide.
func (l *aggregateLoader) load(ctx context.Context, doc *entity.Documento, ref documentoRefs) error {
	var err error
	if ref.emisorID != nil {
		if doc.Emisor, err = l.emisor(ctx, *ref.emisorID); err != nil {
			return err
		}
	}
	if ref.timbradoID != nil {
		if doc.Timbrado, err = l.timbrado(ctx, *ref.timbradoID); err != nil {
			return err
		}
	}
	if doc.Receptor, err = l.receptor(ctx, doc.ID); err != nil {
		return err
	}
	if doc.OperacionComercial, err = l.operacionComercial(ctx, doc.ID); err != nil {
		return err
	}
	if doc.Condicion, err = l.condicion(ctx, doc.ID); err != nil {
		return err
	}
	if doc.NotaCredito, err = l.notaCredito(ctx, doc.ID); err != nil {
		return err
	}
	if doc.Items, err = l.items(ctx, doc.ID); err != nil {
		return err
	}
	if doc.Totales, err = l.totales(ctx, doc.ID); err != nil {
		return err
	}
	return nil
}

func (l *aggregateLoader) emisor(ctx context.Context, id int64) (*entity.Emisor, error) {
	if e, ok := l.emisores[id]; ok {
		return e, nil
	}
	const q = `
		SELECT id, ruc, dv, tipo_contribuyente, tipo_regimen, nombre, nombre_fantasia,
		       direccion, numero_casa, comp_direccion1, comp_direccion2,
		       cod_departamento, departamento, cod_distrito, distrito, cod_ciudad, ciudad,
		       telefono, email, sucursal
		FROM de_emisor WHERE id = $1`
	var e entity.Emisor
	err := l.q.QueryRow(ctx, q, id).Scan(
		&e.ID, &e.RUC, &e.DV, &e.TipoContribuyente, &e.TipoRegimen, &e.Nombre, &e.NombreFantasia,
		&e.Direccion, &e.NumeroCasa, &e.ComplementoDireccion1, &e.ComplementoDireccion2,
		&e.CodigoDepartamento, &e.Departamento, &e.CodigoDistrito, &e.Distrito, &e.CodigoCiudad, &e.Ciudad,
		&e.Telefono, &e.Email, &e.Sucursal,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get de_emisor: %w", err)
	}

	const qa = `SELECT codigo, descripcion FROM de_emisor_actividad WHERE emisor_id = $1 ORDER BY id`
	rows, err := l.q.Query(ctx, qa, id)
	if err != nil {
		return nil, fmt.Errorf("list de_emisor_actividad: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a entity.ActividadEconomica
		if err := rows.Scan(&a.Codigo, &a.Descripcion); err != nil {
			return nil, fmt.Errorf("scan actividad: %w", err)
		}
		e.Actividades = append(e.Actividades, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	l.emisores[id] = &e
	return &e, nil
}

func (l *aggregateLoader) timbrado(ctx context.Context, id int64) (*entity.Timbrado, error) {
	if t, ok := l.timbrados[id]; ok {
		return t, nil
	}
	const q = `
		SELECT id, tipo_documento, descripcion, numero, establecimiento, punto_expedicion, fecha_inicio
		FROM de_timbrado WHERE id = $1`
	var t entity.Timbrado
	err := l.q.QueryRow(ctx, q, id).Scan(
		&t.ID, &t.TipoDocumento, &t.Descripcion, &t.Numero, &t.Establecimiento, &t.PuntoExpedicion, &t.FechaInicio,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get de_timbrado: %w", err)
	}
	l.timbrados[id] = &t
	return &t, nil
}

func (l *aggregateLoader) receptor(ctx context.Context, deID int64) (*entity.Receptor, error) {
	const q = `
		SELECT naturaleza, tipo_operacion, cod_pais, pais, tipo_contribuyente, ruc, dv,
		       tipo_doc_identidad, desc_documento, numero_documento, nombre, nombre_fantasia,
		       direccion, numero_casa, cod_departamento, departamento, cod_distrito, distrito,
		       cod_ciudad, ciudad, telefono, celular, email, codigo_cliente
		FROM de_receptor WHERE de_id = $1`
	var r entity.Receptor
	err := l.q.QueryRow(ctx, q, deID).Scan(
		&r.Naturaleza, &r.TipoOperacion, &r.CodigoPais, &r.Pais, &r.TipoContribuyente, &r.RUC, &r.DV,
		&r.TipoDocIdentidad, &r.DescripcionDocumento, &r.NumeroDocumento, &r.Nombre, &r.NombreFantasia,
		&r.Direccion, &r.NumeroCasa, &r.CodigoDepartamento, &r.Departamento, &r.CodigoDistrito, &r.Distrito,
		&r.CodigoCiudad, &r.Ciudad, &r.Telefono, &r.Celular, &r.Email, &r.CodigoCliente,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get de_receptor: %w", err)
	}
	return &r, nil
}

func (l *aggregateLoader) operacionComercial(ctx context.Context, deID int64) (*entity.OperacionComercial, error) {
	const q = `
		SELECT tipo_transaccion, desc_tipo_transaccion, tipo_impuesto, desc_tipo_impuesto,
		       moneda, desc_moneda, condicion_tipo_cambio, tipo_cambio
		FROM de_operacion_comercial WHERE de_id = $1`
	var o entity.OperacionComercial
	err := l.q.QueryRow(ctx, q, deID).Scan(
		&o.TipoTransaccion, &o.DescTipoTransaccion, &o.TipoImpuesto, &o.DescTipoImpuesto,
		&o.Moneda, &o.DescMoneda, &o.CondicionTipoCambio, &o.TipoCambio,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get de_operacion_comercial: %w", err)
	}
	return &o, nil
}

func (l *aggregateLoader) condicion(ctx context.Context, deID int64) (entity.Condicion, error) {
	const q = `
		SELECT condicion, tipo_credito, plazo, cuotas, monto_entrega
		FROM de_condicion WHERE de_id = $1`
	var (
		codigo int
		cred   entity.Credito
	)
	err := l.q.QueryRow(ctx, q, deID).Scan(&codigo, &cred.Tipo, &cred.Plazo, &cred.Cuotas, &cred.MontoEntrega)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get de_condicion: %w", err)
	}
	switch codigo {
	case sifen.CondicionContado:
		pagos, err := l.pagos(ctx, deID)
		if err != nil {
			return nil, err
		}
		return entity.Contado{Pagos: pagos}, nil
	case sifen.CondicionCredito:
		if cred.DetalleCuotas, err = l.cuotas(ctx, deID); err != nil {
			return nil, err
		}
		return cred, nil
	}
	return nil, fmt.Errorf("condición de operación desconocida: %d", codigo)
}

func (l *aggregateLoader) pagos(ctx context.Context, deID int64) ([]entity.PagoContado, error) {
	const q = `
		SELECT tipo_pago, desc_tipo_pago, monto, moneda, desc_moneda, tipo_cambio,
		       tarjeta_denominacion, COALESCE(tarjeta_desc, ''), COALESCE(tarjeta_razon_social, ''),
		       COALESCE(tarjeta_ruc, ''), COALESCE(tarjeta_dv, ''), COALESCE(tarjeta_forma_proc, 0),
		       COALESCE(tarjeta_cod_autoriz, ''), COALESCE(tarjeta_titular, ''), COALESCE(tarjeta_ultimos, ''),
		       cheque_numero, COALESCE(cheque_banco, '')
		FROM de_pago_contado WHERE de_id = $1 ORDER BY id`
	rows, err := l.q.Query(ctx, q, deID)
	if err != nil {
		return nil, fmt.Errorf("list de_pago_contado: %w", err)
	}
	defer rows.Close()
	var list []entity.PagoContado
	for rows.Next() {
		var (
			p         entity.PagoContado
			t         entity.PagoTarjeta
			denom     *int
			chequeNro *string
			banco     string
		)
		err := rows.Scan(
			&p.TipoPago, &p.DescTipoPago, &p.Monto, &p.Moneda, &p.DescMoneda, &p.TipoCambio,
			&denom, &t.DescDenominacion, &t.RazonSocial,
			&t.RUCProcesadora, &t.DVProcesadora, &t.FormaProcesamiento,
			&t.CodigoAutorizacion, &t.Titular, &t.UltimosDigitos,
			&chequeNro, &banco,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pago: %w", err)
		}
		if denom != nil {
			t.Denominacion = *denom
			p.Tarjeta = &t
		}
		if chequeNro != nil {
			p.Cheque = &entity.PagoCheque{Numero: *chequeNro, Banco: banco}
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (l *aggregateLoader) cuotas(ctx context.Context, deID int64) ([]entity.Cuota, error) {
	const q = `SELECT moneda, desc_moneda, monto, vencimiento FROM de_cuota WHERE de_id = $1 ORDER BY id`
	rows, err := l.q.Query(ctx, q, deID)
	if err != nil {
		return nil, fmt.Errorf("list de_cuota: %w", err)
	}
	defer rows.Close()
	var list []entity.Cuota
	for rows.Next() {
		var c entity.Cuota
		if err := rows.Scan(&c.Moneda, &c.DescMoneda, &c.Monto, &c.Vencimiento); err != nil {
			return nil, fmt.Errorf("scan cuota: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (l *aggregateLoader) notaCredito(ctx context.Context, deID int64) (*entity.NotaCredito, error) {
	const q = `
		SELECT motivo, desc_motivo, cdc_referenciado, timbrado_ref, establecimiento_ref, punto_ref, numero_ref
		FROM de_nota_credito_debito WHERE de_id = $1`
	var n entity.NotaCredito
	err := l.q.QueryRow(ctx, q, deID).Scan(
		&n.Motivo, &n.DescMotivo, &n.CDCReferenciado, &n.TimbradoRef, &n.EstablecimientoRef, &n.PuntoRef, &n.NumeroRef,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get de_nota_credito_debito: %w", err)
	}
	return &n, nil
}

func (l *aggregateLoader) items(ctx context.Context, deID int64) ([]entity.Item, error) {
	const q = `
		SELECT codigo_interno, descripcion, unidad_medida, desc_unidad_medida, cantidad, info_item,
		       precio_unitario, total_bruto, descuento, porcentaje_descuento, descuento_global,
		       total_operacion, afectacion_iva, desc_afectacion_iva, proporcion_iva, tasa_iva,
		       base_gravada_iva, liquidacion_iva, base_exenta
		FROM de_item WHERE de_id = $1 ORDER BY id`
	rows, err := l.q.Query(ctx, q, deID)
	if err != nil {
		return nil, fmt.Errorf("list de_item: %w", err)
	}
	defer rows.Close()
	var list []entity.Item
	for rows.Next() {
		var it entity.Item
		err := rows.Scan(
			&it.CodigoInterno, &it.Descripcion, &it.UnidadMedida, &it.DescUnidadMedida, &it.Cantidad, &it.InfoItem,
			&it.PrecioUnitario, &it.TotalBruto, &it.Descuento, &it.PorcentajeDescuento, &it.DescuentoGlobal,
			&it.TotalOperacion, &it.AfectacionIVA, &it.DescAfectacionIVA, &it.ProporcionIVA, &it.TasaIVA,
			&it.BaseGravadaIVA, &it.LiquidacionIVA, &it.BaseExenta,
		)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		list = append(list, it)
	}
	return list, rows.Err()
}

func (l *aggregateLoader) totales(ctx context.Context, deID int64) (*entity.Totales, error) {
	const q = `
		SELECT sub_exento, sub_exonerado, sub5, sub10, total_operacion, total_descuento,
		       total_descuento_global, total_anticipo_item, total_anticipo, porcentaje_desc_total,
		       descuento_total, anticipo, redondeo, comision, total_general, iva5, iva10, total_iva,
		       base_gravada5, base_gravada10, total_base_gravada
		FROM de_totales WHERE de_id = $1`
	var t entity.Totales
	dest := []*decimal.Decimal{
		&t.SubExento, &t.SubExonerado, &t.Sub5, &t.Sub10, &t.TotalOperacion, &t.TotalDescuento,
		&t.TotalDescuentoGlobal, &t.TotalAnticipoItem, &t.TotalAnticipo, &t.PorcentajeDescTotal,
		&t.DescuentoTotal, &t.Anticipo, &t.Redondeo, &t.Comision, &t.TotalGeneral, &t.IVA5, &t.IVA10, &t.TotalIVA,
		&t.BaseGravada5, &t.BaseGravada10, &t.TotalBaseGravada,
	}
	args := make([]any, len(dest))
	for i, d := range dest {
		args[i] = d
	}
	if err := l.q.QueryRow(ctx, q, deID).Scan(args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get de_totales: %w", err)
	}
	return &t, nil
}
