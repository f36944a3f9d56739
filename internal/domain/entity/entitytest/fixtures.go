// Package entitytest provee documentos y eventos válidos para pruebas de los distintos paquetes.
package entitytest

import (
	"fmt"
	"time"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	domsifen "github.com/jhoicas/sifen-transmisor/internal/domain/sifen"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
	"github.com/shopspring/decimal"
)

// FechaEmision fecha fija de los documentos de prueba.
var FechaEmision = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

// Emisor contribuyente persona jurídica con RUC 80069563-1.
func Emisor() *entity.Emisor {
	return &entity.Emisor{
		ID:                 1,
		RUC:                "80069563",
		DV:                 "1",
		TipoContribuyente:  2,
		TipoRegimen:        8,
		Nombre:             "DE generado en ambiente de prueba - sin valor comercial ni fiscal",
		Direccion:          "AVDA. MCAL. LOPEZ",
		NumeroCasa:         "1234",
		CodigoDepartamento: 1,
		Departamento:       "CAPITAL",
		CodigoCiudad:       1,
		Ciudad:             "ASUNCION (DISTRITO)",
		Telefono:           "021123456",
		Email:              "facturacion@example.com.py",
		Actividades: []entity.ActividadEconomica{
			{Codigo: "46510", Descripcion: "COMERCIO AL POR MAYOR DE EQUIPOS INFORMÁTICOS Y SOFTWARE"},
		},
	}
}

// Receptor contribuyente B2B con RUC 80012345-0.
func Receptor() *entity.Receptor {
	return &entity.Receptor{
		Naturaleza:         sifen.ReceptorContribuyente,
		TipoOperacion:      1,
		CodigoPais:         "PRY",
		Pais:               "Paraguay",
		TipoContribuyente:  2,
		RUC:                "80012345",
		DV:                 "0",
		Nombre:             "CLIENTE DE PRUEBA S.A.",
		Direccion:          "CALLE 1 ENTRE CALLE 2 Y CALLE 3",
		NumeroCasa:         "123",
		CodigoDepartamento: 1,
		Departamento:       "CAPITAL",
		CodigoCiudad:       1,
		Ciudad:             "ASUNCION (DISTRITO)",
		Email:              "cliente@example.com.py",
	}
}

// Timbrado de factura electrónica, establecimiento 001, punto 001.
func Timbrado() *entity.Timbrado {
	return &entity.Timbrado{
		ID:              1,
		TipoDocumento:   sifen.TipoFacturaElectronica,
		Descripcion:     sifen.DescripcionTipoDocumento(sifen.TipoFacturaElectronica),
		Numero:          "12345678",
		Establecimiento: "001",
		PuntoExpedicion: "001",
		FechaInicio:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Items un ítem gravado al 10 % (110.000 Gs IVA incluido) y uno exento (50.000 Gs).
func Items() []entity.Item {
	return []entity.Item{
		{
			CodigoInterno:     "P-001",
			Descripcion:       "Servicio de soporte técnico",
			UnidadMedida:      77,
			DescUnidadMedida:  "UNI",
			Cantidad:          decimal.NewFromInt(1),
			PrecioUnitario:    decimal.NewFromInt(110000),
			TotalBruto:        decimal.NewFromInt(110000),
			TotalOperacion:    decimal.NewFromInt(110000),
			AfectacionIVA:     1,
			DescAfectacionIVA: "Gravado IVA",
			ProporcionIVA:     decimal.NewFromInt(100),
			TasaIVA:           decimal.NewFromInt(10),
			BaseGravadaIVA:    decimal.NewFromInt(100000),
			LiquidacionIVA:    decimal.NewFromInt(10000),
		},
		{
			CodigoInterno:     "P-002",
			Descripcion:       "Libro de texto",
			UnidadMedida:      77,
			DescUnidadMedida:  "UNI",
			Cantidad:          decimal.NewFromInt(2),
			PrecioUnitario:    decimal.NewFromInt(25000),
			TotalBruto:        decimal.NewFromInt(50000),
			TotalOperacion:    decimal.NewFromInt(50000),
			AfectacionIVA:     3,
			DescAfectacionIVA: "Exento",
			ProporcionIVA:     decimal.Zero,
			TasaIVA:           decimal.Zero,
		},
	}
}

// Totales coherentes con Items.
func Totales() *entity.Totales {
	return &entity.Totales{
		SubExento:        decimal.NewFromInt(50000),
		Sub10:            decimal.NewFromInt(110000),
		TotalOperacion:   decimal.NewFromInt(160000),
		TotalGeneral:     decimal.NewFromInt(160000),
		IVA10:            decimal.NewFromInt(10000),
		TotalIVA:         decimal.NewFromInt(10000),
		BaseGravada10:    decimal.NewFromInt(100000),
		TotalBaseGravada: decimal.NewFromInt(100000),
	}
}

// Documento factura electrónica válida en estado PENDING_SEND. numero define dNumDoc y el CDC.
func Documento(id int64, numero int) *entity.Documento {
	nro := fmt.Sprintf("%07d", numero)
	emisor := Emisor()
	timb := Timbrado()
	ope := &entity.Operacion{TipoEmision: sifen.TipoEmisionNormal, CodigoSeguridad: "123456789"}

	doc := &entity.Documento{
		ID:                 id,
		SistemaFacturacion: 1,
		NumeroDocumento:    nro,
		FechaEmision:       FechaEmision,
		EstadoActual:       entity.EstadoPendienteEnvio,
		Emisor:             emisor,
		Receptor:           Receptor(),
		Timbrado:           timb,
		Operacion:          ope,
		OperacionComercial: &entity.OperacionComercial{
			TipoTransaccion:     2,
			DescTipoTransaccion: "Prestación de servicios",
			TipoImpuesto:        1,
			DescTipoImpuesto:    "IVA",
			Moneda:              sifen.MonedaGuarani,
			DescMoneda:          "Guarani",
		},
		Condicion: entity.Contado{Pagos: []entity.PagoContado{{
			TipoPago:     1,
			DescTipoPago: "Efectivo",
			Monto:        decimal.NewFromInt(160000),
			Moneda:       sifen.MonedaGuarani,
			DescMoneda:   "Guarani",
		}}},
		Items:   Items(),
		Totales: Totales(),
	}
	RecalcularCDC(doc)
	return doc
}

// RecalcularCDC vuelve a componer CDC y DV tras modificar campos que forman parte del CDC.
func RecalcularCDC(doc *entity.Documento) {
	cdc, err := domsifen.CDCEsperado(doc)
	if err != nil {
		panic(err)
	}
	doc.CDC = cdc
	doc.DV = sifen.DVDeCDC(cdc)
}

// EventoCancelacion evento de cancelación pendiente sobre cdc.
func EventoCancelacion(id int64, cdc string) *entity.Evento {
	return &entity.Evento{
		ID:     id,
		Tipo:   sifen.EventoCancelacion,
		Estado: entity.EstadoPendienteEnvio,
		Cancelacion: &entity.EventoCancelacion{
			CDC:    cdc,
			Motivo: "Error en los datos del receptor",
		},
	}
}

// EventoInutilizacion evento de inutilización del rango 10..15.
func EventoInutilizacion(id int64) *entity.Evento {
	return &entity.Evento{
		ID:     id,
		Tipo:   sifen.EventoInutilizacion,
		Estado: entity.EstadoPendienteEnvio,
		Inutilizacion: &entity.EventoInutilizacion{
			Timbrado:        "12345678",
			Establecimiento: "001",
			PuntoExpedicion: "001",
			NumeroInicio:    "0000010",
			NumeroFin:       "0000015",
			TipoDocumento:   sifen.TipoFacturaElectronica,
			Motivo:          "Salto de numeración por falla del sistema",
		},
	}
}
