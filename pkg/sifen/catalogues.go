// Package sifen contiene catálogos, identificadores y reglas de formato del
// Sistema Integrado de Facturación Electrónica Nacional (SIFEN, Paraguay), Manual Técnico v150.
package sifen

// =============================================================================
// Versión de formato y namespaces
// =============================================================================

const (
	VersionFormato = "150"
	NamespaceSIFEN = "http://ekuatia.set.gov.py/sifen/xsd"
	NamespaceXSI   = "http://www.w3.org/2001/XMLSchema-instance"

	SchemaLocationDE     = NamespaceSIFEN + " siRecepDE_v150.xsd"
	SchemaLocationEvento = NamespaceSIFEN + " siRecepEvento_v150.xsd"

	// URLQRDefault es la base de la URL de consulta del QR (ambiente de producción).
	URLQRDefault = "https://ekuatia.set.gov.py/consultas/qr?"
)

// =============================================================================
// C002 - Tipo de Documento Electrónico (iTiDE)
// =============================================================================

const (
	TipoFacturaElectronica      = 1
	TipoFacturaExportacion      = 2
	TipoFacturaImportacion      = 3
	TipoAutofactura             = 4
	TipoNotaCreditoElectronica  = 5
	TipoNotaDebitoElectronica   = 6
	TipoNotaRemisionElectronica = 7
	TipoComprobanteRetencion    = 8
)

var tiposDocumento = map[int]string{
	TipoFacturaElectronica:      "Factura electrónica",
	TipoFacturaExportacion:      "Factura electrónica de exportación",
	TipoFacturaImportacion:      "Factura electrónica de importación",
	TipoAutofactura:             "Autofactura electrónica",
	TipoNotaCreditoElectronica:  "Nota de crédito electrónica",
	TipoNotaDebitoElectronica:   "Nota de débito electrónica",
	TipoNotaRemisionElectronica: "Nota de remisión electrónica",
	TipoComprobanteRetencion:    "Comprobante de retención electrónico",
}

// DescripcionTipoDocumento devuelve dDesTiDE para un iTiDE (vacío si no existe).
func DescripcionTipoDocumento(tipo int) string {
	return tiposDocumento[tipo]
}

// RequiereDocumentoAsociado indica si el tipo exige el bloque de documento asociado (NC/ND).
func RequiereDocumentoAsociado(tipo int) bool {
	return tipo == TipoNotaCreditoElectronica || tipo == TipoNotaDebitoElectronica
}

// =============================================================================
// B002 - Tipo de emisión / D013 Tipo de impuesto / E011 presencia
// =============================================================================

const (
	TipoEmisionNormal       = 1
	TipoEmisionContingencia = 2
)

// DescripcionTipoEmision devuelve dDesTipEmi.
func DescripcionTipoEmision(tipo int) string {
	switch tipo {
	case TipoEmisionNormal:
		return "Normal"
	case TipoEmisionContingencia:
		return "Contingencia"
	}
	return ""
}

const (
	IndicadorPresenciaPresencial = 1
	DescripcionPresencial        = "Operación presencial"
)

// =============================================================================
// E601 - Condición de la operación / E641 condición de crédito
// =============================================================================

const (
	CondicionContado = 1
	CondicionCredito = 2

	CreditoPlazo = 1
	CreditoCuota = 2
)

// DescripcionCondicion devuelve dDCondOpe.
func DescripcionCondicion(cond int) string {
	switch cond {
	case CondicionContado:
		return "Contado"
	case CondicionCredito:
		return "Crédito"
	}
	return ""
}

// DescripcionCondicionCredito devuelve dDCondCred.
func DescripcionCondicionCredito(cond int) string {
	switch cond {
	case CreditoPlazo:
		return "Plazo"
	case CreditoCuota:
		return "Cuota"
	}
	return ""
}

// =============================================================================
// D201 - Naturaleza del receptor
// =============================================================================

const (
	ReceptorContribuyente   = 1
	ReceptorNoContribuyente = 2
)

// MonedaGuarani código ISO de la moneda nacional; otras monedas exigen tipo de cambio.
const MonedaGuarani = "PYG"

// =============================================================================
// GDE006 - Tipo de evento del emisor
// =============================================================================

const (
	EventoCancelacion   = 1
	EventoInutilizacion = 2
)

// =============================================================================
// Códigos de respuesta SIFEN
// =============================================================================

const (
	CodLoteRecibido          = "0300" // Lote recibido con éxito
	CodLoteNoEncolado        = "0301" // Lote no encolado para procesamiento
	CodConsultaLoteNoExiste  = "0360" // Número de lote inexistente
	CodConsultaLoteEnCurso   = "0361" // Lote en procesamiento
	CodConsultaLoteConcluido = "0362" // Procesamiento de lote concluido
	CodConsultaLoteExpirada  = "0364" // Consulta extemporánea de lote
	CodEventoRegistrado      = "0600" // Evento registrado correctamente

	EstadoResultadoAprobado    = "Aprobado"
	EstadoResultadoAprobadoObs = "Aprobado con observación"
	EstadoResultadoRechazado   = "Rechazado"
)

// EsAprobado interpreta dEstRes de SIFEN.
func EsAprobado(dEstRes string) bool {
	return dEstRes == EstadoResultadoAprobado || dEstRes == EstadoResultadoAprobadoObs
}

// MaxDocumentosPorLote límite de SIFEN para rEnvioLote.
const MaxDocumentosPorLote = 50
