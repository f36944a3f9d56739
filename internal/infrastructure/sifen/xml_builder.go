package sifen

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	domsifen "github.com/jhoicas/sifen-transmisor/internal/domain/sifen"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// XMLBuilderService construye el rDE sin firmar (Manual Técnico v150).
type XMLBuilderService struct {
	log zerolog.Logger
}

// NewXMLBuilderService crea el servicio. Los bloques opcionales ausentes se informan como warning.
func NewXMLBuilderService(log zerolog.Logger) *XMLBuilderService {
	return &XMLBuilderService{log: log}
}

// Build valida el documento y genera el rDE compacto, sin declaración XML.
// Emisor, timbrado, operación o receptor ausentes y totales incoherentes son errores fatales.
func (s *XMLBuilderService) Build(ctx *DocumentoBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Documento == nil {
		return nil, fmt.Errorf("%w: falta el documento en el contexto", domain.ErrInvalidInput)
	}
	doc := ctx.Documento
	if err := domsifen.ValidateDocumento(doc); err != nil {
		return nil, fmt.Errorf("documento %d: %w", doc.ID, err)
	}
	log := s.log.With().Int64("documento_id", doc.ID).Str("cdc", doc.CDC).Logger()

	var buf bytes.Buffer
	enc := newXMLWriter(&buf)

	root := xml.StartElement{
		Name: xml.Name{Local: "rDE"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: sifen.NamespaceSIFEN},
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: sifen.NamespaceXSI},
			{Name: xml.Name{Local: "xsi:schemaLocation"}, Value: sifen.SchemaLocationDE},
		},
	}
	enc.token(root)
	writeElem(enc, "dVerFor", sifen.VersionFormato)

	openTag(enc, "DE", xml.Attr{Name: xml.Name{Local: "Id"}, Value: doc.CDC})
	writeElem(enc, "dDVId", doc.DV)
	writeElem(enc, "dFecFirma", sifen.FormatFechaHora(ctx.FechaFirma))
	writeInt(enc, "dSisFact", sistemaFacturacion(doc.SistemaFacturacion))

	writeOperacion(enc, doc.Operacion)
	writeTimbrado(enc, doc.Timbrado, doc.NumeroDocumento)

	// ---- gDatGralOpe
	openTag(enc, "gDatGralOpe")
	writeElem(enc, "dFeEmiDE", sifen.FormatFechaHora(doc.FechaEmision))
	if doc.OperacionComercial != nil {
		writeOperacionComercial(enc, doc.OperacionComercial)
	} else {
		log.Warn().Msg("documento sin operación comercial (gOpeCom omitido)")
	}
	writeEmisor(enc, doc.Emisor)
	writeReceptor(enc, doc.Receptor)
	closeTag(enc, "gDatGralOpe")

	// ---- gDtipDE
	openTag(enc, "gDtipDE")
	if doc.Timbrado.TipoDocumento == sifen.TipoFacturaElectronica {
		openTag(enc, "gCamFE")
		writeInt(enc, "iIndPres", sifen.IndicadorPresenciaPresencial)
		writeElem(enc, "dDesIndPres", sifen.DescripcionPresencial)
		closeTag(enc, "gCamFE")
	}
	if doc.NotaCredito != nil {
		openTag(enc, "gCamNCDE")
		writeInt(enc, "iMotEmi", doc.NotaCredito.Motivo)
		writeElem(enc, "dDesMotEmi", doc.NotaCredito.DescMotivo)
		closeTag(enc, "gCamNCDE")
	}
	if doc.Condicion != nil {
		if err := writeCondicion(enc, doc.Condicion); err != nil {
			return nil, err
		}
	} else if !sifen.RequiereDocumentoAsociado(doc.Timbrado.TipoDocumento) {
		log.Warn().Msg("documento sin condición de la operación (gCamCond omitido)")
	}
	for i := range doc.Items {
		writeItem(enc, &doc.Items[i])
	}
	closeTag(enc, "gDtipDE")

	writeTotales(enc, doc.Totales)
	if doc.NotaCredito != nil {
		writeDocumentoAsociado(enc, doc.NotaCredito)
	}

	closeTag(enc, "DE")
	enc.token(root.End())
	if err := enc.finish(); err != nil {
		return nil, fmt.Errorf("xml: rDE: %w", err)
	}
	return buf.Bytes(), nil
}

func sistemaFacturacion(v int) int {
	if v == 0 {
		return 1
	}
	return v
}

// ── Bloques ───────────────────────────────────────────────────────────────────

func writeOperacion(enc *xmlWriter, ope *entity.Operacion) {
	openTag(enc, "gOpeDE")
	writeInt(enc, "iTipEmi", ope.TipoEmision)
	writeElem(enc, "dDesTipEmi", sifen.DescripcionTipoEmision(ope.TipoEmision))
	writeElem(enc, "dCodSeg", ope.CodigoSeguridad)
	writeOpt(enc, "dInfoEmi", ope.InfoEmisor)
	writeOpt(enc, "dInfoFisc", ope.InfoFiscal)
	closeTag(enc, "gOpeDE")
}

func writeTimbrado(enc *xmlWriter, t *entity.Timbrado, numeroDoc string) {
	desc := t.Descripcion
	if desc == "" {
		desc = sifen.DescripcionTipoDocumento(t.TipoDocumento)
	}
	openTag(enc, "gTimb")
	writeInt(enc, "iTiDE", t.TipoDocumento)
	writeElem(enc, "dDesTiDE", desc)
	writeElem(enc, "dNumTim", t.Numero)
	writeElem(enc, "dEst", t.Establecimiento)
	writeElem(enc, "dPunExp", t.PuntoExpedicion)
	writeElem(enc, "dNumDoc", numeroDoc)
	if !t.FechaInicio.IsZero() {
		writeElem(enc, "dFeIniT", sifen.FormatFecha(t.FechaInicio))
	}
	closeTag(enc, "gTimb")
}

func writeOperacionComercial(enc *xmlWriter, o *entity.OperacionComercial) {
	openTag(enc, "gOpeCom")
	if o.TipoTransaccion != 0 {
		writeInt(enc, "iTipTra", o.TipoTransaccion)
		writeElem(enc, "dDesTipTra", o.DescTipoTransaccion)
	}
	writeInt(enc, "iTImp", o.TipoImpuesto)
	writeElem(enc, "dDesTImp", o.DescTipoImpuesto)
	writeElem(enc, "cMoneOpe", o.Moneda)
	writeElem(enc, "dDesMoneOpe", o.DescMoneda)
	if o.Moneda != sifen.MonedaGuarani && o.TipoCambio != nil {
		writeInt(enc, "dCondTiCam", o.CondicionTipoCambio)
		writeNum(enc, "dTiCam", *o.TipoCambio)
	}
	closeTag(enc, "gOpeCom")
}

func writeEmisor(enc *xmlWriter, e *entity.Emisor) {
	openTag(enc, "gEmis")
	writeElem(enc, "dRucEm", e.RUC)
	writeElem(enc, "dDVEmi", e.DV)
	writeInt(enc, "iTipCont", e.TipoContribuyente)
	writeIntOpt(enc, "cTipReg", e.TipoRegimen)
	writeElem(enc, "dNomEmi", e.Nombre)
	writeOpt(enc, "dNomFanEmi", e.NombreFantasia)
	writeElem(enc, "dDirEmi", e.Direccion)
	writeElem(enc, "dNumCas", e.NumeroCasa)
	writeOpt(enc, "dCompDir1", e.ComplementoDireccion1)
	writeOpt(enc, "dCompDir2", e.ComplementoDireccion2)
	writeInt(enc, "cDepEmi", e.CodigoDepartamento)
	writeElem(enc, "dDesDepEmi", e.Departamento)
	writeIntOpt(enc, "cDisEmi", e.CodigoDistrito)
	writeOpt(enc, "dDesDisEmi", e.Distrito)
	writeInt(enc, "cCiuEmi", e.CodigoCiudad)
	writeElem(enc, "dDesCiuEmi", e.Ciudad)
	writeElem(enc, "dTelEmi", e.Telefono)
	writeElem(enc, "dEmailE", e.Email)
	writeOpt(enc, "dDenSuc", e.Sucursal)
	for _, act := range e.Actividades {
		openTag(enc, "gActEco")
		writeElem(enc, "cActEco", act.Codigo)
		writeElem(enc, "dDesActEco", act.Descripcion)
		closeTag(enc, "gActEco")
	}
	closeTag(enc, "gEmis")
}

func writeReceptor(enc *xmlWriter, r *entity.Receptor) {
	openTag(enc, "gDatRec")
	writeInt(enc, "iNatRec", r.Naturaleza)
	writeInt(enc, "iTiOpe", r.TipoOperacion)
	writeElem(enc, "cPaisRec", r.CodigoPais)
	writeElem(enc, "dDesPaisRe", r.Pais)
	if r.EsContribuyente() {
		writeInt(enc, "iTiContRec", r.TipoContribuyente)
		writeElem(enc, "dRucRec", r.RUC)
		writeElem(enc, "dDVRec", r.DV)
	} else {
		writeIntOpt(enc, "iTipIDRec", r.TipoDocIdentidad)
		writeOpt(enc, "dDTipIDRec", r.DescripcionDocumento)
		writeOpt(enc, "dNumIDRec", r.NumeroDocumento)
	}
	writeElem(enc, "dNomRec", r.Nombre)
	writeOpt(enc, "dNomFanRec", r.NombreFantasia)
	writeOpt(enc, "dDirRec", r.Direccion)
	writeOpt(enc, "dNumCasRec", r.NumeroCasa)
	writeIntOpt(enc, "cDepRec", r.CodigoDepartamento)
	writeOpt(enc, "dDesDepRec", r.Departamento)
	writeIntOpt(enc, "cDisRec", r.CodigoDistrito)
	writeOpt(enc, "dDesDisRec", r.Distrito)
	writeIntOpt(enc, "cCiuRec", r.CodigoCiudad)
	writeOpt(enc, "dDesCiuRec", r.Ciudad)
	writeOpt(enc, "dTelRec", r.Telefono)
	writeOpt(enc, "dCelRec", r.Celular)
	writeOpt(enc, "dEmailRec", r.Email)
	writeOpt(enc, "dCodCliente", r.CodigoCliente)
	closeTag(enc, "gDatRec")
}

func writeCondicion(enc *xmlWriter, cond entity.Condicion) error {
	openTag(enc, "gCamCond")
	writeInt(enc, "iCondOpe", cond.CodigoCondicion())
	writeElem(enc, "dDCondOpe", sifen.DescripcionCondicion(cond.CodigoCondicion()))

	switch c := cond.(type) {
	case entity.Contado:
		for i := range c.Pagos {
			writePagoContado(enc, &c.Pagos[i])
		}
	case entity.Credito:
		openTag(enc, "gPagCred")
		writeInt(enc, "iCondCred", c.Tipo)
		writeElem(enc, "dDCondCred", sifen.DescripcionCondicionCredito(c.Tipo))
		if c.Tipo == sifen.CreditoPlazo {
			writeElem(enc, "dPlazoCre", c.Plazo)
		} else {
			writeInt(enc, "dCuotas", c.Cuotas)
		}
		if c.MontoEntrega != nil {
			writeNum(enc, "dMonEnt", *c.MontoEntrega)
		}
		for _, cu := range c.DetalleCuotas {
			openTag(enc, "gCuotas")
			writeElem(enc, "cMoneCuo", cu.Moneda)
			writeElem(enc, "dDMoneCuo", cu.DescMoneda)
			writeNum(enc, "dMonCuota", cu.Monto)
			writeOpt(enc, "dVencCuo", cu.Vencimiento)
			closeTag(enc, "gCuotas")
		}
		closeTag(enc, "gPagCred")
	default:
		return fmt.Errorf("%w: condición de operación %T", domain.ErrInvalidInput, cond)
	}
	closeTag(enc, "gCamCond")
	return nil
}

func writePagoContado(enc *xmlWriter, p *entity.PagoContado) {
	openTag(enc, "gPaConEIni")
	writeInt(enc, "iTiPago", p.TipoPago)
	writeElem(enc, "dDesTiPag", p.DescTipoPago)
	writeNum(enc, "dMonTiPag", p.Monto)
	writeElem(enc, "cMoneTiPag", p.Moneda)
	writeElem(enc, "dDMoneTiPag", p.DescMoneda)
	if p.Moneda != sifen.MonedaGuarani && p.TipoCambio != nil {
		writeNum(enc, "dTiCamTiPag", *p.TipoCambio)
	}
	if t := p.Tarjeta; t != nil {
		openTag(enc, "gPagTarCD")
		writeInt(enc, "iDenTarj", t.Denominacion)
		writeElem(enc, "dDesDenTarj", t.DescDenominacion)
		writeOpt(enc, "dRSProTar", t.RazonSocial)
		if t.RUCProcesadora != "" {
			writeElem(enc, "dRUCProTar", t.RUCProcesadora)
			writeElem(enc, "dDVProTar", t.DVProcesadora)
		}
		writeInt(enc, "iForProPa", t.FormaProcesamiento)
		writeOpt(enc, "dCodAuOpe", t.CodigoAutorizacion)
		writeOpt(enc, "dNomTit", t.Titular)
		writeOpt(enc, "dNumTarj", t.UltimosDigitos)
		closeTag(enc, "gPagTarCD")
	}
	if ch := p.Cheque; ch != nil {
		openTag(enc, "gPagCheq")
		writeElem(enc, "dNumCheq", ch.Numero)
		writeElem(enc, "dBcoEmi", ch.Banco)
		closeTag(enc, "gPagCheq")
	}
	closeTag(enc, "gPaConEIni")
}

func writeItem(enc *xmlWriter, it *entity.Item) {
	openTag(enc, "gCamItem")
	writeElem(enc, "dCodInt", it.CodigoInterno)
	writeElem(enc, "dDesProSer", it.Descripcion)
	writeInt(enc, "cUniMed", it.UnidadMedida)
	writeElem(enc, "dDesUniMed", it.DescUnidadMedida)
	writeNum(enc, "dCantProSer", it.Cantidad)
	writeOpt(enc, "dInfItem", it.InfoItem)

	openTag(enc, "gValorItem")
	writeNum(enc, "dPUniProSer", it.PrecioUnitario)
	writeNum(enc, "dTotBruOpeItem", it.TotalBruto)
	openTag(enc, "gValorRestaItem")
	writeNum(enc, "dDescItem", it.Descuento)
	writeNum(enc, "dPorcDesIt", it.PorcentajeDescuento)
	writeNum(enc, "dDescGloItem", it.DescuentoGlobal)
	writeNum(enc, "dTotOpeItem", it.TotalOperacion)
	closeTag(enc, "gValorRestaItem")
	closeTag(enc, "gValorItem")

	openTag(enc, "gCamIVA")
	writeInt(enc, "iAfecIVA", it.AfectacionIVA)
	writeElem(enc, "dDesAfecIVA", it.DescAfectacionIVA)
	writeNum(enc, "dPropIVA", it.ProporcionIVA)
	writeNum(enc, "dTasaIVA", it.TasaIVA)
	writeNum(enc, "dBasGravIVA", it.BaseGravadaIVA)
	writeNum(enc, "dLiqIVAItem", it.LiquidacionIVA)
	writeNum(enc, "dBasExe", it.BaseExenta)
	closeTag(enc, "gCamIVA")
	closeTag(enc, "gCamItem")
}

func writeTotales(enc *xmlWriter, t *entity.Totales) {
	openTag(enc, "gTotSub")
	writeNum(enc, "dSubExe", t.SubExento)
	writeNum(enc, "dSubExo", t.SubExonerado)
	writeNum(enc, "dSub5", t.Sub5)
	writeNum(enc, "dSub10", t.Sub10)
	writeNum(enc, "dTotOpe", t.TotalOperacion)
	writeNum(enc, "dTotDesc", t.TotalDescuento)
	writeNum(enc, "dTotDescGlotem", t.TotalDescuentoGlobal)
	writeNum(enc, "dTotAntItem", t.TotalAnticipoItem)
	writeNum(enc, "dTotAnt", t.TotalAnticipo)
	writeElem(enc, "dPorcDescTotal", sifen.FormatNumberPrec(t.PorcentajeDescTotal, sifen.DecimalesPorcentaje))
	writeNum(enc, "dDescTotal", t.DescuentoTotal)
	writeNum(enc, "dAnticipo", t.Anticipo)
	writeNum(enc, "dRedon", t.Redondeo)
	writeNum(enc, "dComi", t.Comision)
	writeNum(enc, "dTotGralOpe", t.TotalGeneral)
	writeNum(enc, "dIVA5", t.IVA5)
	writeNum(enc, "dIVA10", t.IVA10)
	writeNum(enc, "dTotIVA", t.TotalIVA)
	writeNum(enc, "dBaseGrav5", t.BaseGravada5)
	writeNum(enc, "dBaseGrav10", t.BaseGravada10)
	writeNum(enc, "dTBasGraIVA", t.TotalBaseGravada)
	closeTag(enc, "gTotSub")
}

// writeDocumentoAsociado gCamDEAsoc: referencia electrónica por CDC o impresa por timbrado y número.
func writeDocumentoAsociado(enc *xmlWriter, nc *entity.NotaCredito) {
	openTag(enc, "gCamDEAsoc")
	if nc.CDCReferenciado != "" {
		writeInt(enc, "iTipDocAso", 1)
		writeElem(enc, "dDesTipDocAso", "Electrónico")
		writeElem(enc, "dCdCDERef", nc.CDCReferenciado)
	} else {
		writeInt(enc, "iTipDocAso", 2)
		writeElem(enc, "dDesTipDocAso", "Impreso")
		writeElem(enc, "dNTimDI", nc.TimbradoRef)
		writeElem(enc, "dEstDocAso", nc.EstablecimientoRef)
		writeElem(enc, "dPExpDocAso", nc.PuntoRef)
		writeElem(enc, "dNumDocAso", nc.NumeroRef)
	}
	closeTag(enc, "gCamDEAsoc")
}

// ── Helpers de escritura ──────────────────────────────────────────────────────

// xmlWriter conserva el primer error del encoder; los tokens posteriores se descartan.
type xmlWriter struct {
	enc *xml.Encoder
	err error
}

func newXMLWriter(w io.Writer) *xmlWriter {
	return &xmlWriter{enc: xml.NewEncoder(w)}
}

func (w *xmlWriter) token(t xml.Token) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(t)
	}
}

// finish vacía el buffer y falla si hubo un error previo o quedaron elementos sin cerrar.
func (w *xmlWriter) finish() error {
	if w.err != nil {
		return w.err
	}
	return w.enc.Close()
}

func openTag(enc *xmlWriter, local string, attrs ...xml.Attr) {
	enc.token(xml.StartElement{Name: xml.Name{Local: local}, Attr: attrs})
}

func closeTag(enc *xmlWriter, local string) {
	enc.token(xml.EndElement{Name: xml.Name{Local: local}})
}

func writeElem(enc *xmlWriter, local, value string) {
	openTag(enc, local)
	enc.token(xml.CharData(value))
	closeTag(enc, local)
}

// writeOpt omite el elemento cuando no hay valor: SIFEN rechaza elementos vacíos.
func writeOpt(enc *xmlWriter, local, value string) {
	if value != "" {
		writeElem(enc, local, value)
	}
}

func writeInt(enc *xmlWriter, local string, v int) {
	writeElem(enc, local, strconv.Itoa(v))
}

func writeIntOpt(enc *xmlWriter, local string, v int) {
	if v != 0 {
		writeInt(enc, local, v)
	}
}

func writeNum(enc *xmlWriter, local string, d decimal.Decimal) {
	writeElem(enc, local, sifen.FormatNumber(d))
}
