package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Documento documento electrónico (DE) con sus agregados cargados.
// Tras la firma solo cambian estado, contadores de reintento y lote.
type Documento struct {
	ID                  int64
	CDC                 string // 44 dígitos, incluye el DV
	DV                  string // dDVId
	SistemaFacturacion  int    // dSisFact: 1 = sistema del contribuyente, 2 = SIFEN gratuito
	NumeroDocumento     string // dNumDoc, 7 dígitos
	FechaEmision        time.Time
	FechaFirma          *time.Time
	EstadoActual        string
	IntentosEnvio       int
	IntentosConsulta    int
	FechaUltimaConsulta *time.Time
	LoteID              *int64
	XMLFirmado          []byte
	QRURL               string
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Emisor             *Emisor
	Receptor           *Receptor
	Timbrado           *Timbrado
	Operacion          *Operacion
	OperacionComercial *OperacionComercial
	Condicion          Condicion
	NotaCredito        *NotaCredito
	Items              []Item
	Totales            *Totales
}

// Operacion descriptor de emisión (gOpeDE).
type Operacion struct {
	TipoEmision     int    // iTipEmi
	CodigoSeguridad string // dCodSeg, 9 dígitos
	InfoEmisor      string // dInfoEmi (opcional)
	InfoFiscal      string // dInfoFisc (opcional)
}

// Timbrado autorización de numeración (gTimb).
type Timbrado struct {
	ID              int64
	TipoDocumento   int // iTiDE
	Descripcion     string
	Numero          string // dNumTim
	Establecimiento string // dEst
	PuntoExpedicion string // dPunExp
	FechaInicio     time.Time
}

// Emisor contribuyente que emite el documento (gEmis).
type Emisor struct {
	ID                    int64
	RUC                   string
	DV                    string
	TipoContribuyente     int // 1 física, 2 jurídica
	TipoRegimen           int // cTipReg, 0 = ausente
	Nombre                string
	NombreFantasia        string
	Direccion             string
	NumeroCasa            string
	ComplementoDireccion1 string
	ComplementoDireccion2 string
	CodigoDepartamento    int
	Departamento          string
	CodigoDistrito        int
	Distrito              string
	CodigoCiudad          int
	Ciudad                string
	Telefono              string
	Email                 string
	Sucursal              string
	Actividades           []ActividadEconomica
}

// ActividadEconomica gActEco.
type ActividadEconomica struct {
	Codigo      string
	Descripcion string
}

// Receptor destinatario del documento (gDatRec).
type Receptor struct {
	Naturaleza           int // iNatRec: 1 contribuyente, 2 no contribuyente
	TipoOperacion        int // iTiOpe: 1 B2B, 2 B2C, 3 B2G, 4 B2F
	CodigoPais           string
	Pais                 string
	TipoContribuyente    int    // iTiContRec, solo contribuyentes
	RUC                  string // dRucRec
	DV                   string // dDVRec
	TipoDocIdentidad     int    // iTipIDRec, solo no contribuyentes
	DescripcionDocumento string // dDTipIDRec
	NumeroDocumento      string // dNumIDRec
	Nombre               string
	NombreFantasia       string
	Direccion            string
	NumeroCasa           string
	CodigoDepartamento   int
	Departamento         string
	CodigoDistrito       int
	Distrito             string
	CodigoCiudad         int
	Ciudad               string
	Telefono             string
	Celular              string
	Email                string
	CodigoCliente        string
}

// EsContribuyente indica si el receptor se identifica por RUC.
func (r *Receptor) EsContribuyente() bool {
	return r != nil && r.Naturaleza == 1
}

// DocumentoQR identificación del receptor que va en el QR (RUC o documento de identidad).
func (r *Receptor) DocumentoQR() string {
	if r == nil {
		return ""
	}
	if r.EsContribuyente() {
		return r.RUC
	}
	return r.NumeroDocumento
}

// OperacionComercial gOpeCom: tipo de transacción, impuesto y moneda.
type OperacionComercial struct {
	TipoTransaccion     int // iTipTra, 0 = ausente
	DescTipoTransaccion string
	TipoImpuesto        int // iTImp
	DescTipoImpuesto    string
	Moneda              string // cMoneOpe
	DescMoneda          string
	CondicionTipoCambio int              // dCondTiCam, solo moneda extranjera
	TipoCambio          *decimal.Decimal // dTiCam
}

// NotaCredito datos de la nota de crédito/débito y del documento que ajusta.
type NotaCredito struct {
	Motivo             int // iMotEmi
	DescMotivo         string
	CDCReferenciado    string // dCDCDERef, cuando el documento asociado es electrónico
	TimbradoRef        string
	EstablecimientoRef string
	PuntoRef           string
	NumeroRef          string
}

// Item línea del documento (gCamItem).
type Item struct {
	CodigoInterno       string
	Descripcion         string
	UnidadMedida        int
	DescUnidadMedida    string
	Cantidad            decimal.Decimal
	InfoItem            string
	PrecioUnitario      decimal.Decimal
	TotalBruto          decimal.Decimal
	Descuento           decimal.Decimal
	PorcentajeDescuento decimal.Decimal
	DescuentoGlobal     decimal.Decimal
	TotalOperacion      decimal.Decimal
	AfectacionIVA       int // iAfecIVA: 1 gravado, 2 exonerado, 3 exento, 4 parcial
	DescAfectacionIVA   string
	ProporcionIVA       decimal.Decimal
	TasaIVA             decimal.Decimal // 0, 5 o 10
	BaseGravadaIVA      decimal.Decimal
	LiquidacionIVA      decimal.Decimal
	BaseExenta          decimal.Decimal
}

// Totales subtotales y totales del documento (gTotSub).
type Totales struct {
	SubExento            decimal.Decimal
	SubExonerado         decimal.Decimal
	Sub5                 decimal.Decimal
	Sub10                decimal.Decimal
	TotalOperacion       decimal.Decimal
	TotalDescuento       decimal.Decimal
	TotalDescuentoGlobal decimal.Decimal
	TotalAnticipoItem    decimal.Decimal
	TotalAnticipo        decimal.Decimal
	PorcentajeDescTotal  decimal.Decimal
	DescuentoTotal       decimal.Decimal
	Anticipo             decimal.Decimal
	Redondeo             decimal.Decimal
	Comision             decimal.Decimal
	TotalGeneral         decimal.Decimal
	IVA5                 decimal.Decimal
	IVA10                decimal.Decimal
	TotalIVA             decimal.Decimal
	BaseGravada5         decimal.Decimal
	BaseGravada10        decimal.Decimal
	TotalBaseGravada     decimal.Decimal
}

// EstadoHistorial fila append-only con cada respuesta de SIFEN para un documento.
type EstadoHistorial struct {
	ID           int64
	DocumentoID  int64
	Codigo       string
	Mensaje      string
	Estado       string
	FechaProceso time.Time
}
