package entity

import "github.com/shopspring/decimal"

// Condicion condición de la operación (gCamCond). Las variantes son Contado y Credito.
type Condicion interface {
	CodigoCondicion() int
}

// Contado operación al contado con uno o más medios de pago (gPaConEIni).
type Contado struct {
	Pagos []PagoContado
}

// CodigoCondicion implementa Condicion.
func (Contado) CodigoCondicion() int { return 1 }

// PagoContado un medio de pago de la entrega inicial.
type PagoContado struct {
	TipoPago     int // iTiPago: 1 efectivo, 2 cheque, 3 tarjeta crédito, 4 tarjeta débito...
	DescTipoPago string
	Monto        decimal.Decimal
	Moneda       string
	DescMoneda   string
	TipoCambio   *decimal.Decimal // dTiCamTiPag, solo moneda extranjera
	Tarjeta      *PagoTarjeta
	Cheque       *PagoCheque
}

// PagoTarjeta gPagTarCD.
type PagoTarjeta struct {
	Denominacion       int // iDenTarj
	DescDenominacion   string
	RazonSocial        string
	RUCProcesadora     string
	DVProcesadora      string
	FormaProcesamiento int // iForProPa
	CodigoAutorizacion string
	Titular            string
	UltimosDigitos     string
}

// PagoCheque gPagCheq.
type PagoCheque struct {
	Numero string
	Banco  string
}

// Credito operación a crédito, por plazo o por cuotas (gPagCred).
type Credito struct {
	Tipo          int    // iCondCred: 1 plazo, 2 cuota
	Plazo         string // dPlazoCre, ej. "30 días"
	Cuotas        int    // dCuotas
	MontoEntrega  *decimal.Decimal
	DetalleCuotas []Cuota
}

// CodigoCondicion implementa Condicion.
func (Credito) CodigoCondicion() int { return 2 }

// Cuota gCuotas.
type Cuota struct {
	Moneda      string
	DescMoneda  string
	Monto       decimal.Decimal
	Vencimiento string // AAAA-MM-DD, opcional
}
