package sifen

import (
	"github.com/shopspring/decimal"
)

// Precisiones máximas de montos según el Manual Técnico.
const (
	DecimalesMonto      = 8
	DecimalesPorcentaje = 8
)

// FormatNumber representa un monto como lo exige SIFEN: los valores enteros sin
// decimales ("1500" y no "1500.00") y los fraccionarios solo con los decimales
// significativos ("12.5" y no "12.50"). Se redondea a DecimalesMonto.
func FormatNumber(d decimal.Decimal) string {
	return FormatNumberPrec(d, DecimalesMonto)
}

// FormatNumberPrec como FormatNumber con una precisión máxima explícita.
func FormatNumberPrec(d decimal.Decimal, places int32) string {
	// String omite los ceros a la derecha: 1500.00 -> "1500", 12.50 -> "12.5".
	return d.Round(places).String()
}

// FormatOptional devuelve ("", false) para montos nulos; útil para elementos opcionales.
func FormatOptional(d *decimal.Decimal) (string, bool) {
	if d == nil {
		return "", false
	}
	return FormatNumber(*d), true
}
