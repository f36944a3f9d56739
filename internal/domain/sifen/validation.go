// Package sifen contiene validaciones de dominio del documento electrónico previas a
// su estructuración, según el Manual Técnico v150. Utiliza catálogos y reglas de pkg/sifen.
package sifen

import (
	"errors"
	"fmt"

	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"

	"github.com/shopspring/decimal"
)

// Afectación tributaria del ítem (iAfecIVA).
const (
	AfectacionGravado   = 1
	AfectacionExonerado = 2
	AfectacionExento    = 3
	AfectacionParcial   = 4
)

// ValidateDocumento verifica agregados obligatorios, identificación de emisor y
// receptor, y coherencia de totales. Acumula todos los errores con errors.Join.
func ValidateDocumento(doc *entity.Documento) error {
	if doc == nil {
		return fmt.Errorf("%w: documento nulo", domain.ErrInvalidInput)
	}
	var errs []error

	if doc.Emisor == nil {
		errs = append(errs, fmt.Errorf("%w: emisor", domain.ErrMissingAggregate))
	} else {
		if err := sifen.ValidateRUC(doc.Emisor.RUC + "-" + doc.Emisor.DV); err != nil {
			errs = append(errs, fmt.Errorf("emisor: %w", err))
		}
		if len(doc.Emisor.Actividades) == 0 {
			errs = append(errs, fmt.Errorf("%w: el emisor debe declarar al menos una actividad económica", domain.ErrInvalidInput))
		}
	}
	if doc.Timbrado == nil {
		errs = append(errs, fmt.Errorf("%w: timbrado", domain.ErrMissingAggregate))
	}
	if doc.Operacion == nil {
		errs = append(errs, fmt.Errorf("%w: operación (gOpeDE)", domain.ErrMissingAggregate))
	}
	if doc.Receptor == nil {
		errs = append(errs, fmt.Errorf("%w: receptor", domain.ErrMissingAggregate))
	} else if err := validateReceptor(doc.Receptor); err != nil {
		errs = append(errs, err)
	}
	if doc.Emisor != nil && doc.Timbrado != nil && doc.Operacion != nil {
		if err := validateCDC(doc); err != nil {
			errs = append(errs, err)
		}
	}
	if doc.Timbrado != nil && sifen.RequiereDocumentoAsociado(doc.Timbrado.TipoDocumento) && doc.NotaCredito == nil {
		errs = append(errs, fmt.Errorf("%w: documento asociado de la nota de crédito/débito", domain.ErrMissingAggregate))
	}

	if len(doc.Items) == 0 {
		errs = append(errs, fmt.Errorf("%w: el documento debe tener al menos un ítem", domain.ErrInvalidInput))
	} else if doc.Totales == nil {
		errs = append(errs, fmt.Errorf("%w: totales", domain.ErrMissingAggregate))
	} else if err := ValidateTotales(doc.Items, doc.Totales); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// CDCEsperado recompone el CDC a partir de timbrado, emisor, operación, número y fecha
// de emisión del documento.
func CDCEsperado(doc *entity.Documento) (string, error) {
	if doc.Emisor == nil || doc.Timbrado == nil || doc.Operacion == nil {
		return "", fmt.Errorf("%w: emisor, timbrado y operación son necesarios para el CDC", domain.ErrMissingAggregate)
	}
	return sifen.BuildCDC(sifen.CDCInput{
		TipoDocumento:     doc.Timbrado.TipoDocumento,
		RUCEmisor:         doc.Emisor.RUC,
		DVEmisor:          doc.Emisor.DV,
		Establecimiento:   doc.Timbrado.Establecimiento,
		PuntoExpedicion:   doc.Timbrado.PuntoExpedicion,
		NumeroDocumento:   doc.NumeroDocumento,
		TipoContribuyente: doc.Emisor.TipoContribuyente,
		FechaEmision:      doc.FechaEmision,
		TipoEmision:       doc.Operacion.TipoEmision,
		CodigoSeguridad:   doc.Operacion.CodigoSeguridad,
	})
}

// validateCDC exige que el CDC almacenado (Id del DE) y su dDVId coincidan con el recompuesto.
func validateCDC(doc *entity.Documento) error {
	if doc.CDC == "" {
		return &sifen.MissingFieldError{Field: "cdc"}
	}
	esperado, err := CDCEsperado(doc)
	if err != nil {
		return fmt.Errorf("cdc: %w", err)
	}
	if doc.CDC != esperado {
		return fmt.Errorf("%w: cdc %q no corresponde a los datos del documento (esperado %q)",
			sifen.ErrInvalidField, doc.CDC, esperado)
	}
	if doc.DV != sifen.DVDeCDC(esperado) {
		return fmt.Errorf("%w: dDVId %q no coincide con el dígito verificador del CDC", sifen.ErrInvalidField, doc.DV)
	}
	return nil
}

func validateReceptor(r *entity.Receptor) error {
	switch r.Naturaleza {
	case sifen.ReceptorContribuyente:
		if r.RUC == "" || r.DV == "" {
			return fmt.Errorf("%w: receptor contribuyente sin RUC/DV", domain.ErrInvalidInput)
		}
		if err := sifen.ValidateRUC(r.RUC + "-" + r.DV); err != nil {
			return fmt.Errorf("receptor: %w", err)
		}
	case sifen.ReceptorNoContribuyente:
		if r.TipoDocIdentidad == 0 || r.NumeroDocumento == "" {
			return fmt.Errorf("%w: receptor no contribuyente sin documento de identidad", domain.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: naturaleza del receptor %d", domain.ErrInvalidInput, r.Naturaleza)
	}
	if r.Nombre == "" {
		return fmt.Errorf("%w: receptor sin nombre", domain.ErrInvalidInput)
	}
	return nil
}

// ValidateTotales recalcula subtotales, IVA y bases gravadas desde los ítems y los compara
// con gTotSub. dTotGralOpe = dTotOpe - dRedon + dComi.
func ValidateTotales(items []entity.Item, tot *entity.Totales) error {
	if tot == nil {
		return fmt.Errorf("%w: totales", domain.ErrMissingAggregate)
	}
	var (
		subExe, subExo, sub5, sub10 decimal.Decimal
		iva5, iva10                 decimal.Decimal
		base5, base10               decimal.Decimal
	)
	cinco, diez := decimal.NewFromInt(5), decimal.NewFromInt(10)

	for _, it := range items {
		switch it.AfectacionIVA {
		case AfectacionExento:
			subExe = subExe.Add(it.TotalOperacion)
		case AfectacionExonerado:
			subExo = subExo.Add(it.TotalOperacion)
		case AfectacionGravado, AfectacionParcial:
			gravado := it.BaseGravadaIVA.Add(it.LiquidacionIVA)
			switch {
			case it.TasaIVA.Equal(cinco):
				sub5 = sub5.Add(gravado)
				iva5 = iva5.Add(it.LiquidacionIVA)
				base5 = base5.Add(it.BaseGravadaIVA)
			case it.TasaIVA.Equal(diez):
				sub10 = sub10.Add(gravado)
				iva10 = iva10.Add(it.LiquidacionIVA)
				base10 = base10.Add(it.BaseGravadaIVA)
			}
			subExe = subExe.Add(it.BaseExenta)
		}
	}
	totOpe := subExe.Add(subExo).Add(sub5).Add(sub10)
	totGral := totOpe.Sub(tot.Redondeo).Add(tot.Comision)

	checks := []struct {
		campo string
		declarado, calc decimal.Decimal
	}{
		{"dSubExe", tot.SubExento, subExe},
		{"dSubExo", tot.SubExonerado, subExo},
		{"dSub5", tot.Sub5, sub5},
		{"dSub10", tot.Sub10, sub10},
		{"dTotOpe", tot.TotalOperacion, totOpe},
		{"dTotGralOpe", tot.TotalGeneral, totGral},
		{"dIVA5", tot.IVA5, iva5},
		{"dIVA10", tot.IVA10, iva10},
		{"dTotIVA", tot.TotalIVA, iva5.Add(iva10)},
		{"dBaseGrav5", tot.BaseGravada5, base5},
		{"dBaseGrav10", tot.BaseGravada10, base10},
		{"dTBasGraIVA", tot.TotalBaseGravada, base5.Add(base10)},
	}
	var errs []error
	for _, c := range checks {
		if !c.declarado.Round(sifen.DecimalesMonto).Equal(c.calc.Round(sifen.DecimalesMonto)) {
			errs = append(errs, fmt.Errorf("%s (%s) no coincide con lo calculado (%s)",
				c.campo, sifen.FormatNumber(c.declarado), sifen.FormatNumber(c.calc)))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{domain.ErrTotalesInconsistentes}, errs...)...)
	}
	return nil
}
