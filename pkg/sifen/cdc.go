// Código de Control (CDC): identificador de 44 dígitos del documento electrónico.

package sifen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Errores del generador de identificadores.
var (
	ErrMissingField = errors.New("sifen: campo obligatorio ausente")
	ErrInvalidField = errors.New("sifen: campo inválido")
	ErrInvalidCDC   = errors.New("sifen: CDC inválido")
)

// MissingFieldError identifica el campo que no se pudo resolver.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("sifen: CDC: campo obligatorio %q ausente", e.Field)
}

// Unwrap permite errors.Is(err, ErrMissingField).
func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

const (
	LongitudCDC        = 44
	longitudPayloadCDC = 43
)

// CDCInput datos necesarios para componer el CDC (orden estricto del Manual Técnico).
type CDCInput struct {
	TipoDocumento     int       // iTiDE, 2 dígitos
	RUCEmisor         string    // 8 dígitos, se completa con ceros a la izquierda
	DVEmisor          string    // 1 dígito
	Establecimiento   string    // 3 dígitos
	PuntoExpedicion   string    // 3 dígitos
	NumeroDocumento   string    // 7 dígitos
	TipoContribuyente int       // 1 = persona física, 2 = jurídica
	FechaEmision      time.Time // se usa YYYYMMDD
	TipoEmision       int       // 1 = normal, 2 = contingencia
	CodigoSeguridad   string    // 9 dígitos
}

// BuildCDC concatena los campos a ancho fijo y agrega el dígito verificador.
// Es determinista: la misma entrada produce siempre el mismo CDC.
func BuildCDC(in CDCInput) (string, error) {
	fields := []struct {
		name  string
		value string
		width int
	}{
		{"tipo_documento", intField(in.TipoDocumento), 2},
		{"ruc_emisor", strings.TrimSpace(in.RUCEmisor), 8},
		{"dv_emisor", strings.TrimSpace(in.DVEmisor), 1},
		{"establecimiento", strings.TrimSpace(in.Establecimiento), 3},
		{"punto_expedicion", strings.TrimSpace(in.PuntoExpedicion), 3},
		{"numero_documento", strings.TrimSpace(in.NumeroDocumento), 7},
		{"tipo_contribuyente", intField(in.TipoContribuyente), 1},
		{"fecha_emision", dateField(in.FechaEmision), 8},
		{"tipo_emision", intField(in.TipoEmision), 1},
		{"codigo_seguridad", strings.TrimSpace(in.CodigoSeguridad), 9},
	}

	var sb strings.Builder
	sb.Grow(LongitudCDC)
	for _, f := range fields {
		if f.value == "" {
			return "", &MissingFieldError{Field: f.name}
		}
		if !isDigits(f.value) {
			return "", fmt.Errorf("%w: %s=%q no es numérico", ErrInvalidField, f.name, f.value)
		}
		if len(f.value) > f.width {
			return "", fmt.Errorf("%w: %s=%q excede %d dígitos", ErrInvalidField, f.name, f.value, f.width)
		}
		sb.WriteString(strings.Repeat("0", f.width-len(f.value)))
		sb.WriteString(f.value)
	}

	payload := sb.String()
	dv, err := CheckDigit(payload)
	if err != nil {
		return "", err
	}
	return payload + strconv.Itoa(dv), nil
}

// ValidateCDC verifica longitud, contenido numérico y dígito verificador.
func ValidateCDC(cdc string) error {
	if len(cdc) != LongitudCDC || !isDigits(cdc) {
		return fmt.Errorf("%w: %q debe tener %d dígitos", ErrInvalidCDC, cdc, LongitudCDC)
	}
	dv, err := CheckDigit(cdc[:longitudPayloadCDC])
	if err != nil {
		return err
	}
	if int(cdc[longitudPayloadCDC]-'0') != dv {
		return fmt.Errorf("%w: dígito verificador esperado %d", ErrInvalidCDC, dv)
	}
	return nil
}

// DVDeCDC extrae el dígito verificador (dDVId) de un CDC válido.
func DVDeCDC(cdc string) string {
	if len(cdc) != LongitudCDC {
		return ""
	}
	return cdc[longitudPayloadCDC:]
}

func intField(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func dateField(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("20060102")
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
