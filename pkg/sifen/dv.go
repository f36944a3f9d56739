package sifen

import (
	"fmt"
	"strconv"
	"strings"
)

// baseMaxDV es el peso máximo del ciclo; los pesos van de 2 a 11 y se reinician.
const baseMaxDV = 11

// CheckDigit calcula el dígito verificador módulo 11 usado por SIFEN para el CDC y el RUC.
// Los pesos 2..11 se aplican desde el dígito más a la derecha; resto > 1 ⇒ 11 - resto, si no 0.
// Los caracteres no numéricos se sustituyen por su código ASCII, igual que el algoritmo de la SET.
func CheckDigit(payload string) (int, error) {
	if payload == "" {
		return 0, fmt.Errorf("%w: entrada vacía para dígito verificador", ErrInvalidField)
	}
	var digits strings.Builder
	for _, r := range payload {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			continue
		}
		digits.WriteString(strconv.Itoa(int(r)))
	}
	s := digits.String()

	sum, k := 0, 2
	for i := len(s) - 1; i >= 0; i-- {
		if k > baseMaxDV {
			k = 2
		}
		sum += int(s[i]-'0') * k
		k++
	}
	r := sum % 11
	if r > 1 {
		return 11 - r, nil
	}
	return 0, nil
}

// RUCCheckDigit calcula el DV de un RUC (sin guion ni DV).
func RUCCheckDigit(ruc string) (int, error) {
	ruc = strings.TrimSpace(ruc)
	if ruc == "" {
		return 0, &MissingFieldError{Field: "ruc"}
	}
	return CheckDigit(ruc)
}

// ValidateRUC verifica un RUC con formato "80069563-1".
func ValidateRUC(rucConDV string) error {
	parts := strings.SplitN(strings.TrimSpace(rucConDV), "-", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%w: RUC %q sin dígito verificador", ErrInvalidField, rucConDV)
	}
	dv, err := RUCCheckDigit(parts[0])
	if err != nil {
		return err
	}
	if strconv.Itoa(dv) != parts[1] {
		return fmt.Errorf("%w: DV del RUC %s inválido: esperado %d, recibido %s", ErrInvalidField, parts[0], dv, parts[1])
	}
	return nil
}
