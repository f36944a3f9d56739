package sifen

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IdCSCDefault identificador del Código de Seguridad del Contribuyente en ambiente de pruebas.
const IdCSCDefault = "0001"

// QRInput parámetros del código QR del KuDE (Manual Técnico, sección 13.8).
type QRInput struct {
	CDC           string
	FechaEmision  time.Time
	DocReceptor   string // RUC del receptor o número de documento si no es contribuyente
	TotalGeneral  decimal.Decimal
	TotalIVA      decimal.Decimal
	CantidadItems int
	DigestValue   string // DigestValue Base64 tal como figura en la firma
	IdCSC         string
}

// QRQuery arma la cadena de parámetros en el orden fijo exigido (sin el hash).
func QRQuery(in QRInput) string {
	idCSC := in.IdCSC
	if idCSC == "" {
		idCSC = IdCSCDefault
	}
	var sb strings.Builder
	sb.WriteString("nVersion=" + VersionFormato)
	sb.WriteString("&Id=" + in.CDC)
	sb.WriteString("&dFeEmiDE=" + hex.EncodeToString([]byte(FormatFechaHora(in.FechaEmision))))
	sb.WriteString("&dRucRec=" + in.DocReceptor)
	sb.WriteString("&dTotGralOpe=" + FormatNumber(in.TotalGeneral))
	sb.WriteString("&dTotIVA=" + FormatNumber(in.TotalIVA))
	sb.WriteString("&cItems=" + strconv.Itoa(in.CantidadItems))
	sb.WriteString("&DigestValue=" + hex.EncodeToString([]byte(in.DigestValue)))
	sb.WriteString("&IdCSC=" + idCSC)
	return sb.String()
}

// QRHash calcula cHashQR: SHA-256 hexadecimal de (query + CSC).
func QRHash(query, csc string) string {
	sum := sha256.Sum256([]byte(query + csc))
	return hex.EncodeToString(sum[:])
}

// BuildQRURL devuelve la URL completa de verificación, con cHashQR como último parámetro.
func BuildQRURL(baseURL string, in QRInput, csc string) string {
	if baseURL == "" {
		baseURL = URLQRDefault
	}
	query := QRQuery(in)
	return baseURL + query + "&cHashQR=" + QRHash(query, csc)
}

// FormatFechaHora formato de fecha-hora de SIFEN (sin zona horaria).
func FormatFechaHora(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}

// FormatFecha formato de fecha de SIFEN.
func FormatFecha(t time.Time) string {
	return t.Format("2006-01-02")
}
