package sifen

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// LoteZipEntry nombre del único archivo dentro del ZIP enviado en xDE.
const LoteZipEntry = "lote.xml"

// CompressLote empaqueta el rLoteDE en un ZIP en memoria con una única entrada lote.xml.
// La capa SOAP lo codifica en Base64 dentro de xDE.
func CompressLote(loteXML []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(LoteZipEntry)
	if err != nil {
		return nil, fmt.Errorf("zip: crear entrada %s: %w", LoteZipEntry, err)
	}
	if _, err := fw.Write(loteXML); err != nil {
		return nil, fmt.Errorf("zip: escribir lote: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}
