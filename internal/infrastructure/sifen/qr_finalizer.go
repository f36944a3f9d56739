package sifen

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrRDEIncompleto el XML firmado no termina en </rDE>.
var ErrRDEIncompleto = errors.New("xml firmado sin cierre </rDE>")

var closingRDE = []byte("</rDE>")

// QRFinalizer agrega gCamFuFD al rDE ya firmado.
type QRFinalizer struct{}

// NewQRFinalizer crea el finalizador.
func NewQRFinalizer() *QRFinalizer {
	return &QRFinalizer{}
}

// Finalize inserta <gCamFuFD><dCarQR>url</dCarQR></gCamFuFD> justo antes del último </rDE>.
// La inserción es a nivel de bytes: el subárbol firmado no se vuelve a serializar.
func (f *QRFinalizer) Finalize(signedRDE []byte, qrURL string) ([]byte, error) {
	idx := bytes.LastIndex(signedRDE, closingRDE)
	if idx < 0 {
		return nil, ErrRDEIncompleto
	}
	var block bytes.Buffer
	block.WriteString("<gCamFuFD><dCarQR>")
	if err := xml.EscapeText(&block, []byte(qrURL)); err != nil {
		return nil, fmt.Errorf("escapar dCarQR: %w", err)
	}
	block.WriteString("</dCarQR></gCamFuFD>")

	out := make([]byte, 0, len(signedRDE)+block.Len())
	out = append(out, signedRDE[:idx]...)
	out = append(out, block.Bytes()...)
	out = append(out, signedRDE[idx:]...)
	return out, nil
}

// RenderQRPNG genera el PNG del QR de consulta, usado por la API de operación.
func RenderQRPNG(qrURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(qrURL, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr: generar png: %w", err)
	}
	return png, nil
}
