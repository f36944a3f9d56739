package sifen

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BuildLote concatena rDE firmados dentro de rLoteDE. Cada payload se copia byte a byte;
// solo se quita un BOM o una declaración XML inicial, porque alterar el contenido invalida la firma.
func BuildLote(docs [][]byte, max int) ([]byte, error) {
	if len(docs) == 0 {
		return nil, domain.ErrLoteVacio
	}
	if max <= 0 || max > sifen.MaxDocumentosPorLote {
		max = sifen.MaxDocumentosPorLote
	}
	if len(docs) > max {
		return nil, fmt.Errorf("%w: %d documentos, máximo %d", domain.ErrLoteExcedido, len(docs), max)
	}

	var buf bytes.Buffer
	buf.WriteString(`<rLoteDE xmlns="` + sifen.NamespaceSIFEN + `">`)
	for _, d := range docs {
		buf.Write(stripPrologue(d))
	}
	buf.WriteString(`</rLoteDE>`)
	return buf.Bytes(), nil
}

// stripPrologue quita BOM y declaración <?xml ...?> iniciales.
func stripPrologue(b []byte) []byte {
	b = bytes.TrimPrefix(b, utf8BOM)
	trimmed := bytes.TrimLeft(b, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<?xml")) {
		if end := bytes.Index(trimmed, []byte("?>")); end >= 0 {
			return bytes.TrimLeft(trimmed[end+2:], " \t\r\n")
		}
	}
	return b
}

// ParseLote recupera cada rDE de un rLoteDE con sus bytes exactos (offsets del decoder) y su CDC.
func ParseLote(lote []byte) ([]LoteEntry, error) {
	dec := xml.NewDecoder(bytes.NewReader(lote))

	var (
		entries []LoteEntry
		depth   int
		start   int64 = -1
		cdc     string
	)
	for {
		off := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse lote: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1 && t.Name.Local != "rLoteDE":
				return nil, fmt.Errorf("parse lote: raíz %q, se esperaba rLoteDE", t.Name.Local)
			case depth == 2 && t.Name.Local == "rDE":
				start, cdc = off, ""
			case depth == 3 && t.Name.Local == "DE" && start >= 0:
				for _, a := range t.Attr {
					if a.Name.Local == "Id" {
						cdc = a.Value
					}
				}
			}
		case xml.EndElement:
			if depth == 2 && t.Name.Local == "rDE" && start >= 0 {
				end := dec.InputOffset()
				raw := make([]byte, end-start)
				copy(raw, lote[start:end])
				entries = append(entries, LoteEntry{CDC: cdc, Raw: raw})
				start = -1
			}
			depth--
		}
	}
	return entries, nil
}
