package sifen

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ErrRespuestaInesperada la respuesta no contiene el elemento esperado de la operación.
var ErrRespuestaInesperada = errors.New("sifen: respuesta inesperada")

// Fault SOAP 1.2 env:Fault.
type Fault struct {
	Codigo string // Code/Value
	Motivo string // Reason/Text
}

// ParseRecepcionLote interpreta rResEnviLoteDe (respuesta de rEnvioLote).
func ParseRecepcionLote(raw []byte) (*RecepcionLote, error) {
	el, err := findResponse(raw, "rResEnviLoteDe")
	if err != nil {
		return nil, err
	}
	return &RecepcionLote{
		FechaProceso:  parseFecha(childText(el, "dFecProc")),
		Codigo:        childText(el, "dCodRes"),
		Mensaje:       childText(el, "dMsgRes"),
		NumeroLote:    childText(el, "dProtConsLote"),
		TiempoProceso: childText(el, "dTpoProces"),
	}, nil
}

// ParseResultadoLote interpreta rResEnviConsLoteDe (respuesta de la consulta de lote).
// Los documentos conservan el orden en que SIFEN los informa.
func ParseResultadoLote(raw []byte) (*ResultadoLote, error) {
	el, err := findResponse(raw, "rResEnviConsLoteDe")
	if err != nil {
		return nil, err
	}
	res := &ResultadoLote{
		FechaProceso: parseFecha(childText(el, "dFecProc")),
		Codigo:       childText(el, "dCodResLot"),
		Mensaje:      childText(el, "dMsgResLot"),
		Raw:          raw,
	}
	for _, g := range childElements(el, "gResProcLote") {
		res.Documentos = append(res.Documentos, parseResultadoDocumento(g))
	}
	return res, nil
}

// ParseRespuestaDE interpreta rRetEnviDe/rProtDe (respuesta del envío síncrono).
func ParseRespuestaDE(raw []byte) (*ResultadoDocumento, error) {
	el, err := findResponse(raw, "rProtDe")
	if err != nil {
		return nil, err
	}
	res := parseResultadoDocumento(el)
	return &res, nil
}

// ParseRespuestaEvento interpreta rRetEnviEventoDe/gResProcEVe.
func ParseRespuestaEvento(raw []byte) (*RespuestaEvento, error) {
	ret, err := findResponse(raw, "rRetEnviEventoDe")
	if err != nil {
		return nil, err
	}
	res := &RespuestaEvento{FechaProceso: parseFecha(childText(ret, "dFecProc"))}
	g := findLocal(ret, "gResProcEVe")
	if g == nil {
		return res, nil
	}
	res.EstadoResultado = childText(g, "dEstRes")
	res.Protocolo = childText(g, "dProtAut")
	res.ID = childText(g, "id")
	res.Mensajes = parseMensajes(g)
	return res, nil
}

// ParseRespuestaRUC interpreta rResEnviConsRUC.
func ParseRespuestaRUC(raw []byte) (*RespuestaRUC, error) {
	el, err := findResponse(raw, "rResEnviConsRUC")
	if err != nil {
		return nil, err
	}
	res := &RespuestaRUC{
		Codigo:  childText(el, "dCodRes"),
		Mensaje: childText(el, "dMsgRes"),
	}
	if c := findLocal(el, "xContRUC"); c != nil {
		res.RUC = childText(c, "dRUCCons")
		res.RazonSocial = childText(c, "dRazCons")
		res.CodigoEstado = childText(c, "dCodEstCons")
		res.Estado = childText(c, "dDesEstCons")
		res.FacturadorEle = childText(c, "dRUCFactElec")
	}
	return res, nil
}

// ParseConsultaDE interpreta rEnviConsDeResponse. xContenDE puede venir como texto
// escapado o como elementos; en ambos casos se devuelve el XML contenido.
func ParseConsultaDE(raw []byte) (*ConsultaDE, error) {
	el, err := findResponse(raw, "rEnviConsDeResponse")
	if err != nil {
		return nil, err
	}
	res := &ConsultaDE{
		FechaProceso: parseFecha(childText(el, "dFecProc")),
		Codigo:       childText(el, "dCodRes"),
		Mensaje:      childText(el, "dMsgRes"),
	}
	if c := findLocal(el, "xContenDE"); c != nil {
		if kids := c.ChildElements(); len(kids) > 0 {
			out := etree.NewDocument()
			for _, k := range kids {
				out.AddChild(k.Copy())
			}
			b, err := out.WriteToBytes()
			if err != nil {
				return nil, fmt.Errorf("xContenDE: %w", err)
			}
			res.ContenidoXML = b
		} else if txt := strings.TrimSpace(c.Text()); txt != "" {
			res.ContenidoXML = []byte(txt)
		}
	}
	return res, nil
}

// ParseFault devuelve el Fault SOAP 1.2 si la respuesta lo contiene, o nil.
func ParseFault(raw []byte) (*Fault, error) {
	doc, err := readDocument(raw)
	if err != nil {
		return nil, err
	}
	f := findLocal(doc.Root(), "Fault")
	if f == nil {
		return nil, nil
	}
	fault := &Fault{}
	if code := findLocal(f, "Code"); code != nil {
		fault.Codigo = childText(code, "Value")
	}
	if reason := findLocal(f, "Reason"); reason != nil {
		fault.Motivo = childText(reason, "Text")
	}
	// SOAP 1.1
	if fault.Codigo == "" {
		fault.Codigo = childText(f, "faultcode")
	}
	if fault.Motivo == "" {
		fault.Motivo = childText(f, "faultstring")
	}
	return fault, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func parseResultadoDocumento(el *etree.Element) ResultadoDocumento {
	cdc := childText(el, "id")
	if cdc == "" {
		cdc = childText(el, "Id")
	}
	return ResultadoDocumento{
		CDC:              cdc,
		EstadoResultado:  childText(el, "dEstRes"),
		ProtocoloAutoriz: childText(el, "dProtAut"),
		FechaProceso:     parseFecha(childText(el, "dFecProc")),
		Mensajes:         parseMensajes(el),
	}
}

func parseMensajes(el *etree.Element) []MensajeResultado {
	var out []MensajeResultado
	for _, g := range childElements(el, "gResProc") {
		out = append(out, MensajeResultado{
			Codigo:  childText(g, "dCodRes"),
			Mensaje: childText(g, "dMsgRes"),
		})
	}
	return out
}

// findResponse ubica el elemento de respuesta; si falta, informa el Fault cuando existe.
func findResponse(raw []byte, tag string) (*etree.Element, error) {
	doc, err := readDocument(raw)
	if err != nil {
		return nil, err
	}
	if el := findLocal(doc.Root(), tag); el != nil {
		return el, nil
	}
	if f := findLocal(doc.Root(), "Fault"); f != nil {
		fault, _ := ParseFault(raw)
		return nil, fmt.Errorf("%w: fault %s: %s", ErrRespuestaInesperada, fault.Codigo, fault.Motivo)
	}
	return nil, fmt.Errorf("%w: falta %s", ErrRespuestaInesperada, tag)
}

func readDocument(raw []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: xml inválido: %w", ErrRespuestaInesperada, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: documento vacío", ErrRespuestaInesperada)
	}
	return doc, nil
}

// charsetReader acepta respuestas declaradas en ISO-8859-1.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToUpper(charset) {
	case "ISO-8859-1", "ISO8859-1", "LATIN1":
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	case "WINDOWS-1252":
		return transform.NewReader(input, charmap.Windows1252.NewDecoder()), nil
	}
	return input, nil
}

// findLocal busca en profundidad el primer elemento con ese nombre local, sin importar el prefijo.
func findLocal(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	if el.Tag == tag {
		return el
	}
	for _, c := range el.ChildElements() {
		if found := findLocal(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func childElements(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// childText texto del primer hijo directo con ese nombre, sin espacios y con entidades HTML resueltas.
func childText(el *etree.Element, tag string) string {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return html.UnescapeString(strings.TrimSpace(c.Text()))
		}
	}
	return ""
}

func parseFecha(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
