package sifen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/sifen-transmisor/pkg/config"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// ── Constantes ────────────────────────────────────────────────────────────────

const (
	soap12NS          = "http://www.w3.org/2003/05/soap-envelope"
	soapContentType   = "application/soap+xml; charset=UTF-8"
	maxResponseBytes  = 8 << 20
	maxErrorBodyBytes = 512
)

// Nombres de operación, usados en logs y en los archivos de depuración.
const (
	OpRecibe       = "recibe"
	OpRecibeLote   = "recibe-lote"
	OpConsultaLote = "consulta-lote"
	OpConsulta     = "consulta"
	OpEvento       = "evento"
	OpConsultaRUC  = "consulta-ruc"
)

var (
	// ErrTransport falla de red o respuesta HTTP no exitosa.
	ErrTransport = errors.New("sifen: error de transporte")
	// ErrEndpointNoConfigurado la operación no tiene URL configurada.
	ErrEndpointNoConfigurado = errors.New("sifen: endpoint no configurado")
)

// TransportError respuesta HTTP no 2xx de SIFEN.
type TransportError struct {
	StatusCode int
	Body       []byte
}

func (e *TransportError) Error() string {
	body := e.Body
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	if f, err := ParseFault(e.Body); err == nil && f != nil {
		return fmt.Sprintf("sifen: HTTP %d: fault %s: %s", e.StatusCode, f.Codigo, f.Motivo)
	}
	return fmt.Sprintf("sifen: HTTP %d: %s", e.StatusCode, string(body))
}

func (e *TransportError) Unwrap() error { return ErrTransport }

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName  xml.Name `xml:"env:Envelope"`
	XmlnsEnv string   `xml:"xmlns:env,attr"`
	Header   struct{} `xml:"env:Header"`
	Body     soapBody
}

type soapBody struct {
	Content any
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "env:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// rawXML se escribe tal cual; el rDE o evento firmado no puede reserializarse.
type rawXML struct {
	Inner []byte `xml:",innerxml"`
}

type rEnviDe struct {
	XMLName xml.Name `xml:"rEnviDe"`
	Xmlns   string   `xml:"xmlns,attr"`
	DID     string   `xml:"dId"`
	XDE     rawXML   `xml:"xDE"`
}

type rEnvioLote struct {
	XMLName xml.Name `xml:"rEnvioLote"`
	Xmlns   string   `xml:"xmlns,attr"`
	DID     string   `xml:"dId"`
	XDE     string   `xml:"xDE"` // ZIP en Base64
}

type rEnviConsLoteDe struct {
	XMLName       xml.Name `xml:"rEnviConsLoteDe"`
	Xmlns         string   `xml:"xmlns,attr"`
	DID           string   `xml:"dId"`
	DProtConsLote string   `xml:"dProtConsLote"`
}

type rEnviConsDeRequest struct {
	XMLName xml.Name `xml:"rEnviConsDeRequest"`
	Xmlns   string   `xml:"xmlns,attr"`
	DID     string   `xml:"dId"`
	DCDC    string   `xml:"dCDC"`
}

type rEnviEventoDe struct {
	XMLName xml.Name `xml:"rEnviEventoDe"`
	Xmlns   string   `xml:"xmlns,attr"`
	DID     string   `xml:"dId"`
	DEvReg  rawXML   `xml:"dEvReg"`
}

type rEnviConsRUC struct {
	XMLName  xml.Name `xml:"rEnviConsRUC"`
	Xmlns    string   `xml:"xmlns,attr"`
	DID      string   `xml:"dId"`
	DRUCCons string   `xml:"dRUCCons"`
}

// ── Cliente ───────────────────────────────────────────────────────────────────

// SOAPClient cliente de los servicios web de SIFEN. No reintenta: la política de
// reintentos vive en el pipeline.
type SOAPClient struct {
	httpClient *http.Client
	endpoints  config.SIFENEndpoints
	debug      bool
	debugDir   string
	log        zerolog.Logger
}

// NewSOAPClient crea el cliente. httpClient debe venir de NewHTTPSClient en producción.
func NewSOAPClient(httpClient *http.Client, cfg config.SIFENConfig, log zerolog.Logger) *SOAPClient {
	return &SOAPClient{
		httpClient: httpClient,
		endpoints:  cfg.Endpoints,
		debug:      cfg.Debug,
		debugDir:   cfg.DebugDir,
		log:        log,
	}
}

// EnviarDE envía un rDE firmado por el canal síncrono (siRecepDE).
func (c *SOAPClient) EnviarDE(ctx context.Context, dID string, rde []byte) (*Exchange, error) {
	body := rEnviDe{Xmlns: sifen.NamespaceSIFEN, DID: dID, XDE: rawXML{Inner: stripPrologue(rde)}}
	return c.call(ctx, OpRecibe, c.endpoints.Recibe, dID, body)
}

// EnviarLote envía el ZIP del rLoteDE (siRecepLoteDE).
func (c *SOAPClient) EnviarLote(ctx context.Context, dID string, zipLote []byte) (*Exchange, error) {
	body := rEnvioLote{Xmlns: sifen.NamespaceSIFEN, DID: dID, XDE: base64.StdEncoding.EncodeToString(zipLote)}
	return c.call(ctx, OpRecibeLote, c.endpoints.RecibeLote, dID, body)
}

// ConsultarLote consulta el resultado de un lote por su número de protocolo (siConsLoteDE).
func (c *SOAPClient) ConsultarLote(ctx context.Context, dID, protocolo string) (*Exchange, error) {
	body := rEnviConsLoteDe{Xmlns: sifen.NamespaceSIFEN, DID: dID, DProtConsLote: protocolo}
	return c.call(ctx, OpConsultaLote, c.endpoints.ConsultaLote, dID, body)
}

// ConsultarDE consulta un documento por CDC (siConsDE).
func (c *SOAPClient) ConsultarDE(ctx context.Context, dID, cdc string) (*Exchange, error) {
	body := rEnviConsDeRequest{Xmlns: sifen.NamespaceSIFEN, DID: dID, DCDC: cdc}
	return c.call(ctx, OpConsulta, c.endpoints.Consulta, dID, body)
}

// EnviarEvento envía un gGroupGesEve firmado (siRecepEvento).
func (c *SOAPClient) EnviarEvento(ctx context.Context, dID string, evento []byte) (*Exchange, error) {
	body := rEnviEventoDe{Xmlns: sifen.NamespaceSIFEN, DID: dID, DEvReg: rawXML{Inner: stripPrologue(evento)}}
	return c.call(ctx, OpEvento, c.endpoints.Evento, dID, body)
}

// ConsultarRUC consulta los datos de un contribuyente (siConsRUC).
func (c *SOAPClient) ConsultarRUC(ctx context.Context, dID, ruc string) (*Exchange, error) {
	body := rEnviConsRUC{Xmlns: sifen.NamespaceSIFEN, DID: dID, DRUCCons: ruc}
	return c.call(ctx, OpConsultaRUC, c.endpoints.ConsultaRUC, dID, body)
}

// call envuelve el cuerpo en SOAP 1.2 y lo envía. Ante un HTTP no 2xx devuelve el
// Exchange junto con el *TransportError para que quede auditado.
func (c *SOAPClient) call(ctx context.Context, op, endpoint, dID string, body any) (*Exchange, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s", ErrEndpointNoConfigurado, op)
	}
	payload, err := xml.Marshal(soapEnvelope{XmlnsEnv: soap12NS, Body: soapBody{Content: body}})
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope %s: %w", op, err)
	}
	payload = append([]byte(xml.Header), payload...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request %s: %w", op, err)
	}
	req.Header.Set("Content-Type", soapContentType)
	req.Header.Set("Accept", soapContentType)

	log := c.log.With().Str("operacion", op).Str("d_id", dID).Logger()
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: timeout o cancelación: %w", ErrTransport, op, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: llamada HTTP fallida: %w", ErrTransport, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: leer respuesta: %w", ErrTransport, op, err)
	}
	ex := &Exchange{Request: payload, Response: raw}
	c.dump(op, dID, ex)

	log.Debug().Int("status", resp.StatusCode).Dur("duracion", time.Since(start)).Msg("llamada SOAP")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ex, &TransportError{StatusCode: resp.StatusCode, Body: raw}
	}
	return ex, nil
}

// dump vuelca request y response a DebugDir cuando Debug está activo. Los errores solo se registran.
func (c *SOAPClient) dump(op, dID string, ex *Exchange) {
	if !c.debug {
		return
	}
	if err := os.MkdirAll(c.debugDir, 0o755); err != nil {
		c.log.Warn().Err(err).Str("dir", c.debugDir).Msg("no se pudo crear el directorio de depuración")
		return
	}
	prefix := filepath.Join(c.debugDir, fmt.Sprintf("%s_%s_%s", time.Now().Format("20060102T150405"), op, dID))
	for suffix, data := range map[string][]byte{"_request.xml": ex.Request, "_response.xml": ex.Response} {
		if err := os.WriteFile(prefix+suffix, data, 0o644); err != nil {
			c.log.Warn().Err(err).Str("archivo", prefix+suffix).Msg("no se pudo escribir el volcado SOAP")
		}
	}
}

// NewDID genera el dId de una solicitud: fecha-hora hasta el segundo más 3 dígitos
// tomados de un UUID aleatorio (15 dígitos).
func NewDID(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("%s%03d", now.Format("060102150405"), binary.BigEndian.Uint16(id[:2])%1000)
}
