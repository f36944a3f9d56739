package sifen

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// EventBuilderService construye gGroupGesEve sin firmar para eventos del emisor.
type EventBuilderService struct{}

// NewEventBuilderService crea el servicio.
func NewEventBuilderService() *EventBuilderService {
	return &EventBuilderService{}
}

// Build genera gGroupGesEve/rGesEve/rEve. La firma se agrega luego dentro de rGesEve, después de rEve.
func (s *EventBuilderService) Build(ctx *EventoBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Evento == nil {
		return nil, fmt.Errorf("%w: falta el evento en el contexto", domain.ErrInvalidInput)
	}
	ev := ctx.Evento
	if err := validateEvento(ev); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := newXMLWriter(&buf)

	root := xml.StartElement{
		Name: xml.Name{Local: "gGroupGesEve"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: sifen.NamespaceSIFEN},
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: sifen.NamespaceXSI},
			{Name: xml.Name{Local: "xsi:schemaLocation"}, Value: sifen.SchemaLocationEvento},
		},
	}
	enc.token(root)
	openTag(enc, "rGesEve")
	openTag(enc, "rEve", xml.Attr{Name: xml.Name{Local: "Id"}, Value: strconv.FormatInt(ev.ID, 10)})
	writeElem(enc, "dFecFirma", sifen.FormatFechaHora(ctx.FechaFirma))
	writeElem(enc, "dVerFor", sifen.VersionFormato)

	openTag(enc, "gGroupTiEvt")
	switch ev.Tipo {
	case sifen.EventoCancelacion:
		c := ev.Cancelacion
		openTag(enc, "rGeVeCan")
		writeElem(enc, "Id", c.CDC)
		writeElem(enc, "mOtEve", c.Motivo)
		closeTag(enc, "rGeVeCan")
	case sifen.EventoInutilizacion:
		i := ev.Inutilizacion
		openTag(enc, "rGeVeInu")
		writeElem(enc, "dNumTim", i.Timbrado)
		writeElem(enc, "dEst", i.Establecimiento)
		writeElem(enc, "dPunExp", i.PuntoExpedicion)
		writeElem(enc, "dNumIn", i.NumeroInicio)
		writeElem(enc, "dNumFin", i.NumeroFin)
		writeInt(enc, "iTiDE", i.TipoDocumento)
		writeElem(enc, "mOtEve", i.Motivo)
		closeTag(enc, "rGeVeInu")
	}
	closeTag(enc, "gGroupTiEvt")

	closeTag(enc, "rEve")
	closeTag(enc, "rGesEve")
	enc.token(root.End())
	if err := enc.finish(); err != nil {
		return nil, fmt.Errorf("xml: gGroupGesEve: %w", err)
	}
	return buf.Bytes(), nil
}

func validateEvento(ev *entity.Evento) error {
	switch ev.Tipo {
	case sifen.EventoCancelacion:
		if ev.Cancelacion == nil {
			return fmt.Errorf("%w: datos de cancelación del evento %d", domain.ErrMissingAggregate, ev.ID)
		}
		if err := sifen.ValidateCDC(ev.Cancelacion.CDC); err != nil {
			return fmt.Errorf("evento %d: %w", ev.ID, err)
		}
		if ev.Cancelacion.Motivo == "" {
			return fmt.Errorf("%w: motivo de cancelación del evento %d", domain.ErrInvalidInput, ev.ID)
		}
	case sifen.EventoInutilizacion:
		i := ev.Inutilizacion
		if i == nil {
			return fmt.Errorf("%w: datos de inutilización del evento %d", domain.ErrMissingAggregate, ev.ID)
		}
		if i.Timbrado == "" || i.Establecimiento == "" || i.PuntoExpedicion == "" ||
			i.NumeroInicio == "" || i.NumeroFin == "" || i.TipoDocumento == 0 || i.Motivo == "" {
			return fmt.Errorf("%w: inutilización incompleta en el evento %d", domain.ErrInvalidInput, ev.ID)
		}
		if i.NumeroInicio > i.NumeroFin {
			return fmt.Errorf("%w: rango %s-%s invertido", domain.ErrInvalidInput, i.NumeroInicio, i.NumeroFin)
		}
	default:
		return fmt.Errorf("%w: tipo de evento %d no soportado", domain.ErrInvalidInput, ev.Tipo)
	}
	return nil
}
