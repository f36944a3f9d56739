package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/sifen-transmisor/internal/application/dto"
	"github.com/jhoicas/sifen-transmisor/internal/application/transmision"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
)

const (
	qrSizeDefault = 256
	qrSizeMax     = 1024
)

// DocumentoService lo que la API necesita de la transmisión para documentos.
// Lo implementa *transmision.ConsultaService.
type DocumentoService interface {
	Documento(ctx context.Context, id int64) (*entity.Documento, []*entity.EstadoHistorial, error)
	EnviarDocumentoSincrono(ctx context.Context, docID int64) (*transmision.ResultadoEnvio, error)
}

// DocumentoHandler estado, QR y envío síncrono de documentos (protegido).
type DocumentoHandler struct {
	svc DocumentoService
}

// NewDocumentoHandler construye el handler.
func NewDocumentoHandler(svc DocumentoService) *DocumentoHandler {
	return &DocumentoHandler{svc: svc}
}

// GetByID godoc
// @Summary      Estado de un documento electrónico
// @Tags         documentos
// @Security     Bearer
// @Produce      json
// @Param        id   path  int  true  "ID del documento"
// @Success      200  {object}  dto.DocumentoResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documentos/{id} [get]
func (h *DocumentoHandler) GetByID(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}
	doc, hist, err := h.svc.Documento(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toDocumentoResponse(doc, hist))
}

// QR godoc
// @Summary      Imagen PNG del QR del documento
// @Tags         documentos
// @Security     Bearer
// @Produce      png
// @Param        id    path   int  true   "ID del documento"
// @Param        size  query  int  false  "Lado en píxeles (default 256, máx 1024)"
// @Success      200
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documentos/{id}/qr.png [get]
func (h *DocumentoHandler) QR(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}
	size := c.QueryInt("size", qrSizeDefault)
	if size <= 0 || size > qrSizeMax {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "size fuera de rango"})
	}
	doc, _, err := h.svc.Documento(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if doc.QRURL == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "QR_NOT_AVAILABLE", Message: "el documento aún no fue firmado"})
	}
	png, err := infrasifen.RenderQRPNG(doc.QRURL, size)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

// Enviar godoc
// @Summary      Envío síncrono de un documento pendiente (siRecepDE)
// @Tags         documentos
// @Security     Bearer
// @Produce      json
// @Param        id   path  int  true  "ID del documento"
// @Success      200  {object}  dto.EnvioResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/documentos/{id}/enviar [post]
func (h *DocumentoHandler) Enviar(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}
	res, err := h.svc.EnviarDocumentoSincrono(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.EnvioResponse{
		DocumentoID: res.DocumentoID,
		CDC:         res.CDC,
		Estado:      res.Estado,
		Codigo:      res.Codigo,
		Mensaje:     res.Mensaje,
		Protocolo:   res.Protocolo,
		QRURL:       res.QRURL,
	})
}

func toDocumentoResponse(doc *entity.Documento, hist []*entity.EstadoHistorial) dto.DocumentoResponse {
	out := dto.DocumentoResponse{
		ID:               doc.ID,
		CDC:              doc.CDC,
		NumeroDocumento:  doc.NumeroDocumento,
		FechaEmision:     doc.FechaEmision,
		FechaFirma:       doc.FechaFirma,
		Estado:           doc.EstadoActual,
		IntentosEnvio:    doc.IntentosEnvio,
		IntentosConsulta: doc.IntentosConsulta,
		LoteID:           doc.LoteID,
		QRURL:            doc.QRURL,
		Historial:        make([]dto.HistorialDTO, 0, len(hist)),
	}
	if doc.Totales != nil {
		total := doc.Totales.TotalGeneral
		out.TotalGeneral = &total
	}
	for _, h := range hist {
		out.Historial = append(out.Historial, dto.HistorialDTO{
			Estado:       h.Estado,
			Codigo:       h.Codigo,
			Mensaje:      h.Mensaje,
			FechaProceso: h.FechaProceso,
		})
	}
	return out
}
