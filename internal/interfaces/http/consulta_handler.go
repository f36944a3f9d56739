package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/sifen-transmisor/internal/application/dto"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
)

// ConsultaService consultas directas a SIFEN.
type ConsultaService interface {
	ConsultarDocumento(ctx context.Context, cdc string) (*infrasifen.ConsultaDE, error)
	ConsultarRUC(ctx context.Context, ruc string) (*infrasifen.RespuestaRUC, error)
}

// ConsultaHandler maneja /api/consultas (protegido).
type ConsultaHandler struct {
	svc ConsultaService
}

// NewConsultaHandler construye el handler.
func NewConsultaHandler(svc ConsultaService) *ConsultaHandler {
	return &ConsultaHandler{svc: svc}
}

// PorCDC godoc
// @Summary      Consulta de un DE por CDC (siConsDE)
// @Tags         consultas
// @Security     Bearer
// @Produce      json
// @Param        cdc  path  string  true  "CDC de 44 dígitos"
// @Success      200  {object}  dto.ConsultaCDCResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/consultas/cdc/{cdc} [get]
func (h *ConsultaHandler) PorCDC(c *fiber.Ctx) error {
	cdc := c.Params("cdc")
	res, err := h.svc.ConsultarDocumento(c.Context(), cdc)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ConsultaCDCResponse{
		CDC:          cdc,
		Codigo:       res.Codigo,
		Mensaje:      res.Mensaje,
		FechaProceso: res.FechaProceso,
		XML:          string(res.ContenidoXML),
	})
}

// PorRUC godoc
// @Summary      Consulta de contribuyente (siConsRUC)
// @Tags         consultas
// @Security     Bearer
// @Produce      json
// @Param        ruc  path  string  true  "RUC, con o sin dígito verificador"
// @Success      200  {object}  dto.ConsultaRUCResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/consultas/ruc/{ruc} [get]
func (h *ConsultaHandler) PorRUC(c *fiber.Ctx) error {
	res, err := h.svc.ConsultarRUC(c.Context(), c.Params("ruc"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ConsultaRUCResponse{
		Codigo:        res.Codigo,
		Mensaje:       res.Mensaje,
		RUC:           res.RUC,
		RazonSocial:   res.RazonSocial,
		Estado:        res.Estado,
		CodigoEstado:  res.CodigoEstado,
		FacturadorEle: strings.EqualFold(res.FacturadorEle, "S"),
	})
}
