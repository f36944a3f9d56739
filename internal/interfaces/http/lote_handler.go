package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/sifen-transmisor/internal/application/dto"
	"github.com/jhoicas/sifen-transmisor/internal/application/transmision"
)

// LoteService estado y consulta a demanda de lotes.
type LoteService interface {
	EstadoLote(ctx context.Context, loteID int64) (*transmision.EstadoLote, error)
	ConsultarLote(ctx context.Context, loteID int64) (*transmision.Conciliacion, error)
}

// LoteHandler maneja /api/lotes (protegido).
type LoteHandler struct {
	svc LoteService
}

// NewLoteHandler construye el handler.
func NewLoteHandler(svc LoteService) *LoteHandler {
	return &LoteHandler{svc: svc}
}

// GetByID godoc
// @Summary      Estado de un lote y resultado por documento
// @Tags         lotes
// @Security     Bearer
// @Produce      json
// @Param        id   path  int  true  "ID del lote"
// @Success      200  {object}  dto.LoteResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/lotes/{id} [get]
func (h *LoteHandler) GetByID(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}
	est, err := h.svc.EstadoLote(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	l := est.Lote
	out := dto.LoteResponse{
		ID:                  l.ID,
		TipoDocumento:       l.TipoDocumento,
		Estado:              l.Estado,
		NumeroLote:          l.NumeroLoteSIFEN,
		FechaEnvio:          l.FechaEnvio,
		IntentosConsulta:    l.IntentosConsulta,
		FechaUltimaConsulta: l.FechaUltimaConsulta,
		Documentos:          make([]dto.MiembroLoteDTO, 0, len(est.Miembros)),
	}
	for _, m := range est.Miembros {
		out.Documentos = append(out.Documentos, dto.MiembroLoteDTO{
			DocumentoID: m.DocumentoID,
			CDC:         m.CDC,
			Estado:      m.EstadoResultado,
			Codigo:      m.Codigo,
			Mensaje:     m.Mensaje,
			Protocolo:   m.ProtocoloAutoriz,
		})
	}
	return c.JSON(out)
}

// Consultar godoc
// @Summary      Consulta inmediata del resultado del lote (siConsLoteDE)
// @Tags         lotes
// @Security     Bearer
// @Produce      json
// @Param        id   path  int  true  "ID del lote"
// @Success      200  {object}  dto.ConciliacionResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/lotes/{id}/consultar [post]
func (h *LoteHandler) Consultar(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}
	res, err := h.svc.ConsultarLote(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ConciliacionResponse{
		LoteID:       res.LoteID,
		Codigo:       res.Codigo,
		Estado:       res.Estado,
		Aprobados:    res.Aprobados,
		Rechazados:   res.Rechazados,
		SinResultado: res.SinResultado,
	})
}
