package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/sifen-transmisor/internal/application/dto"
	"github.com/jhoicas/sifen-transmisor/internal/domain"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
)

// writeError traduce errores de dominio y de transporte a respuestas HTTP.
func writeError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = fiber.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrYaConciliado):
		status, code = fiber.StatusConflict, "ALREADY_RECONCILED"
	case errors.Is(err, domain.ErrConflict):
		status, code = fiber.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = fiber.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrCDCDesconocido):
		status, code = fiber.StatusBadGateway, "UNKNOWN_CDC"
	case errors.Is(err, infrasifen.ErrEndpointNoConfigurado):
		status, code = fiber.StatusServiceUnavailable, "ENDPOINT_NOT_CONFIGURED"
	case errors.Is(err, infrasifen.ErrTransport):
		status, code = fiber.StatusBadGateway, "SIFEN_UNAVAILABLE"
	case errors.Is(err, infrasifen.ErrRespuestaInesperada):
		status, code = fiber.StatusBadGateway, "SIFEN_BAD_RESPONSE"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}

// paramID lee un id numérico positivo de la ruta.
func paramID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func invalidID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_ID", Message: "id debe ser un entero positivo"})
}
