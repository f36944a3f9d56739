package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrUnauthorized = errors.New("no autorizado")
	ErrConflict     = errors.New("conflicto con el estado actual")

	// Transmisión SIFEN
	ErrMissingAggregate      = errors.New("documento sin agregado obligatorio")
	ErrTotalesInconsistentes = errors.New("los totales no coinciden con los ítems")
	ErrTransicionInvalida    = errors.New("transición de estado no permitida")
	ErrYaConciliado          = errors.New("el lote ya fue conciliado")
	ErrCDCDesconocido        = errors.New("SIFEN informó un CDC que no pertenece al lote")
	ErrLoteVacio             = errors.New("lote sin documentos")
	ErrLoteExcedido          = errors.New("lote excede el máximo de documentos")
)
