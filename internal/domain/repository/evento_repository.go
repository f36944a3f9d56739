package repository

import (
	"context"
	"time"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
)

// EventoRepository define el puerto de persistencia de eventos del emisor.
type EventoRepository interface {
	// ClaimPending pasa atómicamente hasta limit eventos PENDING_SEND a SENT y los devuelve.
	ClaimPending(ctx context.Context, limit int) ([]*entity.Evento, error)
	GetByID(ctx context.Context, id int64) (*entity.Evento, error)
	SetFechaFirma(ctx context.Context, id int64, fecha time.Time) error
	// GuardarRespuesta persiste XML intercambiado, campos de respuesta y el estado final del evento.
	GuardarRespuesta(ctx context.Context, ev *entity.Evento) error
	ActualizarEstado(ctx context.Context, id int64, from, to string) error
}
