package transmision

import (
	"context"

	"github.com/rs/zerolog"
)

// loggerFrom devuelve el logger del ciclo (con ciclo_id) si el Scheduler lo adjuntó al contexto.
func loggerFrom(ctx context.Context, fallback zerolog.Logger, component string) zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return fallback
	}
	return l.With().Str("component", component).Logger()
}
