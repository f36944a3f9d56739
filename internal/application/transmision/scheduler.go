package transmision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scheduler repite los ciclos de documentos y de eventos en dos loops independientes.
type Scheduler struct {
	docs          Ciclo
	eventos       Ciclo
	docInterval   time.Duration
	eventInterval time.Duration
	log           zerolog.Logger
}

// NewScheduler crea el scheduler. Intervalos no positivos usan 60 s (documentos) y 30 s (eventos).
func NewScheduler(docs, eventos Ciclo, docInterval, eventInterval time.Duration, log zerolog.Logger) *Scheduler {
	if docInterval <= 0 {
		docInterval = 60 * time.Second
	}
	if eventInterval <= 0 {
		eventInterval = 30 * time.Second
	}
	return &Scheduler{
		docs:          docs,
		eventos:       eventos,
		docInterval:   docInterval,
		eventInterval: eventInterval,
		log:           log.With().Str("component", "scheduler").Logger(),
	}
}

// Run bloquea hasta que ctx se cancele. Cada loop ejecuta un ciclo al arrancar y luego uno por tick.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(ctx, "documentos", s.docs, s.docInterval)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, "eventos", s.eventos, s.eventInterval)
	}()
	wg.Wait()
	s.log.Info().Msg("scheduler detenido")
}

// RunOnce ejecuta un ciclo de cada pipeline, en secuencia.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return errors.Join(
		s.ejecutar(ctx, "documentos", s.docs),
		s.ejecutar(ctx, "eventos", s.eventos),
	)
}

func (s *Scheduler) loop(ctx context.Context, nombre string, c Ciclo, intervalo time.Duration) {
	s.log.Info().Str("loop", nombre).Dur("intervalo", intervalo).Msg("loop iniciado")
	ticker := time.NewTicker(intervalo)
	defer ticker.Stop()

	for {
		_ = s.ejecutar(ctx, nombre, c)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ejecutar corre un ciclo con un ciclo_id propio; loguea el error y recupera panics.
func (s *Scheduler) ejecutar(ctx context.Context, nombre string, c Ciclo) (err error) {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log := s.log.With().Str("loop", nombre).Str("ciclo_id", uuid.NewString()).Logger()
	ctx = log.WithContext(ctx)
	inicio := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ciclo de %s: panic: %v", nombre, r)
			log.Error().Interface("panic", r).Msg("panic recuperado en el ciclo")
		}
	}()

	if err = c.RunCycle(ctx); err != nil {
		log.Error().Err(err).Dur("duracion", time.Since(inicio)).Msg("ciclo con errores")
		return fmt.Errorf("ciclo de %s: %w", nombre, err)
	}
	log.Debug().Dur("duracion", time.Since(inicio)).Msg("ciclo completado")
	return nil
}
