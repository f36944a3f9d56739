package transmision

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cicloFake cuenta ejecuciones y comprueba que el contexto traiga el logger del ciclo.
type cicloFake struct {
	n       atomic.Int32
	err     error
	panico  bool
	conLogs atomic.Int32
}

func (c *cicloFake) RunCycle(ctx context.Context) error {
	c.n.Add(1)
	if zerolog.Ctx(ctx).GetLevel() != zerolog.Disabled {
		c.conLogs.Add(1)
	}
	if c.panico {
		panic("índice fuera de rango")
	}
	return c.err
}

// ── RunOnce ──────────────────────────────────────────────────────────────────

func TestScheduler_RunOnceEjecutaAmbosCiclos(t *testing.T) {
	docs, eventos := &cicloFake{}, &cicloFake{}
	s := NewScheduler(docs, eventos, time.Minute, time.Minute, zerolog.Nop())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, docs.n.Load())
	assert.EqualValues(t, 1, eventos.n.Load())
	assert.EqualValues(t, 1, docs.conLogs.Load())
}

func TestScheduler_RunOnceUneErrores(t *testing.T) {
	errDocs, errEventos := errors.New("docs"), errors.New("eventos")
	s := NewScheduler(&cicloFake{err: errDocs}, &cicloFake{err: errEventos}, 0, 0, zerolog.Nop())

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, errDocs)
	assert.ErrorIs(t, err, errEventos)
}

func TestScheduler_PanicSeRecupera(t *testing.T) {
	eventos := &cicloFake{}
	s := NewScheduler(&cicloFake{panico: true}, eventos, 0, 0, zerolog.Nop())

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.EqualValues(t, 1, eventos.n.Load())
}

func TestScheduler_ContextoCanceladoNoEjecuta(t *testing.T) {
	docs := &cicloFake{}
	s := NewScheduler(docs, &cicloFake{}, 0, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.RunOnce(ctx), context.Canceled)
	assert.Zero(t, docs.n.Load())
}

// ── Run ──────────────────────────────────────────────────────────────────────

func TestScheduler_RunRepiteHastaCancelar(t *testing.T) {
	docs, eventos := &cicloFake{err: errors.New("sin conexión")}, &cicloFake{}
	s := NewScheduler(docs, eventos, 10*time.Millisecond, 10*time.Millisecond, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	hecho := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(hecho)
	}()

	require.Eventually(t, func() bool {
		return docs.n.Load() >= 3 && eventos.n.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-hecho:
	case <-time.After(2 * time.Second):
		t.Fatal("Run no terminó tras cancelar el contexto")
	}
}

func TestNewScheduler_IntervalosPorDefecto(t *testing.T) {
	s := NewScheduler(&cicloFake{}, &cicloFake{}, 0, -1, zerolog.Nop())
	assert.Equal(t, 60*time.Second, s.docInterval)
	assert.Equal(t, 30*time.Second, s.eventInterval)
}
