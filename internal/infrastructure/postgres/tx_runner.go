package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/sifen-transmisor/internal/application/transmision"
	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
)

var _ transmision.TxRunner = (*TxRunner)(nil)

// TxRunner abre transacciones sobre el pool y entrega repositorios atados a ellas.
type TxRunner struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// NewTxRunner construye el runner. Las transacciones usan READ COMMITTED:
// las filas del lote se serializan con SELECT ... FOR UPDATE en LockForUpdate.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// RunLote ejecuta fn con repos de lotes y documentos sobre la misma tx.
// Si fn devuelve error o entra en pánico no se aplica ningún cambio.
func (r *TxRunner) RunLote(ctx context.Context, fn func(
	lotes repository.LoteRepository,
	docs repository.DocumentoRepository,
) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(NewLoteRepository(tx), NewDocumentoRepository(tx))
	})
}

func (r *TxRunner) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, r.opts)
	if err != nil {
		return fmt.Errorf("iniciar transacción: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("confirmar transacción: %w", err)
	}
	return nil
}
