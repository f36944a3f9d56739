package transmision

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
)

// maxMensaje largo de las columnas de mensaje en historial y miembros de lote.
const maxMensaje = 500

// marcarErrorXML pasa el documento de IN_BATCH a ERROR_XML y deja la causa en el historial.
func marcarErrorXML(ctx context.Context, docs repository.DocumentoRepository, doc *entity.Documento, causa error, now time.Time) error {
	if err := docs.ActualizarEstado(ctx, doc.ID, entity.EstadoEnLote, entity.EstadoErrorXML); err != nil {
		return err
	}
	doc.EstadoActual = entity.EstadoErrorXML
	return registrarHistorial(ctx, docs, doc.ID, entity.EstadoErrorXML, "", causa.Error(), now)
}

// registrarFalloEnvio devuelve el documento a la cola o lo pasa a ERROR_SEND al agotar los intentos.
func registrarFalloEnvio(ctx context.Context, docs repository.DocumentoRepository, doc *entity.Documento,
	maxRetries int, codigo, mensaje string, now time.Time,
) (string, error) {
	estado, err := docs.RegistrarFalloEnvio(ctx, doc.ID, maxRetries)
	if err != nil {
		return "", err
	}
	doc.EstadoActual = estado
	doc.IntentosEnvio++
	return estado, registrarHistorial(ctx, docs, doc.ID, estado, codigo, mensaje, now)
}

func registrarHistorial(ctx context.Context, docs repository.DocumentoRepository,
	docID int64, estado, codigo, mensaje string, fecha time.Time,
) error {
	h := &entity.EstadoHistorial{
		DocumentoID:  docID,
		Codigo:       codigo,
		Mensaje:      truncar(mensaje, maxMensaje),
		Estado:       estado,
		FechaProceso: fecha,
	}
	if err := docs.RegistrarHistorial(ctx, h); err != nil {
		return fmt.Errorf("historial documento %d: %w", docID, err)
	}
	return nil
}

// truncar corta s a n runas como máximo.
func truncar(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func fechaOAhora(t *time.Time, now time.Time) time.Time {
	if t != nil {
		return *t
	}
	return now
}
