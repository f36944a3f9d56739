package sifen_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ──────────────────────────────────────────────────────────────────────────────
// CDC de ejemplo publicado en el Manual Técnico (factura electrónica, RUC
// 80069563-1, establecimiento 001, punto 001, número 0000006, 29/11/2021,
// emisión normal, código de seguridad 759571469). DV esperado: 4.
// ──────────────────────────────────────────────────────────────────────────────

const cdcManual = "01800695631001001000000612021112917595714694"

func inputManual() sifen.CDCInput {
	return sifen.CDCInput{
		TipoDocumento:     sifen.TipoFacturaElectronica,
		RUCEmisor:         "80069563",
		DVEmisor:          "1",
		Establecimiento:   "001",
		PuntoExpedicion:   "001",
		NumeroDocumento:   "0000006",
		TipoContribuyente: 2,
		FechaEmision:      time.Date(2021, 11, 29, 10, 0, 0, 0, time.UTC),
		TipoEmision:       sifen.TipoEmisionNormal,
		CodigoSeguridad:   "759571469",
	}
}

func TestBuildCDC_EjemploManual(t *testing.T) {
	cdc, err := sifen.BuildCDC(inputManual())
	require.NoError(t, err)
	assert.Equal(t, cdcManual, cdc)
	assert.Len(t, cdc, sifen.LongitudCDC)
}

func TestBuildCDC_Determinista(t *testing.T) {
	a, err1 := sifen.BuildCDC(inputManual())
	b, err2 := sifen.BuildCDC(inputManual())
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, a, b, "la misma entrada debe producir el mismo CDC")
}

func TestBuildCDC_CompletaConCeros(t *testing.T) {
	in := inputManual()
	in.Establecimiento = "1"
	in.PuntoExpedicion = "1"
	in.NumeroDocumento = "6"

	cdc, err := sifen.BuildCDC(in)
	require.NoError(t, err)
	assert.Equal(t, cdcManual, cdc, "los campos cortos se completan con ceros a la izquierda")
}

func TestBuildCDC_OtroDocumento(t *testing.T) {
	in := inputManual()
	in.NumeroDocumento = "0000001"
	in.FechaEmision = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	in.TipoContribuyente = 1
	in.CodigoSeguridad = "123456789"

	cdc, err := sifen.BuildCDC(in)
	require.NoError(t, err)
	assert.Equal(t, "01800695631001001000000112024031511234567896", cdc)
	assert.NoError(t, sifen.ValidateCDC(cdc))
}

// ── Campos ausentes o inválidos ──────────────────────────────────────────────

func TestBuildCDC_CampoAusente(t *testing.T) {
	casos := map[string]func(*sifen.CDCInput){
		"ruc_emisor":       func(in *sifen.CDCInput) { in.RUCEmisor = "" },
		"codigo_seguridad": func(in *sifen.CDCInput) { in.CodigoSeguridad = " " },
		"fecha_emision":    func(in *sifen.CDCInput) { in.FechaEmision = time.Time{} },
		"tipo_documento":   func(in *sifen.CDCInput) { in.TipoDocumento = 0 },
	}
	for campo, mutar := range casos {
		t.Run(campo, func(t *testing.T) {
			in := inputManual()
			mutar(&in)

			_, err := sifen.BuildCDC(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, sifen.ErrMissingField))

			var mf *sifen.MissingFieldError
			require.True(t, errors.As(err, &mf))
			assert.Equal(t, campo, mf.Field)
		})
	}
}

func TestBuildCDC_CampoExcedeAncho(t *testing.T) {
	in := inputManual()
	in.NumeroDocumento = "12345678"

	_, err := sifen.BuildCDC(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, sifen.ErrInvalidField)
}

func TestBuildCDC_CampoNoNumerico(t *testing.T) {
	in := inputManual()
	in.Establecimiento = "A01"

	_, err := sifen.BuildCDC(in)
	assert.ErrorIs(t, err, sifen.ErrInvalidField)
}

// ── Validación ───────────────────────────────────────────────────────────────

func TestValidateCDC(t *testing.T) {
	assert.NoError(t, sifen.ValidateCDC(cdcManual))

	alterado := cdcManual[:43] + "5"
	assert.ErrorIs(t, sifen.ValidateCDC(alterado), sifen.ErrInvalidCDC)
	assert.ErrorIs(t, sifen.ValidateCDC("123"), sifen.ErrInvalidCDC)
	assert.ErrorIs(t, sifen.ValidateCDC(cdcManual[:43]+"X"), sifen.ErrInvalidCDC)
}

func TestDVDeCDC(t *testing.T) {
	assert.Equal(t, "4", sifen.DVDeCDC(cdcManual))
	assert.Equal(t, "", sifen.DVDeCDC("01"))
}
