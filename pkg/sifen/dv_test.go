package sifen_test

import (
	"testing"

	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDigit_Vectores(t *testing.T) {
	casos := []struct {
		entrada  string
		esperado int
	}{
		{"80069563", 1},
		{"80012345", 0},
		{"1234567", 9},
		{"4417282", 6},
		{"80000519", 8},
		{"0180069563100100100000061202111291759571469", 4},
	}
	for _, c := range casos {
		dv, err := sifen.CheckDigit(c.entrada)
		require.NoError(t, err, c.entrada)
		assert.Equal(t, c.esperado, dv, "DV de %s", c.entrada)
	}
}

func TestCheckDigit_Vacio(t *testing.T) {
	_, err := sifen.CheckDigit("")
	assert.ErrorIs(t, err, sifen.ErrInvalidField)
}

func TestRUCCheckDigit_Ausente(t *testing.T) {
	_, err := sifen.RUCCheckDigit("  ")
	assert.ErrorIs(t, err, sifen.ErrMissingField)
}

func TestValidateRUC(t *testing.T) {
	assert.NoError(t, sifen.ValidateRUC("80069563-1"))
	assert.NoError(t, sifen.ValidateRUC(" 4417282-6 "))
	assert.ErrorIs(t, sifen.ValidateRUC("80069563-2"), sifen.ErrInvalidField)
	assert.ErrorIs(t, sifen.ValidateRUC("80069563"), sifen.ErrInvalidField)
}
