package sifen

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity/entitytest"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

func TestBuild_EstructuraRDE(t *testing.T) {
	doc := entitytest.Documento(1, 1)

	out := construirRDE(t, doc)
	x := parseDoc(t, out)

	root := x.Root()
	require.Equal(t, "rDE", root.Tag)
	assert.Equal(t, sifen.NamespaceSIFEN, root.SelectAttrValue("xmlns", ""))
	assert.Equal(t, []string{"dVerFor", "DE"}, tags(root.ChildElements()))
	assert.Equal(t, "150", root.FindElement("dVerFor").Text())

	de := root.FindElement("DE")
	assert.Equal(t, doc.CDC, de.SelectAttrValue("Id", ""))
	assert.Equal(t, []string{
		"dDVId", "dFecFirma", "dSisFact", "gOpeDE", "gTimb", "gDatGralOpe", "gDtipDE", "gTotSub",
	}, tags(de.ChildElements()))
	assert.Equal(t, doc.DV, de.FindElement("dDVId").Text())
	assert.Equal(t, "2024-03-15T10:28:00", de.FindElement("dFecFirma").Text())

	gral := de.FindElement("gDatGralOpe")
	assert.Equal(t, []string{"dFeEmiDE", "gOpeCom", "gEmis", "gDatRec"}, tags(gral.ChildElements()))
	assert.Equal(t, "2024-03-15T10:30:00", gral.FindElement("dFeEmiDE").Text())
	assert.Equal(t, "80069563", gral.FindElement("gEmis/dRucEm").Text())
	assert.Len(t, gral.FindElements("gEmis/gActEco"), 1)
	assert.Equal(t, "80012345", gral.FindElement("gDatRec/dRucRec").Text())

	tip := de.FindElement("gDtipDE")
	assert.Equal(t, []string{"gCamFE", "gCamCond", "gCamItem", "gCamItem"}, tags(tip.ChildElements()))
	assert.Equal(t, "1", tip.FindElement("gCamCond/iCondOpe").Text())
	assert.Equal(t, "160000", tip.FindElement("gCamCond/gPaConEIni/dMonTiPag").Text())
}

func TestBuild_FormatoNumerico(t *testing.T) {
	x := parseDoc(t, construirRDE(t, entitytest.Documento(1, 1)))

	items := x.FindElements("//gCamItem")
	require.Len(t, items, 2)
	assert.Equal(t, "110000", items[0].FindElement("gValorItem/gValorRestaItem/dTotOpeItem").Text())
	assert.Equal(t, "10", items[0].FindElement("gCamIVA/dTasaIVA").Text())
	assert.Equal(t, "2", items[1].FindElement("dCantProSer").Text())
	assert.Equal(t, "0", items[1].FindElement("gCamIVA/dTasaIVA").Text())

	tot := x.FindElement("//gTotSub")
	assert.Equal(t, "160000", tot.FindElement("dTotGralOpe").Text())
	assert.Equal(t, "10000", tot.FindElement("dTotIVA").Text())
	assert.Equal(t, "0", tot.FindElement("dPorcDescTotal").Text())
}

func TestBuild_OmiteOpcionalesAusentes(t *testing.T) {
	doc := entitytest.Documento(1, 1)
	doc.OperacionComercial = nil
	doc.Condicion = nil

	out := construirRDE(t, doc)
	s := string(out)

	assert.NotContains(t, s, "<gOpeCom>")
	assert.NotContains(t, s, "<gCamCond>")
	assert.NotContains(t, s, "<dInfoEmi>")
	assert.NotContains(t, s, "<dNomFanEmi>")
	assert.NotContains(t, s, "<dTelRec>")
	// Ningún elemento vacío
	assert.NotRegexp(t, `<(\w+)></(\w+)>`, s)
}

func TestBuild_EscapaTexto(t *testing.T) {
	doc := entitytest.Documento(1, 1)
	doc.Receptor.Nombre = "PÉREZ & HIJOS <S.A.>"

	out := construirRDE(t, doc)
	assert.Contains(t, string(out), "PÉREZ &amp; HIJOS &lt;S.A.&gt;")
	assert.Equal(t, "PÉREZ & HIJOS <S.A.>", parseDoc(t, out).FindElement("//dNomRec").Text())
}

func TestBuild_Credito(t *testing.T) {
	doc := entitytest.Documento(1, 1)
	doc.Condicion = entity.Credito{Tipo: sifen.CreditoPlazo, Plazo: "30 días"}

	x := parseDoc(t, construirRDE(t, doc))
	cred := x.FindElement("//gCamCond/gPagCred")
	require.NotNil(t, cred)
	assert.Equal(t, "1", cred.FindElement("iCondCred").Text())
	assert.Equal(t, "30 días", cred.FindElement("dPlazoCre").Text())
	assert.Nil(t, cred.FindElement("dCuotas"))
}

func TestBuild_NotaCredito(t *testing.T) {
	doc := entitytest.Documento(1, 1)
	ref := entitytest.Documento(9, 9).CDC
	doc.Timbrado.TipoDocumento = sifen.TipoNotaCreditoElectronica
	entitytest.RecalcularCDC(doc)
	doc.Timbrado.Descripcion = ""
	doc.Condicion = nil
	doc.NotaCredito = &entity.NotaCredito{Motivo: 2, DescMotivo: "Devolución", CDCReferenciado: ref}

	x := parseDoc(t, construirRDE(t, doc))
	de := x.FindElement("//DE")
	assert.Equal(t, []string{
		"dDVId", "dFecFirma", "dSisFact", "gOpeDE", "gTimb", "gDatGralOpe", "gDtipDE", "gTotSub", "gCamDEAsoc",
	}, tags(de.ChildElements()))
	assert.Equal(t, "Nota de crédito electrónica", de.FindElement("gTimb/dDesTiDE").Text())
	assert.Equal(t, []string{"gCamNCDE", "gCamItem", "gCamItem"}, tags(de.FindElement("gDtipDE").ChildElements()))
	assert.Equal(t, ref, de.FindElement("gCamDEAsoc/dCdCDERef").Text())
}

// ── Errores ──────────────────────────────────────────────────────────────────

func TestBuild_SinReceptor(t *testing.T) {
	doc := entitytest.Documento(1, 1)
	doc.Receptor = nil

	_, err := NewXMLBuilderService(zerolog.Nop()).Build(&DocumentoBuildContext{Documento: doc, FechaFirma: fechaFirmaPrueba})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingAggregate)
	assert.True(t, strings.Contains(err.Error(), "receptor"))
}

func TestBuild_TotalesInconsistentes(t *testing.T) {
	doc := entitytest.Documento(1, 1)
	doc.Totales.TotalGeneral = doc.Totales.TotalGeneral.Add(doc.Totales.TotalIVA)

	_, err := NewXMLBuilderService(zerolog.Nop()).Build(&DocumentoBuildContext{Documento: doc, FechaFirma: fechaFirmaPrueba})
	assert.ErrorIs(t, err, domain.ErrTotalesInconsistentes)
}

func TestBuild_CDCInvalidoNoSeEstructura(t *testing.T) {
	base := entitytest.Documento(1, 1).CDC
	dvErroneo := base[:43] + string(rune((base[43]-'0'+1)%10+'0'))

	casos := []struct {
		nombre string
		cdc    string
		err    error
	}{
		{"vacío", "", sifen.ErrMissingField},
		{"no numérico", "abc", sifen.ErrInvalidField},
		{"dígito verificador erróneo", dvErroneo, sifen.ErrInvalidField},
	}
	for _, tc := range casos {
		t.Run(tc.nombre, func(t *testing.T) {
			doc := entitytest.Documento(1, 1)
			doc.CDC = tc.cdc

			out, err := NewXMLBuilderService(zerolog.Nop()).Build(&DocumentoBuildContext{Documento: doc, FechaFirma: fechaFirmaPrueba})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.err)
			assert.Nil(t, out)
		})
	}
}

func TestXMLWriter_ReportaErroresDelEncoder(t *testing.T) {
	t.Run("cierre que no corresponde", func(t *testing.T) {
		var buf strings.Builder
		w := newXMLWriter(&buf)
		openTag(w, "a")
		closeTag(w, "b")
		writeElem(w, "c", "x")
		closeTag(w, "a")

		err := w.finish()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "b")
	})
	t.Run("elemento sin cerrar", func(t *testing.T) {
		var buf strings.Builder
		w := newXMLWriter(&buf)
		openTag(w, "a")
		writeElem(w, "b", "x")

		assert.Error(t, w.finish())
	})
	t.Run("documento bien formado", func(t *testing.T) {
		var buf strings.Builder
		w := newXMLWriter(&buf)
		openTag(w, "a")
		writeElem(w, "b", "x & y")
		closeTag(w, "a")

		require.NoError(t, w.finish())
		assert.Equal(t, "<a><b>x &amp; y</b></a>", buf.String())
	})
}

func TestBuild_ContextoNulo(t *testing.T) {
	_, err := NewXMLBuilderService(zerolog.Nop()).Build(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
