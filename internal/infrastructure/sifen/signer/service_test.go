package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cdcPrueba = "01800695631001001000000612021112917595714694"

// newTestCert genera un certificado autofirmado RSA para pruebas.
func newTestCert(t *testing.T) (tls.Certificate, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(123456789),
		Subject:      pkix.Name{CommonName: "EMISOR DE PRUEBA", Organization: []string{"SET"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, key
}

const rdeSinFirma = `<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
	`<dVerFor>150</dVerFor>` +
	`<DE Id="` + cdcPrueba + `"><dDVId>4</dDVId><dSisFact>1</dSisFact></DE>` +
	`</rDE>`

// ──────────────────────────────────────────────────────────────────────────────
// Digest: C14N exclusiva del DE aislado, con el namespace por defecto declarado
// ──────────────────────────────────────────────────────────────────────────────

func TestSign_DigestDelDE(t *testing.T) {
	cert, _ := newTestCert(t)

	res, err := NewXMLDSigService().Sign([]byte(rdeSinFirma), cert)
	require.NoError(t, err)

	canonico := `<DE xmlns="http://ekuatia.set.gov.py/sifen/xsd" Id="` + cdcPrueba + `"><dDVId>4</dDVId><dSisFact>1</dSisFact></DE>`
	sum := sha256.Sum256([]byte(canonico))
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), res.DigestValue)
}

func TestSign_SignatureDespuesDelDE(t *testing.T) {
	cert, _ := newTestCert(t)

	res, err := NewXMLDSigService().Sign([]byte(rdeSinFirma), cert)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(res.XML))
	hijos := doc.Root().ChildElements()
	require.Len(t, hijos, 3)
	assert.Equal(t, "dVerFor", hijos[0].Tag)
	assert.Equal(t, "DE", hijos[1].Tag)
	assert.Equal(t, "Signature", hijos[2].Tag)

	ref := hijos[2].FindElement(".//Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#"+cdcPrueba, ref.SelectAttrValue("URI", ""))
	assert.Equal(t, res.DigestValue, hijos[2].FindElement(".//DigestValue").Text())
	assert.Equal(t, "123456789", hijos[2].FindElement(".//X509SerialNumber").Text())
	assert.Contains(t, hijos[2].FindElement(".//X509IssuerName").Text(), "EMISOR DE PRUEBA")
}

func TestSign_SignatureValueVerificable(t *testing.T) {
	cert, key := newTestCert(t)

	res, err := NewXMLDSigService().Sign([]byte(rdeSinFirma), cert)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(res.XML))
	si := doc.FindElement("//SignedInfo")
	require.NotNil(t, si)
	canonSI, err := canonicalizeElement(si)
	require.NoError(t, err)

	sigB64 := doc.FindElement("//SignatureValue").Text()
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	require.NoError(t, err)

	h := sha256.Sum256(canonSI)
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, h[:], sig))
}

func TestSign_Evento_FirmaRGesEve(t *testing.T) {
	cert, _ := newTestCert(t)
	ev := `<gGroupGesEve xmlns="http://ekuatia.set.gov.py/sifen/xsd"><rGesEve>` +
		`<rEve Id="15"><dFecFirma>2024-03-15T10:00:00</dFecFirma><dVerFor>150</dVerFor></rEve>` +
		`</rGesEve></gGroupGesEve>`

	res, err := NewXMLDSigService().Sign([]byte(ev), cert)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(res.XML))
	hijos := doc.FindElement("//rGesEve").ChildElements()
	require.Len(t, hijos, 2)
	assert.Equal(t, "rEve", hijos[0].Tag)
	assert.Equal(t, "Signature", hijos[1].Tag)
	assert.True(t, strings.Contains(string(res.XML), `URI="#15"`))
}

// ── Errores ──────────────────────────────────────────────────────────────────

func TestSign_SinId(t *testing.T) {
	cert, _ := newTestCert(t)
	_, err := NewXMLDSigService().Sign([]byte(`<rDE><DE/></rDE>`), cert)
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestSign_IdVacio(t *testing.T) {
	cert, _ := newTestCert(t)
	for _, raw := range []string{
		`<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd"><DE Id=""><dDVId>7</dDVId></DE></rDE>`,
		`<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd"><DE Id="  "><dDVId>7</dDVId></DE></rDE>`,
	} {
		res, err := NewXMLDSigService().Sign([]byte(raw), cert)
		assert.ErrorIs(t, err, ErrMissingReference)
		assert.Nil(t, res)
	}
}

func TestSign_SinLlave(t *testing.T) {
	cert, _ := newTestCert(t)
	cert.PrivateKey = nil
	_, err := NewXMLDSigService().Sign([]byte(rdeSinFirma), cert)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSign_XMLVacio(t *testing.T) {
	cert, _ := newTestCert(t)
	_, err := NewXMLDSigService().Sign(nil, cert)
	assert.Error(t, err)
}
