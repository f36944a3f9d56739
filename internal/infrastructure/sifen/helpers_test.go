package sifen

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen/signer"
)

var fechaFirmaPrueba = time.Date(2024, 3, 15, 10, 28, 0, 0, time.UTC)

// newTestCert certificado autofirmado RSA, válido para firmar y como certificado de cliente TLS.
func newTestCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(20240315),
		Subject:      pkix.Name{CommonName: "EMISOR DE PRUEBA", SerialNumber: "RUC80069563-1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
}

// construirRDE rDE sin firmar del documento.
func construirRDE(t *testing.T, doc *entity.Documento) []byte {
	t.Helper()
	xmlDE, err := NewXMLBuilderService(zerolog.Nop()).Build(&DocumentoBuildContext{Documento: doc, FechaFirma: fechaFirmaPrueba})
	require.NoError(t, err)
	return xmlDE
}

// firmarRDE construye, firma y finaliza el rDE como lo hace el pipeline.
func firmarRDE(t *testing.T, cert tls.Certificate, doc *entity.Documento) []byte {
	t.Helper()
	res, err := signer.NewXMLDSigService().Sign(construirRDE(t, doc), cert)
	require.NoError(t, err)
	final, err := NewQRFinalizer().Finalize(res.XML, "https://ekuatia.set.gov.py/consultas/qr?nVersion=150&Id="+doc.CDC)
	require.NoError(t, err)
	return final
}

func parseDoc(t *testing.T, raw []byte) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(raw))
	return doc
}

func tags(els []*etree.Element) []string {
	out := make([]string, 0, len(els))
	for _, e := range els {
		out = append(out, e.Tag)
	}
	return out
}
