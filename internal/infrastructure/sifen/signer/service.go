// Firma XMLDSig enveloped para documentos y eventos SIFEN.
// El nodo <Signature> se agrega al padre del elemento firmado, inmediatamente después de él.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
	"github.com/ucarion/c14n"
)

// ErrMissingReference el XML no contiene un elemento con atributo Id.
var ErrMissingReference = errors.New("signer: no se encontró el elemento referenciado (Id)")

// XMLDSigService implementa sifen.Signer.
type XMLDSigService struct{}

// NewXMLDSigService crea el servicio.
func NewXMLDSigService() *XMLDSigService {
	return &XMLDSigService{}
}

var _ sifen.Signer = (*XMLDSigService)(nil)

// Sign firma el primer elemento con atributo Id (DE o rEve).
func (s *XMLDSigService) Sign(xmlBytes []byte, cert tls.Certificate) (*sifen.SignResult, error) {
	if len(xmlBytes) == 0 {
		return nil, errors.New("signer: XML vacío")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok || priv == nil {
		return nil, fmt.Errorf("%w: el certificado debe incluir llave privada RSA", ErrInvalidKey)
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("%w: certificado vacío", ErrInvalidKey)
	}
	x509Cert := cert.Leaf
	if x509Cert == nil {
		var err error
		if x509Cert, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, fmt.Errorf("%w: parsear certificado: %v", ErrInvalidKey, err)
		}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("signer: parsear XML: %w", err)
	}
	target := doc.FindElement("//*[@Id]")
	if target == nil || target.Parent() == nil {
		return nil, ErrMissingReference
	}
	id := strings.TrimSpace(target.SelectAttrValue("Id", ""))
	if id == "" {
		return nil, fmt.Errorf("%w: <%s> con Id vacío", ErrMissingReference, target.Tag)
	}

	// 1) Digest del nodo referenciado, canonicalizado fuera de contexto
	canonicalTarget, err := canonicalizeElement(target)
	if err != nil {
		return nil, fmt.Errorf("signer: canonicalizar %s: %w", target.Tag, err)
	}
	digest := sha256.Sum256(canonicalTarget)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	// 2) SignedInfo
	signedInfoXML := buildSignedInfo(id, digestB64)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		return nil, fmt.Errorf("signer: canonicalizar SignedInfo: %w", err)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: firmar SignedInfo: %v", ErrInvalidKey, err)
	}

	// 3) Signature completo con KeyInfo
	issuerName, serial := IssuerSerial(x509Cert)
	signatureXML := buildSignature(signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw),
		issuerName, serial)

	// 4) Inyectar a continuación del nodo firmado
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("signer: parsear Signature: %w", err)
	}
	parent := target.Parent()
	parent.InsertChildAt(target.Index()+1, sigDoc.Root())

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("signer: serializar: %w", err)
	}
	return &sifen.SignResult{
		XML:         out.Bytes(),
		DigestValue: digestB64,
		Signature:   []byte(signatureXML),
	}, nil
}

// canonicalizeElement serializa el elemento aislado declarando el namespace por defecto
// que hereda de su raíz, y aplica C14N exclusiva.
func canonicalizeElement(el *etree.Element) ([]byte, error) {
	cp := el.Copy()
	if cp.SelectAttr("xmlns") == nil {
		cp.CreateAttr("xmlns", inheritedNamespace(el))
	}
	d := etree.NewDocument()
	d.SetRoot(cp)
	raw, err := d.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalizeXML(raw)
}

func inheritedNamespace(el *etree.Element) string {
	for e := el; e != nil; e = e.Parent() {
		if a := e.SelectAttr("xmlns"); a != nil {
			return a.Value
		}
	}
	return namespaceSIFEN
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(id, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgExcC14N + `"></CanonicalizationMethod>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA256 + `"></SignatureMethod>`)
	sb.WriteString(`<Reference URI="#` + escapeXML(id) + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"></Transform>`)
	sb.WriteString(`<Transform Algorithm="` + AlgExcC14N + `"></Transform></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA256 + `"></DigestMethod>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfoXML, signatureValueB64, certB64, issuerName, serial string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data>`)
	sb.WriteString(`<X509Certificate>` + certB64 + `</X509Certificate>`)
	sb.WriteString(`<X509IssuerSerial><X509IssuerName>` + escapeXML(issuerName) + `</X509IssuerName>`)
	sb.WriteString(`<X509SerialNumber>` + serial + `</X509SerialNumber></X509IssuerSerial>`)
	sb.WriteString(`</X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
