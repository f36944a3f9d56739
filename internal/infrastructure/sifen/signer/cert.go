// Carga de certificado desde .p12 (PKCS#12) o par PEM, con llave PKCS#8 cifrada opcional.

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/pkcs12"
)

// ErrInvalidKey la llave privada no se pudo leer, descifrar o no es RSA.
var ErrInvalidKey = errors.New("signer: llave privada inválida")

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: decodificar p12: %v", ErrInvalidKey, err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carga certificado y llave desde archivos PEM. La llave puede venir
// como PKCS#1, PKCS#8 o PKCS#8 cifrada ("ENCRYPTED PRIVATE KEY", requiere password).
func LoadFromPEM(certPath, keyPath, password string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("leer certificado: %w", err)
	}
	if keyPath == "" {
		keyPath = certPath
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("leer llave: %w", err)
	}
	return ParsePEM(certPEM, keyPEM, password)
}

// ParsePEM arma el tls.Certificate a partir del contenido PEM ya leído.
func ParsePEM(certPEM, keyPEM []byte, password string) (tls.Certificate, error) {
	var out tls.Certificate
	for rest := certPEM; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			out.Certificate = append(out.Certificate, block.Bytes)
		}
	}
	if len(out.Certificate) == 0 {
		return tls.Certificate{}, errors.New("signer: el PEM no contiene certificados")
	}
	leaf, err := x509.ParseCertificate(out.Certificate[0])
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parsear certificado: %w", err)
	}
	out.Leaf = leaf

	key, err := parsePrivateKey(keyPEM, []byte(password))
	if err != nil {
		return tls.Certificate{}, err
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		return tls.Certificate{}, fmt.Errorf("%w: no corresponde al certificado", ErrInvalidKey)
	}
	out.PrivateKey = key
	return out, nil
}

func parsePrivateKey(keyPEM, password []byte) (*rsa.PrivateKey, error) {
	for rest := keyPEM; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "ENCRYPTED PRIVATE KEY":
			if len(password) == 0 {
				return nil, fmt.Errorf("%w: la llave cifrada requiere password", ErrInvalidKey)
			}
			k, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, password)
			if err != nil {
				return nil, fmt.Errorf("%w: descifrar PKCS#8: %v", ErrInvalidKey, err)
			}
			return k, nil
		case "PRIVATE KEY":
			k, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: PKCS#8: %v", ErrInvalidKey, err)
			}
			return k, nil
		case "RSA PRIVATE KEY":
			k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: PKCS#1: %v", ErrInvalidKey, err)
			}
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: no se encontró bloque de llave privada", ErrInvalidKey)
}

// Load elige p12 o PEM según los parámetros presentes.
func Load(p12Path, p12Password, certPath, keyPath, keyPassword string) (tls.Certificate, error) {
	if p12Path != "" {
		return LoadFromP12(p12Path, p12Password)
	}
	if certPath == "" {
		return tls.Certificate{}, errors.New("signer: no hay certificado configurado")
	}
	return LoadFromPEM(certPath, keyPath, keyPassword)
}

// IssuerSerial devuelve el DN del emisor y el número de serie decimal para X509IssuerSerial.
func IssuerSerial(cert *x509.Certificate) (issuerName string, serial string) {
	return cert.Issuer.String(), cert.SerialNumber.String()
}
