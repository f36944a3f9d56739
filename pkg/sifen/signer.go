package sifen

import "crypto/tls"

// SignResult resultado de firmar un documento o evento.
type SignResult struct {
	// XML es el documento con ds:Signature agregado a continuación del nodo firmado.
	XML []byte
	// DigestValue es el digest Base64 del nodo referenciado; se reutiliza en el QR.
	DigestValue string
	// Signature es el nodo ds:Signature serializado.
	Signature []byte
}

// Signer firma el elemento identificado por su atributo Id (DE o rEve) con firma enveloped.
type Signer interface {
	// Sign recibe el XML sin firmar (rDE o gGroupGesEve) y el certificado con llave privada.
	Sign(xmlBytes []byte, cert tls.Certificate) (*SignResult, error)
}
