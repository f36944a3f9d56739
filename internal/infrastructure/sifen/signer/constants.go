// Algoritmos XMLDSig exigidos por SIFEN (Manual Técnico v150, sección de firma digital).

package signer

// Namespaces y algoritmos XMLDSig.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgExcC14N         = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Namespace por defecto que hereda el nodo firmado; se declara al serializarlo aislado.
const namespaceSIFEN = "http://ekuatia.set.gov.py/sifen/xsd"
