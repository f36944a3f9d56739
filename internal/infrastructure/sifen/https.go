package sifen

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"time"
)

// DefaultTimeout tiempo máximo por llamada cuando no se configura otro.
const DefaultTimeout = 45 * time.Second

// TransportConfig parámetros TLS del cliente hacia SIFEN.
type TransportConfig struct {
	// Certificate certificado del contribuyente con su llave privada (autenticación mutua).
	Certificate tls.Certificate
	// RootCAs opcional; nil usa las raíces del sistema.
	RootCAs *x509.CertPool
	Timeout time.Duration
}

// NewHTTPSClient crea el http.Client con TLS mutuo (TLS 1.2 como mínimo).
func NewHTTPSClient(cfg TransportConfig) (*http.Client, error) {
	if len(cfg.Certificate.Certificate) == 0 || cfg.Certificate.PrivateKey == nil {
		return nil, errors.New("transporte: falta el certificado de cliente")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cfg.Certificate},
		RootCAs:      cfg.RootCAs,
	}
	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: 15 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
