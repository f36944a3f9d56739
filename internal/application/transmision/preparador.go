package transmision

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// DocumentoFirmado rDE listo para transmitir.
type DocumentoFirmado struct {
	XML        []byte
	QRURL      string
	FechaFirma time.Time
	// Reutilizado indica que se tomó el XML firmado en un ciclo anterior.
	Reutilizado bool
}

// Preparador estructura, firma y agrega el QR a un documento.
type Preparador struct {
	builder   DocumentBuilder
	signer    sifen.Signer
	cert      tls.Certificate
	finalizer *infrasifen.QRFinalizer
	cfg       Config
	now       func() time.Time
}

// NewPreparador crea el preparador con el certificado del emisor.
func NewPreparador(builder DocumentBuilder, signer sifen.Signer, cert tls.Certificate, cfg Config) *Preparador {
	return &Preparador{
		builder:   builder,
		signer:    signer,
		cert:      cert,
		finalizer: infrasifen.NewQRFinalizer(),
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// Preparar devuelve el rDE firmado con gCamFuFD. Un documento ya firmado en un ciclo previo
// (devuelto a la cola por un fallo de transporte) conserva su XML y su fecha de firma.
func (p *Preparador) Preparar(doc *entity.Documento) (*DocumentoFirmado, error) {
	if len(doc.XMLFirmado) > 0 && doc.FechaFirma != nil && doc.QRURL != "" {
		return &DocumentoFirmado{XML: doc.XMLFirmado, QRURL: doc.QRURL, FechaFirma: *doc.FechaFirma, Reutilizado: true}, nil
	}

	fechaFirma := p.now().Add(-p.cfg.DesfaseFirma).Truncate(time.Second)
	rde, err := p.builder.Build(&infrasifen.DocumentoBuildContext{Documento: doc, FechaFirma: fechaFirma})
	if err != nil {
		return nil, fmt.Errorf("estructurar: %w", err)
	}
	firma, err := p.signer.Sign(rde, p.cert)
	if err != nil {
		return nil, fmt.Errorf("firmar: %w", err)
	}

	qrURL := sifen.BuildQRURL(p.cfg.URLQR, sifen.QRInput{
		CDC:           doc.CDC,
		FechaEmision:  doc.FechaEmision,
		DocReceptor:   doc.Receptor.DocumentoQR(),
		TotalGeneral:  doc.Totales.TotalGeneral,
		TotalIVA:      doc.Totales.TotalIVA,
		CantidadItems: len(doc.Items),
		DigestValue:   firma.DigestValue,
		IdCSC:         p.cfg.IdCSC,
	}, p.cfg.CSC)

	final, err := p.finalizer.Finalize(firma.XML, qrURL)
	if err != nil {
		return nil, fmt.Errorf("qr: %w", err)
	}
	return &DocumentoFirmado{XML: final, QRURL: qrURL, FechaFirma: fechaFirma}, nil
}
