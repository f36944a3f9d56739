package transmision

import (
	"archive/zip"
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
)

var ahora = time.Date(2024, 3, 15, 10, 35, 0, 0, time.UTC)

func reloj() time.Time { return ahora }

// tlsVacio alcanza con la firma simulada.
var tlsVacio tls.Certificate

// entorno pipeline de documentos completo sobre el store en memoria, con builder real y firma simulada.
type entorno struct {
	store      *memStore
	transport  *fakeTransport
	signer     *stubSigner
	preparador *Preparador
	reconciler *Reconciler
	poller     *LotePoller
	pipeline   *DocumentPipeline
	consultas  *ConsultaService
}

func testConfig() Config {
	return Config{
		BatchSize:    50,
		MaxRetries:   3,
		MaxConsultas: 10,
		CSC:          "ABCD0000000000000000000000000000",
		IdCSC:        "0001",
	}
}

func nuevoEntorno(t *testing.T, docs ...*entity.Documento) *entorno {
	t.Helper()
	return nuevoEntornoCon(t, testConfig(), docs...)
}

func nuevoEntornoCon(t *testing.T, cfg Config, docs ...*entity.Documento) *entorno {
	t.Helper()
	log := zerolog.Nop()
	store := newMemStore()
	for _, d := range docs {
		store.addDoc(d)
	}
	tr := newFakeTransport()
	sg := &stubSigner{}

	prep := NewPreparador(infrasifen.NewXMLBuilderService(log), sg, tlsVacio, cfg)
	prep.now = reloj
	rec := NewReconciler(store, log)
	rec.now = reloj
	poller := NewLotePoller(store.loteRepo(), tr, rec, log)
	poller.now = reloj
	pipe := NewDocumentPipeline(store.docRepo(), store.loteRepo(), store, prep, tr, poller, cfg, log)
	pipe.now = reloj
	cs := NewConsultaService(store.docRepo(), store.loteRepo(), store, tr, prep, poller, cfg, log)
	cs.now = reloj

	return &entorno{
		store:      store,
		transport:  tr,
		signer:     sg,
		preparador: prep,
		reconciler: rec,
		poller:     poller,
		pipeline:   pipe,
		consultas:  cs,
	}
}

// ── Respuestas de SIFEN ──────────────────────────────────────────────────────

const nsSIFEN = `xmlns:ns2="http://ekuatia.set.gov.py/sifen/xsd"`

func envolver(cuerpo string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"><env:Header/><env:Body>` +
		cuerpo + `</env:Body></env:Envelope>`
}

func respuestaRecepcion(codigo, protocolo string) string {
	msg := "Lote recibido con éxito"
	if codigo != "0300" {
		msg = "Lote no encolado para procesamiento"
	}
	return envolver(`<ns2:rResEnviLoteDe ` + nsSIFEN + `>` +
		`<ns2:dFecProc>2024-03-15T07:35:05-03:00</ns2:dFecProc>` +
		`<ns2:dCodRes>` + codigo + `</ns2:dCodRes><ns2:dMsgRes>` + msg + `</ns2:dMsgRes>` +
		`<ns2:dProtConsLote>` + protocolo + `</ns2:dProtConsLote><ns2:dTpoProces>0</ns2:dTpoProces>` +
		`</ns2:rResEnviLoteDe>`)
}

// resDoc resultado individual dentro de gResProcLote.
type resDoc struct {
	cdc, estado, codigo, mensaje, protocolo string
}

func aprobado(cdc, protocolo string) resDoc {
	return resDoc{cdc: cdc, estado: "Aprobado", codigo: "0260", mensaje: "Autorización del DE satisfactoria", protocolo: protocolo}
}

func rechazado(cdc, codigo, mensaje string) resDoc {
	return resDoc{cdc: cdc, estado: "Rechazado", codigo: codigo, mensaje: mensaje}
}

func respuestaResultado(codigo string, docs ...resDoc) string {
	var b strings.Builder
	b.WriteString(`<ns2:rResEnviConsLoteDe ` + nsSIFEN + `>`)
	b.WriteString(`<ns2:dFecProc>2024-03-15T07:40:00-03:00</ns2:dFecProc>`)
	fmt.Fprintf(&b, `<ns2:dCodResLot>%s</ns2:dCodResLot><ns2:dMsgResLot>Lote %s</ns2:dMsgResLot>`, codigo, codigo)
	for _, d := range docs {
		fmt.Fprintf(&b, `<ns2:gResProcLote><ns2:id>%s</ns2:id><ns2:dEstRes>%s</ns2:dEstRes>`, d.cdc, d.estado)
		if d.protocolo != "" {
			fmt.Fprintf(&b, `<ns2:dProtAut>%s</ns2:dProtAut>`, d.protocolo)
		}
		fmt.Fprintf(&b, `<ns2:gResProc><ns2:dCodRes>%s</ns2:dCodRes><ns2:dMsgRes>%s</ns2:dMsgRes></ns2:gResProc>`, d.codigo, d.mensaje)
		b.WriteString(`</ns2:gResProcLote>`)
	}
	b.WriteString(`</ns2:rResEnviConsLoteDe>`)
	return envolver(b.String())
}

// cdcsDelZip descomprime xDE y devuelve los CDC del rLoteDE en orden.
func cdcsDelZip(t *testing.T, zipLote []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(zipLote), int64(len(zipLote)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	f, err := zr.File[0].Open()
	require.NoError(t, err)
	defer f.Close()
	loteXML, err := io.ReadAll(f)
	require.NoError(t, err)

	entries, err := infrasifen.ParseLote(loteXML)
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.CDC
	}
	return out
}

// estados estado actual de cada documento, en el orden de ids.
func (s *memStore) estados(ids ...int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.docs[id].EstadoActual
	}
	return out
}

func (s *memStore) estadosHistorial(docID int64) []string {
	var out []string
	for _, h := range s.historialDe(docID) {
		out = append(out, h.Estado)
	}
	return out
}

func (s *memStore) miembroDe(docID int64) entity.LoteDocumento {
	var ultimo entity.LoteDocumento
	for _, m := range s.miembros {
		if m.DocumentoID == docID && m.ID > ultimo.ID {
			ultimo = m
		}
	}
	return ultimo
}

// sembrarLoteEnviado deja los documentos en SENT dentro de un lote SENT con protocolo.
func (s *memStore) sembrarLoteEnviado(protocolo string, docs ...*entity.Documento) int64 {
	l := entity.Lote{ID: s.id(), TipoDocumento: 1, Estado: entity.EstadoEnviado, NumeroLoteSIFEN: protocolo}
	s.lotes[l.ID] = l
	for _, d := range docs {
		loteID := l.ID
		d.EstadoActual = entity.EstadoEnviado
		d.LoteID = &loteID
		s.docs[d.ID] = *d
		m := entity.LoteDocumento{ID: s.id(), LoteID: l.ID, DocumentoID: d.ID, CDC: d.CDC, EstadoResultado: entity.EstadoEnviado}
		s.miembros[m.ID] = m
	}
	return l.ID
}
