package transmision

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jhoicas/sifen-transmisor/internal/domain"
	"github.com/jhoicas/sifen-transmisor/internal/domain/entity"
	"github.com/jhoicas/sifen-transmisor/internal/domain/repository"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-transmisor/pkg/sifen"
)

// ── Store en memoria ─────────────────────────────────────────────────────────

// memStore datos compartidos por los repositorios en memoria; implementa TxRunner.
// Guarda valores, no punteros, para que una transacción fallida pueda restaurar la foto previa.
type memStore struct {
	docs      map[int64]entity.Documento
	lotes     map[int64]entity.Lote
	miembros  map[int64]entity.LoteDocumento
	eventos   map[int64]entity.Evento
	historial []entity.EstadoHistorial
	consultas []entity.ConsultaLote

	nextID int64
	// fallar hace que el método con ese nombre devuelva el error,
	// después de dejar pasar saltar[método] llamadas.
	fallar map[string]error
	saltar map[string]int
	txs    int
}

var (
	_ repository.DocumentoRepository = docsRepo{}
	_ repository.LoteRepository      = lotesRepo{}
	_ repository.EventoRepository    = eventosRepo{}
	_ TxRunner                       = (*memStore)(nil)
)

type (
	docsRepo    struct{ s *memStore }
	lotesRepo   struct{ s *memStore }
	eventosRepo struct{ s *memStore }
)

func (s *memStore) docRepo() docsRepo       { return docsRepo{s} }
func (s *memStore) loteRepo() lotesRepo     { return lotesRepo{s} }
func (s *memStore) eventoRepo() eventosRepo { return eventosRepo{s} }

func newMemStore() *memStore {
	return &memStore{
		docs:     map[int64]entity.Documento{},
		lotes:    map[int64]entity.Lote{},
		miembros: map[int64]entity.LoteDocumento{},
		eventos:  map[int64]entity.Evento{},
		fallar:   map[string]error{},
		saltar:   map[string]int{},
		nextID:   100,
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) falla(metodo string) error {
	err, ok := s.fallar[metodo]
	if !ok {
		return nil
	}
	if s.saltar[metodo] > 0 {
		s.saltar[metodo]--
		return nil
	}
	return err
}

func (s *memStore) addDoc(d *entity.Documento) { s.docs[d.ID] = *d }

func (s *memStore) addEvento(e *entity.Evento) { s.eventos[e.ID] = *e }

func (s *memStore) doc(id int64) entity.Documento { return s.docs[id] }

func (s *memStore) lotesOrdenados() []entity.Lote {
	ids := slices.Sorted(maps.Keys(s.lotes))
	out := make([]entity.Lote, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.lotes[id])
	}
	return out
}

func (s *memStore) historialDe(docID int64) []entity.EstadoHistorial {
	var out []entity.EstadoHistorial
	for _, h := range s.historial {
		if h.DocumentoID == docID {
			out = append(out, h)
		}
	}
	return out
}

// RunLote ejecuta fn y restaura el estado previo si devuelve error.
func (s *memStore) RunLote(_ context.Context, fn func(repository.LoteRepository, repository.DocumentoRepository) error) error {
	s.txs++
	foto := memStore{
		docs:      maps.Clone(s.docs),
		lotes:     maps.Clone(s.lotes),
		miembros:  maps.Clone(s.miembros),
		eventos:   maps.Clone(s.eventos),
		historial: slices.Clone(s.historial),
		consultas: slices.Clone(s.consultas),
	}
	if err := fn(lotesRepo{s}, docsRepo{s}); err != nil {
		s.docs, s.lotes, s.miembros, s.eventos = foto.docs, foto.lotes, foto.miembros, foto.eventos
		s.historial, s.consultas = foto.historial, foto.consultas
		return err
	}
	return nil
}

// ── DocumentoRepository ──────────────────────────────────────────────────────

func (r docsRepo) ClaimPending(_ context.Context, limit int) ([]*entity.Documento, error) {
	if err := r.s.falla("ClaimPending"); err != nil {
		return nil, err
	}
	var out []*entity.Documento
	for _, id := range slices.Sorted(maps.Keys(r.s.docs)) {
		d := r.s.docs[id]
		if d.EstadoActual != entity.EstadoPendienteEnvio {
			continue
		}
		if len(out) == limit {
			break
		}
		d.EstadoActual = entity.EstadoEnLote
		r.s.docs[id] = d
		cp := d
		out = append(out, &cp)
	}
	return out, nil
}

func (r docsRepo) GetByID(_ context.Context, id int64) (*entity.Documento, error) {
	d, ok := r.s.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r docsRepo) GetByCDC(_ context.Context, cdc string) (*entity.Documento, error) {
	for _, d := range r.s.docs {
		if d.CDC == cdc {
			return &d, nil
		}
	}
	return nil, nil
}

func (r docsRepo) MarcarFirmado(_ context.Context, id int64, fecha time.Time, xml []byte, qrURL string) error {
	if err := r.s.falla("MarcarFirmado"); err != nil {
		return err
	}
	d, ok := r.s.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.FechaFirma, d.XMLFirmado, d.QRURL = &fecha, xml, qrURL
	r.s.docs[id] = d
	return nil
}

func (r docsRepo) ActualizarEstado(_ context.Context, id int64, from, to string) error {
	if err := r.s.falla("ActualizarEstado"); err != nil {
		return err
	}
	d, ok := r.s.docs[id]
	if !ok || d.EstadoActual != from || !entity.CanTransition(from, to) {
		return fmt.Errorf("%w: documento %d %s → %s", domain.ErrTransicionInvalida, id, from, to)
	}
	d.EstadoActual = to
	r.s.docs[id] = d
	return nil
}

func (r docsRepo) AsignarLote(_ context.Context, id, loteID int64) error {
	d := r.s.docs[id]
	d.LoteID = &loteID
	r.s.docs[id] = d
	return nil
}

func (r docsRepo) RegistrarFalloEnvio(_ context.Context, id int64, maxIntentos int) (string, error) {
	d, ok := r.s.docs[id]
	if !ok || d.EstadoActual != entity.EstadoEnLote {
		return "", domain.ErrTransicionInvalida
	}
	d.IntentosEnvio++
	d.EstadoActual = entity.EstadoPendienteEnvio
	if d.IntentosEnvio >= maxIntentos {
		d.EstadoActual = entity.EstadoErrorEnvio
	}
	r.s.docs[id] = d
	return d.EstadoActual, nil
}

func (r docsRepo) RegistrarHistorial(_ context.Context, h *entity.EstadoHistorial) error {
	h.ID = r.s.id()
	r.s.historial = append(r.s.historial, *h)
	return nil
}

func (r docsRepo) ListHistorial(_ context.Context, documentoID int64) ([]*entity.EstadoHistorial, error) {
	var out []*entity.EstadoHistorial
	for _, h := range r.s.historialDe(documentoID) {
		out = append(out, &h)
	}
	return out, nil
}

func (r docsRepo) ListByLote(_ context.Context, loteID int64) ([]*entity.Documento, error) {
	var out []*entity.Documento
	for _, id := range slices.Sorted(maps.Keys(r.s.docs)) {
		d := r.s.docs[id]
		if d.LoteID != nil && *d.LoteID == loteID {
			out = append(out, &d)
		}
	}
	return out, nil
}

// ── LoteRepository ───────────────────────────────────────────────────────────

func (r lotesRepo) Create(_ context.Context, l *entity.Lote) error {
	if err := r.s.falla("Create"); err != nil {
		return err
	}
	l.ID = r.s.id()
	if l.Estado == "" {
		l.Estado = entity.EstadoPendienteEnvio
	}
	r.s.lotes[l.ID] = *l
	return nil
}

func (r lotesRepo) lote(id int64) (*entity.Lote, error) {
	l, ok := r.s.lotes[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r lotesRepo) GetByID(_ context.Context, id int64) (*entity.Lote, error) {
	return r.lote(id)
}

func (r lotesRepo) LockForUpdate(_ context.Context, id int64) (*entity.Lote, error) {
	return r.lote(id)
}

func (r lotesRepo) MarkSent(_ context.Context, id int64, protocolo string, req, resp []byte, fecha time.Time) error {
	l, ok := r.s.lotes[id]
	if !ok || l.Estado != entity.EstadoPendienteEnvio {
		return domain.ErrTransicionInvalida
	}
	l.Estado, l.NumeroLoteSIFEN, l.XMLRequest, l.XMLResponse, l.FechaEnvio = entity.EstadoEnviado, protocolo, req, resp, &fecha
	r.s.lotes[id] = l
	return nil
}

func (r lotesRepo) UpdateEstado(_ context.Context, id int64, from, to string, req, resp []byte) error {
	l, ok := r.s.lotes[id]
	if !ok || l.Estado != from || !entity.CanTransitionLote(from, to) {
		return fmt.Errorf("%w: lote %d %s → %s", domain.ErrTransicionInvalida, id, from, to)
	}
	l.Estado = to
	if req != nil {
		l.XMLRequest = req
	}
	if resp != nil {
		l.XMLResponse = resp
	}
	r.s.lotes[id] = l
	return nil
}

func (r lotesRepo) RegistrarIntentoConsulta(_ context.Context, id int64, fecha time.Time) error {
	l, ok := r.s.lotes[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.IntentosConsulta++
	l.FechaUltimaConsulta = &fecha
	r.s.lotes[id] = l
	for docID, d := range r.s.docs {
		if d.LoteID != nil && *d.LoteID == id {
			d.IntentosConsulta++
			d.FechaUltimaConsulta = &fecha
			r.s.docs[docID] = d
		}
	}
	return nil
}

func (r lotesRepo) ListPorConsultar(_ context.Context, maxConsultas, limit int) ([]*entity.Lote, error) {
	var out []*entity.Lote
	for _, l := range r.s.lotesOrdenados() {
		if l.Estado == entity.EstadoEnviado && l.NumeroLoteSIFEN != "" && l.IntentosConsulta < maxConsultas && len(out) < limit {
			out = append(out, &l)
		}
	}
	return out, nil
}

func (r lotesRepo) RegistrarConsulta(_ context.Context, c *entity.ConsultaLote) error {
	c.ID = r.s.id()
	r.s.consultas = append(r.s.consultas, *c)
	return nil
}

func (r lotesRepo) AgregarMiembro(_ context.Context, m *entity.LoteDocumento) error {
	m.ID = r.s.id()
	r.s.miembros[m.ID] = *m
	return nil
}

func (r lotesRepo) ListMiembros(_ context.Context, loteID int64) ([]*entity.LoteDocumento, error) {
	var out []*entity.LoteDocumento
	for _, id := range slices.Sorted(maps.Keys(r.s.miembros)) {
		m := r.s.miembros[id]
		if m.LoteID == loteID {
			out = append(out, &m)
		}
	}
	return out, nil
}

func (r lotesRepo) ActualizarMiembro(_ context.Context, m *entity.LoteDocumento) error {
	if err := r.s.falla("ActualizarMiembro"); err != nil {
		return err
	}
	if _, ok := r.s.miembros[m.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.miembros[m.ID] = *m
	return nil
}

// ── EventoRepository ─────────────────────────────────────────────────────────

func (r eventosRepo) ClaimPending(_ context.Context, limit int) ([]*entity.Evento, error) {
	var out []*entity.Evento
	for _, id := range slices.Sorted(maps.Keys(r.s.eventos)) {
		e := r.s.eventos[id]
		if e.Estado != entity.EstadoPendienteEnvio || len(out) == limit {
			continue
		}
		e.Estado = entity.EstadoEnviado
		r.s.eventos[id] = e
		cp := e
		out = append(out, &cp)
	}
	return out, nil
}

func (r eventosRepo) GetByID(_ context.Context, id int64) (*entity.Evento, error) {
	e, ok := r.s.eventos[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r eventosRepo) SetFechaFirma(_ context.Context, id int64, fecha time.Time) error {
	e := r.s.eventos[id]
	e.FechaFirma = &fecha
	r.s.eventos[id] = e
	return nil
}

func (r eventosRepo) GuardarRespuesta(_ context.Context, ev *entity.Evento) error {
	e, ok := r.s.eventos[ev.ID]
	if !ok || e.Estado != entity.EstadoEnviado || !entity.CanTransitionEvento(e.Estado, ev.Estado) {
		return domain.ErrTransicionInvalida
	}
	r.s.eventos[ev.ID] = *ev
	return nil
}

func (r eventosRepo) ActualizarEstado(_ context.Context, id int64, from, to string) error {
	e, ok := r.s.eventos[id]
	if !ok || e.Estado != from || !entity.CanTransitionEvento(from, to) {
		return domain.ErrTransicionInvalida
	}
	e.Estado = to
	r.s.eventos[id] = e
	return nil
}

// ── Transporte ───────────────────────────────────────────────────────────────

// fakeTransport responde con el guion de cada operación; una operación sin guion falla.
type fakeTransport struct {
	enviarLote    func(zip []byte) (string, error)
	consultarLote func(protocolo string) (string, error)
	enviarDE      func(rde []byte) (string, error)
	consultarDE   func(cdc string) (string, error)
	enviarEvento  func(ev []byte) (string, error)
	consultarRUC  func(ruc string) (string, error)

	llamadas map[string]int
}

var _ Transport = (*fakeTransport)(nil)

var errSinGuion = errors.New("llamada no esperada")

func newFakeTransport() *fakeTransport {
	return &fakeTransport{llamadas: map[string]int{}}
}

func (f *fakeTransport) total() int {
	n := 0
	for _, c := range f.llamadas {
		n += c
	}
	return n
}

func responder(op string, f *fakeTransport, req []byte, fn func() (string, error)) (*infrasifen.Exchange, error) {
	f.llamadas[op]++
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", errSinGuion, op)
	}
	body, err := fn()
	if err != nil {
		return nil, err
	}
	return &infrasifen.Exchange{Request: req, Response: []byte(body)}, nil
}

func (f *fakeTransport) EnviarLote(_ context.Context, _ string, zip []byte) (*infrasifen.Exchange, error) {
	var fn func() (string, error)
	if f.enviarLote != nil {
		fn = func() (string, error) { return f.enviarLote(zip) }
	}
	return responder(infrasifen.OpRecibeLote, f, []byte("<rEnvioLote/>"), fn)
}

func (f *fakeTransport) ConsultarLote(_ context.Context, _, protocolo string) (*infrasifen.Exchange, error) {
	var fn func() (string, error)
	if f.consultarLote != nil {
		fn = func() (string, error) { return f.consultarLote(protocolo) }
	}
	return responder(infrasifen.OpConsultaLote, f, []byte("<rEnviConsLoteDe/>"), fn)
}

func (f *fakeTransport) EnviarDE(_ context.Context, _ string, rde []byte) (*infrasifen.Exchange, error) {
	var fn func() (string, error)
	if f.enviarDE != nil {
		fn = func() (string, error) { return f.enviarDE(rde) }
	}
	return responder(infrasifen.OpRecibe, f, []byte("<rEnviDe/>"), fn)
}

func (f *fakeTransport) ConsultarDE(_ context.Context, _, cdc string) (*infrasifen.Exchange, error) {
	var fn func() (string, error)
	if f.consultarDE != nil {
		fn = func() (string, error) { return f.consultarDE(cdc) }
	}
	return responder(infrasifen.OpConsulta, f, []byte("<rEnviConsDeRequest/>"), fn)
}

func (f *fakeTransport) EnviarEvento(_ context.Context, _ string, ev []byte) (*infrasifen.Exchange, error) {
	var fn func() (string, error)
	if f.enviarEvento != nil {
		fn = func() (string, error) { return f.enviarEvento(ev) }
	}
	return responder(infrasifen.OpEvento, f, []byte("<rEnviEventoDe/>"), fn)
}

func (f *fakeTransport) ConsultarRUC(_ context.Context, _, ruc string) (*infrasifen.Exchange, error) {
	var fn func() (string, error)
	if f.consultarRUC != nil {
		fn = func() (string, error) { return f.consultarRUC(ruc) }
	}
	return responder(infrasifen.OpConsultaRUC, f, []byte("<rEnviConsRUC/>"), fn)
}

// ── Firma ────────────────────────────────────────────────────────────────────

// stubSigner devuelve el XML sin tocar y un digest fijo.
type stubSigner struct {
	err    error
	firmas int
}

var _ sifen.Signer = (*stubSigner)(nil)

func (s *stubSigner) Sign(xml []byte, _ tls.Certificate) (*sifen.SignResult, error) {
	s.firmas++
	if s.err != nil {
		return nil, s.err
	}
	return &sifen.SignResult{XML: xml, DigestValue: "ZGlnZXN0ZGVwcnVlYmE="}, nil
}
