package entity

// Estados del documento electrónico en el ciclo de transmisión.
const (
	EstadoPendienteEnvio = "PENDING_SEND" // Cargado, esperando ser tomado por un ciclo
	EstadoEnLote         = "IN_BATCH"     // Reclamado por un ciclo, en armado/envío
	EstadoEnviado        = "SENT"         // Lote recibido por SIFEN (0300), resultado pendiente
	EstadoAprobado       = "APPROVED"
	EstadoRechazado      = "REJECTED"
	EstadoErrorXML       = "ERROR_XML"  // Falló estructura, validación o firma
	EstadoErrorEnvio     = "ERROR_SEND" // Agotó reintentos de transporte
)

// Estados exclusivos de lotes y eventos.
const (
	EstadoProcesado = "PROCESSED"
	EstadoError     = "ERROR"
)

var transicionesDocumento = map[string][]string{
	EstadoPendienteEnvio: {EstadoEnLote, EstadoErrorXML},
	EstadoEnLote:         {EstadoEnviado, EstadoPendienteEnvio, EstadoErrorXML, EstadoErrorEnvio},
	EstadoEnviado:        {EstadoAprobado, EstadoRechazado, EstadoErrorEnvio},
}

// CanTransition indica si un documento puede pasar de from a to.
// IN_BATCH → PENDING_SEND es la devolución a la cola tras un fallo de transporte;
// SENT → ERROR_SEND cierra un documento cuyo lote concluyó o expiró sin resultado individual.
func CanTransition(from, to string) bool {
	for _, t := range transicionesDocumento[from] {
		if t == to {
			return true
		}
	}
	return false
}

// EsTerminal indica que el documento ya no será procesado por el worker.
func EsTerminal(estado string) bool {
	switch estado {
	case EstadoAprobado, EstadoRechazado, EstadoErrorXML, EstadoErrorEnvio:
		return true
	}
	return false
}

var transicionesEvento = map[string][]string{
	EstadoPendienteEnvio: {EstadoEnviado, EstadoError},
	EstadoEnviado:        {EstadoProcesado, EstadoError},
}

// CanTransitionEvento valida transiciones del ciclo de vida de un evento.
func CanTransitionEvento(from, to string) bool {
	for _, t := range transicionesEvento[from] {
		if t == to {
			return true
		}
	}
	return false
}

var transicionesLote = map[string][]string{
	EstadoPendienteEnvio: {EstadoEnviado, EstadoErrorXML, EstadoErrorEnvio},
	EstadoEnviado:        {EstadoProcesado, EstadoError},
}

// CanTransitionLote valida transiciones del ciclo de vida de un lote.
func CanTransitionLote(from, to string) bool {
	for _, t := range transicionesLote[from] {
		if t == to {
			return true
		}
	}
	return false
}
