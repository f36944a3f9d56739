package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/sifen-transmisor/internal/application/dto"
	"github.com/jhoicas/sifen-transmisor/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	ServiceName string
	Documentos  DocumentoService
	Lotes       LoteService
	Consultas   ConsultaService
	JWTSecret   string
	JWTIssuer   string
}

// Router registra las rutas de la API de operación.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(dto.HealthResponse{Status: "ok", Service: deps.ServiceName})
	})

	// Todo lo demás requiere Bearer Token
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret, deps.JWTIssuer))
	lectura := RequireRole(jwt.RoleAdmin, jwt.RoleOperador)

	documentos := api.Group("/documentos", lectura)
	docHandler := NewDocumentoHandler(deps.Documentos)
	documentos.Get("/:id", docHandler.GetByID)
	documentos.Get("/:id/qr.png", docHandler.QR)
	// El envío síncrono salta la cola del worker: solo admin.
	documentos.Post("/:id/enviar", RequireRole(jwt.RoleAdmin), docHandler.Enviar)

	lotes := api.Group("/lotes", lectura)
	loteHandler := NewLoteHandler(deps.Lotes)
	lotes.Get("/:id", loteHandler.GetByID)
	lotes.Post("/:id/consultar", loteHandler.Consultar)

	consultas := api.Group("/consultas", lectura)
	consultaHandler := NewConsultaHandler(deps.Consultas)
	consultas.Get("/cdc/:cdc", consultaHandler.PorCDC)
	consultas.Get("/ruc/:ruc", consultaHandler.PorRUC)
}
