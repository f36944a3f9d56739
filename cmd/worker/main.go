package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/sifen-transmisor/internal/application/transmision"
	"github.com/jhoicas/sifen-transmisor/internal/infrastructure/postgres"
	infrasifen "github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen"
	"github.com/jhoicas/sifen-transmisor/internal/infrastructure/sifen/signer"
	httpRouter "github.com/jhoicas/sifen-transmisor/internal/interfaces/http"
	"github.com/jhoicas/sifen-transmisor/pkg/config"
	"github.com/jhoicas/sifen-transmisor/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "ejecuta un solo ciclo de documentos y eventos y termina")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuración inválida")
	}
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Bool("once", *once).
		Msg("iniciando transmisor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	cert, err := signer.Load(cfg.SIFEN.P12Path, cfg.SIFEN.P12Password, cfg.SIFEN.CertPath, cfg.SIFEN.KeyPath, cfg.SIFEN.KeyPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("certificado del contribuyente")
	}
	httpClient, err := infrasifen.NewHTTPSClient(infrasifen.TransportConfig{
		Certificate: cert,
		Timeout:     cfg.SIFEN.Timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("cliente HTTPS hacia SIFEN")
	}
	soapClient := infrasifen.NewSOAPClient(httpClient, cfg.SIFEN, log.Component("soap"))

	docRepo := postgres.NewDocumentoRepository(pool)
	loteRepo := postgres.NewLoteRepository(pool)
	eventoRepo := postgres.NewEventoRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	tcfg := transmision.ConfigFrom(cfg)
	signerSvc := signer.NewXMLDSigService()
	preparador := transmision.NewPreparador(infrasifen.NewXMLBuilderService(log.Component("xml_builder")), signerSvc, cert, tcfg)
	reconciler := transmision.NewReconciler(txRunner, log.Zerolog())
	poller := transmision.NewLotePoller(loteRepo, soapClient, reconciler, log.Zerolog())
	docPipeline := transmision.NewDocumentPipeline(docRepo, loteRepo, txRunner, preparador, soapClient, poller, tcfg, log.Zerolog())
	eventPipeline := transmision.NewEventPipeline(eventoRepo, infrasifen.NewEventBuilderService(), signerSvc, cert, soapClient, tcfg, log.Zerolog())
	scheduler := transmision.NewScheduler(docPipeline, eventPipeline, cfg.Worker.DocInterval, cfg.Worker.EventInterval, log.Zerolog())

	if *once {
		if err := scheduler.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("ciclo único con errores")
			os.Exit(1)
		}
		log.Info().Msg("ciclo único completado")
		return
	}

	var app *fiber.App
	if cfg.HTTP.Enabled {
		consultas := transmision.NewConsultaService(docRepo, loteRepo, txRunner, soapClient, preparador, poller, tcfg, log.Zerolog())
		app = newOpsServer(cfg, consultas)
		go func() {
			if err := app.Listen(cfg.HTTP.Addr()); err != nil {
				log.Error().Err(err).Msg("servidor HTTP finalizado")
			}
		}()
	}

	scheduler.Run(ctx)
	log.Info().Msg("señal de apagado recibida, cerrando...")

	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("apagado del servidor")
		}
	}

	log.Info().Msg("transmisor detenido")
}

// newOpsServer arma la API de operación sobre el servicio de consultas.
func newOpsServer(cfg *config.Config, consultas *transmision.ConsultaService) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.SIFEN.Timeout + 10*time.Second, // el envío síncrono espera a SIFEN
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "SIFEN Transmisor - API de operación",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		ServiceName: cfg.App.Name,
		Documentos:  consultas,
		Lotes:       consultas,
		Consultas:   consultas,
		JWTSecret:   cfg.JWT.Secret,
		JWTIssuer:   cfg.JWT.Issuer,
	})
	return app
}
