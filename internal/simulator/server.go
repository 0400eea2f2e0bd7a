package simulator

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/moogar0880/problems"
	"github.com/shintairiku/marketing-automation-sub003/pkg/models"
)

// Server is the simulator's HTTP API: the process endpoints the client's
// recovery path uses, plus minimal session endpoints for the chat flow.
type Server struct {
	store    *Store
	sessions *SessionStore
	logger   *slog.Logger
	validate *validator.Validate
	stepLag  time.Duration
}

func NewServer(store *Store, sessions *SessionStore, logger *slog.Logger, stepLag time.Duration) *Server {
	return &Server{
		store:    store,
		sessions: sessions,
		logger:   logger.With("module", "simulator.api"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		stepLag:  stepLag,
	}
}

func (s *Server) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Generation Simulator")
	})

	p := app.Group("/processes")
	p.Post("/", s.createProcess)
	p.Get("/:id", s.getProcess)
	p.Get("/:id/events", s.getEvents)
	p.Post("/:id/answers", s.postAnswers)
	p.Post("/:id/cancel", s.cancelProcess)

	sess := app.Group("/sessions")
	sess.Post("/", s.createSession)
	sess.Get("/", s.listSessions)
	sess.Post("/:id/activate", s.activateSession)
	sess.Post("/:id/close", s.closeSession)
	sess.Get("/:id/history", s.getHistory)
	sess.Post("/:id/messages", s.postMessage)
	sess.Get("/:id/runs/:runId", s.getRunState)

	return app
}

func (s *Server) Start(port int) error {
	return s.App().Listen(":" + strconv.Itoa(port))
}

// createProcess registers a process and starts its script immediately. The
// socket variant instead starts the script on the start_generation envelope.
func (s *Server) createProcess(c fiber.Ctx) error {
	var req models.StartGenerationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	proc := s.store.Create(req)

	autostart := c.Query("autostart", "true") != "false"
	if autostart {
		pipeline := NewPipeline(s.store, proc, nil, s.logger, s.stepLag)
		go pipeline.Run(context.Background())
	}

	return c.Status(fiber.StatusCreated).JSON(proc.Snapshot().Process)
}

func (s *Server) getProcess(c fiber.Ctx) error {
	proc, ok := s.store.Get(c.Params("id"))
	if !ok {
		return notFound(c, "process not found")
	}

	return c.JSON(proc.Snapshot())
}

func (s *Server) getEvents(c fiber.Ctx) error {
	proc, ok := s.store.Get(c.Params("id"))
	if !ok {
		return notFound(c, "process not found")
	}

	since, _ := strconv.ParseInt(c.Query("since", "0"), 10, 64)

	return c.JSON(proc.Events(since))
}

func (s *Server) postAnswers(c fiber.Ctx) error {
	proc, ok := s.store.Get(c.Params("id"))
	if !ok {
		return notFound(c, "process not found")
	}

	var body struct {
		Answers map[string]any `json:"answers"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	proc.Update(func(snap *models.ProcessSnapshot) {
		snap.Process.BlogContext.UserAnswers = body.Answers
	})

	select {
	case proc.Responses <- ClientInput{ResponseType: "answers", Payload: body.Answers}:
	default:
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) cancelProcess(c fiber.Ctx) error {
	proc, ok := s.store.Get(c.Params("id"))
	if !ok {
		return notFound(c, "process not found")
	}

	proc.Update(func(snap *models.ProcessSnapshot) {
		snap.Process.Status = models.ProcessStatusCancelled
	})
	s.store.NotifyChange(c.Context(), c.Params("id"))

	return c.SendStatus(fiber.StatusAccepted)
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}
