// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pildhora/go-adherence-backend/internal/config"
	"github.com/pildhora/go-adherence-backend/internal/domain"
	"github.com/pildhora/go-adherence-backend/internal/http/handlers"
	"github.com/pildhora/go-adherence-backend/internal/http/middleware"
	"github.com/pildhora/go-adherence-backend/internal/repo"
	"github.com/pildhora/go-adherence-backend/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// medRepoShim adapts the repository free functions to the services
// MedicationRepo and MedicationReader interfaces. This keeps services
// decoupled from the concrete repo package while reusing existing functions.
type medRepoShim struct{}

// CreateMedication proxies repo.CreateMedication.
func (medRepoShim) CreateMedication(ctx context.Context, db *gorm.DB, m *domain.Medication) (*domain.Medication, error) {
	return repo.CreateMedication(ctx, db, m)
}

// ListMedications proxies repo.ListMedications.
func (medRepoShim) ListMedications(ctx context.Context, db *gorm.DB, patientID string) ([]domain.Medication, error) {
	return repo.ListMedications(ctx, db, patientID)
}

// GetMedication proxies repo.GetMedication.
func (medRepoShim) GetMedication(ctx context.Context, db *gorm.DB, id, patientID string) (*domain.Medication, error) {
	return repo.GetMedication(ctx, db, id, patientID)
}

// UpdateMedication proxies repo.UpdateMedication.
func (medRepoShim) UpdateMedication(ctx context.Context, db *gorm.DB, m *domain.Medication) error {
	return repo.UpdateMedication(ctx, db, m)
}

// DeleteMedication proxies repo.DeleteMedication.
func (medRepoShim) DeleteMedication(ctx context.Context, db *gorm.DB, id, patientID string) error {
	return repo.DeleteMedication(ctx, db, id, patientID)
}

// DecrementStock proxies repo.DecrementStock.
func (medRepoShim) DecrementStock(ctx context.Context, db *gorm.DB, id string) (*domain.Medication, error) {
	return repo.DecrementStock(ctx, db, id)
}

// intakeRepoShim adapts the repository free functions to services.IntakeRepo.
type intakeRepoShim struct{}

func (intakeRepoShim) ListIntakeHistory(ctx context.Context, db *gorm.DB, patientID string) ([]domain.IntakeRecord, error) {
	return repo.ListIntakeHistory(ctx, db, patientID)
}

func (intakeRepoShim) ListIntakeDay(ctx context.Context, db *gorm.DB, patientID string, dayStart, dayEnd time.Time) ([]domain.IntakeRecord, error) {
	return repo.ListIntakeDay(ctx, db, patientID, dayStart, dayEnd)
}

func (intakeRepoShim) GetIntakeRecord(ctx context.Context, db *gorm.DB, id string) (*domain.IntakeRecord, error) {
	return repo.GetIntakeRecord(ctx, db, id)
}

func (intakeRepoShim) ListPendingByCompartment(ctx context.Context, db *gorm.DB, patientID string, compartment int) ([]domain.IntakeRecord, error) {
	return repo.ListPendingByCompartment(ctx, db, patientID, compartment)
}

func (intakeRepoShim) ListPendingBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.IntakeRecord, error) {
	return repo.ListPendingBefore(ctx, db, cutoff)
}

func (intakeRepoShim) ReplaceIntakeRecords(ctx context.Context, db *gorm.DB, drop []string, recs []domain.IntakeRecord) error {
	return repo.ReplaceIntakeRecords(ctx, db, drop, recs)
}

func (intakeRepoShim) UpdateIntakeStatus(ctx context.Context, db *gorm.DB, id string, status domain.IntakeStatus, method domain.IntakeMethod) error {
	return repo.UpdateIntakeStatus(ctx, db, id, status, method)
}

// taskRepoShim adapts the repository free functions to services.TaskRepo.
type taskRepoShim struct{}

func (taskRepoShim) CreateTask(ctx context.Context, db *gorm.DB, t *domain.Task) (*domain.Task, error) {
	return repo.CreateTask(ctx, db, t)
}

func (taskRepoShim) ListTasks(ctx context.Context, db *gorm.DB, caregiverID string) ([]domain.Task, error) {
	return repo.ListTasks(ctx, db, caregiverID)
}

func (taskRepoShim) GetTask(ctx context.Context, db *gorm.DB, id, caregiverID string) (*domain.Task, error) {
	return repo.GetTask(ctx, db, id, caregiverID)
}

func (taskRepoShim) UpdateTask(ctx context.Context, db *gorm.DB, t *domain.Task) error {
	return repo.UpdateTask(ctx, db, t)
}

func (taskRepoShim) DeleteTask(ctx context.Context, db *gorm.DB, id, caregiverID string) error {
	return repo.DeleteTask(ctx, db, id, caregiverID)
}

// notifyRepoShim adapts the repository free functions to
// services.NotificationRepo.
type notifyRepoShim struct{}

func (notifyRepoShim) InsertNotification(ctx context.Context, db *gorm.DB, message string, at time.Time) (*domain.Notification, error) {
	return repo.InsertNotification(ctx, db, message, at)
}

func (notifyRepoShim) ListNotifications(ctx context.Context, db *gorm.DB) ([]domain.Notification, error) {
	return repo.ListNotifications(ctx, db)
}

func (notifyRepoShim) MarkNotificationsRead(ctx context.Context, db *gorm.DB) error {
	return repo.MarkNotificationsRead(ctx, db)
}

func (notifyRepoShim) GetPreferences(ctx context.Context, db *gorm.DB, patientID string) (*domain.NotificationPreferences, error) {
	return repo.GetPreferences(ctx, db, patientID)
}

func (notifyRepoShim) SavePreferences(ctx context.Context, db *gorm.DB, p *domain.NotificationPreferences) error {
	return repo.SavePreferences(ctx, db, p)
}

// Services bundles the application services built over one DB handle. The
// same instances serve both the HTTP layer and the background workers (device
// bridge, missed-dose sweep), so in-memory state such as the ledger mutex is
// shared by every caller.
type Services struct {
	Medications *services.MedicationService
	Ledger      *services.LedgerService
	Tasks       *services.TaskService
	Notify      *services.NotifyService
}

// NewServices performs the dependency injection: services ← repo/db. The
// notification emitter doubles as the ledger's transition sink.
func NewServices(db *gorm.DB, cfg config.Config, log zerolog.Logger) *Services {
	notify := services.NewNotifyService(db, notifyRepoShim{}, log, cfg.Device.BatteryWarnLevel)
	ledger := services.NewLedgerService(db, intakeRepoShim{}, medRepoShim{}, notify)
	meds := services.NewMedicationService(db, medRepoShim{}, ledger, cfg.Device.Compartments)
	tasks := services.NewTaskService(db, taskRepoShim{})
	return &Services{
		Medications: meds,
		Ledger:      ledger,
		Tasks:       tasks,
		Notify:      notify,
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per patient/IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, svcs *Services, dev handlers.DeviceController, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. The demo identity headers carry
	// patient and caregiver ids and must never land in access logs.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-Patient-ID",
			"X-Caregiver-ID",
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per patient/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByPatientOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Patient-ID", "X-Caregiver-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Patient-ID", "X-Caregiver-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(svcs.Medications, svcs.Ledger, svcs.Tasks, svcs.Notify, dev)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Medication plan
		api.POST("/medications", h.CreateMedication)
		api.GET("/medications", h.ListMedications)
		api.GET("/medications/:id", h.GetMedication)
		api.PUT("/medications/:id", h.UpdateMedication)
		api.DELETE("/medications/:id", h.DeleteMedication)

		// Intake ledger
		api.GET("/intakes", h.ListIntakes)
		api.PUT("/intakes/:id/status", h.UpdateIntakeStatus)

		// Caregiver tasks
		api.POST("/tasks", h.CreateTask)
		api.GET("/tasks", h.ListTasks)
		api.PUT("/tasks/:id", h.UpdateTask)
		api.DELETE("/tasks/:id", h.DeleteTask)

		// Notification feed and preferences
		api.GET("/notifications", h.ListNotifications)
		api.PUT("/notifications/read", h.MarkNotificationsRead)
		api.GET("/notifications/preferences", h.GetPreferences)
		api.PUT("/notifications/preferences", h.UpdatePreferences)

		// Pillbox device
		api.GET("/device", h.GetDeviceState)
		api.GET("/device/scan", h.ScanDevices)
		api.POST("/device/connect", h.ConnectDevice)
		api.POST("/device/disconnect", h.DisconnectDevice)
		api.POST("/device/compartments/:id/open", h.OpenCompartment)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
