package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"lms_core/backend/internal/exam"
	"lms_core/backend/internal/gateway/handlers"
	"lms_core/backend/internal/gateway/util"
	"lms_core/backend/internal/marks"
	"lms_core/backend/internal/policy"
	"lms_core/backend/internal/shared"
	"lms_core/backend/internal/submission"
)

// Services holds the core services the router dispatches to.
// This struct is built in main.go.
type Services struct {
	Marks       *marks.MarksService
	Exams       *exam.ExamService
	Submissions *submission.SubmissionService

	// Ready reports whether the database is reachable (GET /readyz)
	Ready func(ctx context.Context) error
}

// SetupRoutes configures the Chi router, middleware, and route handlers.
func SetupRoutes(svc *Services, config *shared.ServiceConfig) *chi.Mux {
	r := chi.NewRouter()

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// 1. Global Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(timeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.CORS.AllowedOrigins,
		AllowedMethods:   config.CORS.AllowedMethods,
		AllowedHeaders:   config.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           config.CORS.MaxAge,
	}))

	// 2. Initialize Handlers
	healthHandler := &handlers.HealthHandler{ServiceName: config.ServiceName, Ready: svc.Ready}
	marksHandler := &handlers.MarksHandler{Marks: svc.Marks}
	examHandler := &handlers.ExamHandler{Exams: svc.Exams}
	submissionHandler := &handlers.SubmissionHandler{Submissions: svc.Submissions}

	// 3. Define Routes
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(config.Security.JWTSecret))

		// Marks
		r.Route("/score-records/{kind}", func(r chi.Router) {
			r.Post("/", marksHandler.CreateRecord)
			r.Get("/", marksHandler.ListRecords)
			r.Get("/{id}", marksHandler.GetRecord)
			r.Put("/{id}", marksHandler.UpdateRecord)
			r.Delete("/{id}", marksHandler.DeleteRecord)
		})
		r.Get("/ledger", marksHandler.GetLedger)
		r.Post("/ledger/{student}/rebuild", marksHandler.RebuildLedger)

		// Exam authoring
		r.Route("/exams", func(r chi.Router) {
			r.Post("/", examHandler.CreateExam)
			r.Get("/", examHandler.ListExams)
			r.Get("/{id}", examHandler.GetExam)
			r.Put("/{id}/status", examHandler.UpdateExamStatus)
			r.Post("/{id}/sections", examHandler.CreateSection)
		})
		r.Post("/sections/{id}/questions", examHandler.CreateQuestion)

		// Submissions
		r.Route("/submissions", func(r chi.Router) {
			r.Post("/", submissionHandler.CreateSubmission)
			r.Get("/", submissionHandler.ListSubmissions)
			r.Get("/{id}", submissionHandler.GetSubmission)
			r.Put("/{id}", submissionHandler.UpdateSubmission)
			r.Post("/{id}/grade", submissionHandler.GradeSubmission)
			r.Post("/{id}/autograde", submissionHandler.AutoGrade)
		})
	})

	return r
}

// AuthMiddleware verifies the bearer token and places the caller in the
// request context as a policy.Principal.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := util.ExtractToken(r)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, util.ErrUnauthorized, "Authorization token required")
				return
			}

			p, err := ParseToken(secret, tokenStr)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, util.ErrUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(policy.WithPrincipal(r.Context(), p)))
		})
	}
}
