// Package httpserver exposes the review engine over JSON/HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/viant/revflow"
	"github.com/viant/revflow/internal/clock"
	"github.com/viant/revflow/model"
	"github.com/viant/revflow/model/types"
	"github.com/viant/revflow/service/dao"
)

// ActorHeader identifies the caller when no JWT secret is configured
const ActorHeader = "X-Actor-ID"

const maxBody = 1 << 20

type actorKey struct{}

type Server struct {
	svc    *revflow.Service
	secret []byte
	nowFn  clock.Func
}

// New creates a server. With a non-empty secret, mutating routes require an
// HS256 bearer token whose subject is the actor.
func New(svc *revflow.Service, jwtSecret string) *Server {
	ret := &Server{svc: svc, nowFn: clock.NowFunc}
	if jwtSecret != "" {
		ret.secret = []byte(jwtSecret)
	}
	return ret
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", s.handleListWorkflows)
		r.Get("/{id}", s.handleGetWorkflow)
		r.Post("/validate", s.handleValidateWorkflow)
		r.With(s.authMiddleware).Post("/", s.handleRegisterWorkflow)
	})

	r.Route("/reviewers", func(r chi.Router) {
		r.Get("/", s.handleListReviewers)
		r.Get("/{id}", s.handleGetReviewer)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Get("/{id}/summary", s.handleSummary)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/", s.handleCreateSession)
			r.Post("/{id}/assign", s.handleAssign)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Post("/{id}/rounds", s.handleBeginRound)
			r.Post("/{id}/rounds/{round}/feedback", s.handleSubmitFeedback)
			r.Post("/{id}/rounds/{round}/close", s.handleCloseRound)
			r.Post("/{id}/assignments/{reviewer}/accept", s.handleAccept)
			r.Post("/{id}/assignments/{reviewer}/decline", s.handleDecline)
			r.Patch("/{id}/feedback/{feedback}", s.handleFeedbackStatus)
		})
	})

	r.With(s.authMiddleware).Post("/escalations/tick", s.handleTick)
	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.actor(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "REVFLOW_UNAUTHORIZED", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func (s *Server) actor(r *http.Request) (string, error) {
	if len(s.secret) == 0 {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			return actor, nil
		}
		return "", errors.New("missing " + ActorHeader + " header")
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("bearer token required")
	}
	token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": s.nowFn().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Registry().List())
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var cfg *model.WorkflowConfig
	var err error
	if version := r.URL.Query().Get("version"); version != "" {
		number, convErr := strconv.Atoi(version)
		if convErr != nil {
			respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", "invalid version")
			return
		}
		cfg, err = s.svc.Registry().LookupVersion(id, number)
	} else {
		cfg, err = s.svc.Registry().Lookup(id)
	}
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	cfg := &model.WorkflowConfig{}
	if err := decodeJSON(w, r, cfg); err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.svc.Registry().Validate(cfg))
}

func (s *Server) handleRegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	cfg := &model.WorkflowConfig{}
	if err := decodeJSON(w, r, cfg); err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", err.Error())
		return
	}
	if err := s.svc.RegisterWorkflow(cfg); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleListReviewers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Directory().List())
}

func (s *Server) handleGetReviewer(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svc.Directory().Get(chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filters []*dao.Parameter
	for name, param := range map[string]string{
		"status":     dao.ParamStatus,
		"workflowId": dao.ParamWorkflowID,
		"reviewerId": dao.ParamReviewerID,
		"documentId": dao.ParamDocumentID,
	} {
		if values := query[name]; len(values) > 0 {
			filters = append(filters, dao.NewParameter(param, values...))
		}
	}
	sessions, err := s.svc.ListSessions(r.Context(), filters...)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	aSession, err := s.svc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, aSession)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	request := &revflow.CreateSessionRequest{}
	if err := decodeJSON(w, r, request); err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", err.Error())
		return
	}
	if request.DocumentID == "" || request.DocumentType == "" || request.WorkflowID == "" {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", "documentId, documentType and workflowId are required")
		return
	}
	created, err := s.svc.CreateSession(r.Context(), request, actorFrom(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	updated, err := s.svc.AssignReviewers(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	request := &reasonRequest{}
	if err := decodeOptionalJSON(w, r, request); err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", err.Error())
		return
	}
	updated, err := s.svc.CancelSession(r.Context(), chi.URLParam(r, "id"), request.Reason, actorFrom(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

type beginRoundRequest struct {
	ReviewerID string `json:"reviewerId"`
}

func (s *Server) handleBeginRound(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	request := &beginRoundRequest{}
	if err := decodeOptionalJSON(w, r, request); err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", err.Error())
		return
	}
	if request.ReviewerID == "" {
		request.ReviewerID = actor
	}
	round, err := s.svc.BeginRound(r.Context(), chi.URLParam(r, "id"), request.ReviewerID, actor)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, round)
}

func roundParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "round"))
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	number, err := roundParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", "invalid round number")
		return
	}
	var items []*model.ReviewFeedback
	if err = decodeJSON(w, r, &items); err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", err.Error())
		return
	}
	updated, err := s.svc.SubmitFeedback(r.Context(), chi.URLParam(r, "id"), number, items, actorFrom(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleCloseRound(w http.ResponseWriter, r *http.Request) {
	number, err := roundParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", "invalid round number")
		return
	}
	request := &revflow.CloseRoundRequest{}
	if err = decodeJSON(w, r, request); err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", err.Error())
		return
	}
	request.RoundNumber = number
	result, err := s.svc.CloseRound(r.Context(), chi.URLParam(r, "id"), request, actorFrom(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	updated, err := s.svc.AcceptAssignment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reviewer"), actorFrom(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	request := &reasonRequest{}
	if err := decodeOptionalJSON(w, r, request); err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", err.Error())
		return
	}
	updated, err := s.svc.DeclineAssignment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "reviewer"), request.Reason, actorFrom(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

type feedbackStatusRequest struct {
	Status model.FeedbackStatus `json:"status"`
}

func (s *Server) handleFeedbackStatus(w http.ResponseWriter, r *http.Request) {
	request := &feedbackStatusRequest{}
	if err := decodeJSON(w, r, request); err != nil {
		respondError(w, http.StatusBadRequest, "REVFLOW_BAD_REQUEST", err.Error())
		return
	}
	item, err := s.svc.UpdateFeedbackStatus(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "feedback"), request.Status, actorFrom(r.Context()))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	tick, err := s.svc.Tick(r.Context(), s.nowFn())
	if err != nil {
		respondFailure(w, err)
		return
	}
	snapshot := tick.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tickAt":     snapshot.TickAt,
		"sessions":   snapshot.Sessions,
		"reminders":  snapshot.Reminders,
		"actions":    snapshot.Actions,
		"suppressed": snapshot.Suppressed,
		"failed":     snapshot.Failed,
	})
}

// statusOf maps engine errors to HTTP statuses.
func statusOf(err error) (int, string) {
	var validation *types.ConfigValidationError
	switch {
	case errors.Is(err, types.ErrSessionNotFound), errors.Is(err, types.ErrWorkflowNotFound),
		errors.Is(err, types.ErrRoundNotFound), errors.Is(err, types.ErrFeedbackNotFound),
		errors.Is(err, types.ErrReviewerNotFound):
		return http.StatusNotFound, "REVFLOW_NOT_FOUND"
	case types.IsConflict(err):
		return http.StatusConflict, "REVFLOW_CONFLICT"
	case types.IsInvalidTransition(err), errors.Is(err, types.ErrRoundNotOpen):
		return http.StatusConflict, "REVFLOW_INVALID_TRANSITION"
	case types.IsNoEligibleReviewer(err):
		return http.StatusUnprocessableEntity, "REVFLOW_NO_ELIGIBLE_REVIEWER"
	case types.IsInvalidScore(err), errors.As(err, &validation),
		errors.Is(err, types.ErrDocumentTypeNotSupported), errors.Is(err, types.ErrReviewerNotAssigned):
		return http.StatusUnprocessableEntity, "REVFLOW_INVALID"
	case errors.Is(err, types.ErrActorRequired):
		return http.StatusUnauthorized, "REVFLOW_UNAUTHORIZED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "REVFLOW_TIMEOUT"
	}
	return http.StatusInternalServerError, "REVFLOW_INTERNAL"
}

func respondFailure(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	respondError(w, status, code, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(w, r, v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
