package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/coocood/freecache"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/formcoach/internal/feedback"
	"github.com/2beens/formcoach/internal/formcheck"
	"github.com/2beens/formcoach/internal/middleware"
	"github.com/2beens/formcoach/internal/source"
	"github.com/2beens/formcoach/internal/telemetry/metrics"
	"github.com/2beens/formcoach/internal/telemetry/tracing"
	"github.com/2beens/formcoach/internal/workouts"
	"github.com/2beens/formcoach/pkg"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=coach_test

const (
	megabyte = 1024 * 1024
	// finished summaries stay readable for a day
	summaryCacheExpireSec = 24 * 60 * 60
	maxFrameBodyBytes     = 256 * 1024
)

type workoutsRepo interface {
	Add(ctx context.Context, set workouts.Set) (*workouts.Set, error)
	List(ctx context.Context, params workouts.ListParams) (_ []workouts.Set, total int, err error)
}

type NewSessionRequest struct {
	ExerciseID string `json:"exerciseId"`
	Kilos      int    `json:"kilos"`
}

type SessionInfo struct {
	ID              string    `json:"id"`
	ExerciseID      string    `json:"exerciseId"`
	Kilos           int       `json:"kilos"`
	CreatedAt       time.Time `json:"createdAt"`
	FeedbackChannel string    `json:"feedbackChannel"`
}

type FinishResponse struct {
	Set     *workouts.Set     `json:"set,omitempty"`
	Summary formcheck.Summary `json:"summary"`
}

type ListResponse struct {
	Sets  []workouts.Set `json:"sets"`
	Total int            `json:"total"`
}

type Handler struct {
	registry  *Registry
	exercises []formcheck.Definition
	repo      workoutsRepo
	queue     feedbackQueue
	summaries *freecache.Cache
	now       func() time.Time
}

func NewHandler(
	registry *Registry,
	exercises []formcheck.Definition,
	repo workoutsRepo,
	queue feedbackQueue,
) *Handler {
	return &Handler{
		registry:  registry,
		exercises: exercises,
		repo:      repo,
		queue:     queue,
		summaries: freecache.NewCache(10 * megabyte),
		now:       time.Now,
	}
}

func (handler *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	metricsManager *metrics.Manager,
	framesPerMin int,
) {
	coachRouter := router.PathPrefix("/coach").Subrouter()
	coachRouter.HandleFunc("/exercises", handler.HandleExercises).Methods("GET", "OPTIONS").Name("list-exercises")
	coachRouter.HandleFunc("/sessions", handler.HandleNewSession).Methods("POST", "OPTIONS").Name("new-session")
	coachRouter.HandleFunc("/sessions/{id}", handler.HandleGetSession).Methods("GET", "OPTIONS").Name("get-session")
	coachRouter.HandleFunc("/sessions/{id}/finish", handler.HandleFinish).Methods("POST", "OPTIONS").Name("finish-session")
	coachRouter.HandleFunc("/sessions/{id}/summary", handler.HandleSummary).Methods("GET", "OPTIONS").Name("session-summary")
	coachRouter.HandleFunc("/workouts/page/{page}/size/{size}", handler.HandleListWorkouts).Methods("GET", "OPTIONS").Name("list-workouts")

	var frameHandler http.Handler = http.HandlerFunc(handler.HandleFrame)
	if rateLimiter != nil && framesPerMin > 0 {
		frameHandler = middleware.RateLimit(rateLimiter, sessionRateKey, framesPerMin, metricsManager)(frameHandler)
	}
	coachRouter.Handle("/sessions/{id}/frames", frameHandler).Methods("POST", "OPTIONS").Name("session-frame")
}

func sessionRateKey(r *http.Request) string {
	return "coach::frames::" + mux.Vars(r)["id"]
}

func (handler *Handler) HandleExercises(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.coach.exercises")
	defer span.End()

	pkg.WriteJSON(w, handler.exercises, http.StatusOK)
}

func (handler *Handler) exercise(id string) (formcheck.Definition, error) {
	for _, def := range handler.exercises {
		if def.ID == id {
			return def, nil
		}
	}
	return formcheck.Definition{}, fmt.Errorf("%w: %s", ErrUnknownExercise, id)
}

func (handler *Handler) HandleNewSession(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.coach.new-session")
	defer span.End()

	var req NewSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("new session, unmarshal json params: %s", err)
		http.Error(w, "invalid new session request", http.StatusBadRequest)
		return
	}
	if req.Kilos < 0 {
		http.Error(w, "kilos must not be negative", http.StatusBadRequest)
		return
	}

	def, err := handler.exercise(req.ExerciseID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	live, err := handler.registry.Create(def, req.Kilos)
	if err != nil {
		log.Errorf("create session for %s: %s", def.ID, err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.String("session.id", live.ID))

	pkg.WriteJSON(w, sessionInfo(live), http.StatusCreated)
}

func sessionInfo(live *LiveSession) SessionInfo {
	return SessionInfo{
		ID:              live.ID,
		ExerciseID:      live.ExerciseID,
		Kilos:           live.Kilos,
		CreatedAt:       live.CreatedAt,
		FeedbackChannel: feedback.ChannelName(live.ID),
	}
}

func (handler *Handler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.coach.frame")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("session.id", id))

	live, err := handler.registry.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBodyBytes))
	if err != nil {
		http.Error(w, "failed to read frame", http.StatusBadRequest)
		return
	}
	frame, err := source.DecodeFrame(body)
	if err != nil {
		log.Tracef("session %s: %s", id, err)
		http.Error(w, "invalid frame", http.StatusBadRequest)
		return
	}

	res, err := live.Process(frame, handler.now())
	if err != nil {
		// finished in between Get and Process
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if res.Notification != nil && handler.queue != nil {
		handler.queue.Enqueue(live.ID, live.ExerciseID, *res.Notification)
	}
	span.SetAttributes(attribute.Float64("count", res.Count))

	pkg.WriteJSON(w, res, http.StatusOK)
}

func (handler *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.coach.get-session")
	defer span.End()

	live, err := handler.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	pkg.WriteJSON(w, live.Snapshot(), http.StatusOK)
}

func (handler *Handler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.coach.finish")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("session.id", id))

	live, err := handler.registry.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	summary, err := live.Finish()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	handler.registry.Remove(id)

	resp := FinishResponse{Summary: summary}
	var storeErr error
	// an empty set is not worth a row
	if summary.FullReps > 0 && handler.repo != nil {
		set := workouts.NewSet(id, live.Definition().MuscleGroup, live.Kilos, summary, handler.now())
		resp.Set, storeErr = handler.repo.Add(ctx, set)
	}

	respBytes, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal finish response: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// cached even when storing failed, the summary stays readable
	if err := handler.summaries.Set([]byte(id), respBytes, summaryCacheExpireSec); err != nil {
		log.Errorf("cache summary of session %s: %s", id, err)
	}

	if storeErr != nil {
		log.Errorf("persist set of session %s: %s", id, storeErr)
		span.RecordError(storeErr)
		http.Error(w, "failed to store workout set", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respBytes, http.StatusOK)
}

// HandleSummary serves the summary of a finished session from the cache,
// or the running summary of a live one.
func (handler *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.coach.summary")
	defer span.End()

	id := mux.Vars(r)["id"]
	if cached, err := handler.summaries.Get([]byte(id)); err == nil {
		span.SetAttributes(attribute.Bool("cached", true))
		pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, cached)
		return
	} else if !errors.Is(err, freecache.ErrNotFound) {
		log.Errorf("get cached summary of session %s: %s", id, err)
	}

	live, err := handler.registry.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	pkg.WriteJSON(w, FinishResponse{Summary: live.Summary()}, http.StatusOK)
}

func (handler *Handler) HandleListWorkouts(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.coach.list-workouts")
	defer span.End()

	if handler.repo == nil {
		http.Error(w, "workouts storage not available", http.StatusServiceUnavailable)
		return
	}

	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		log.Tracef("handle list workouts, from <page> param: %s", err)
		http.Error(w, "parse form error, parameter <page>", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil {
		log.Tracef("handle list workouts, from <size> param: %s", err)
		http.Error(w, "parse form error, parameter <size>", http.StatusBadRequest)
		return
	}
	if page < 1 {
		http.Error(w, "invalid page (has to be non-zero value)", http.StatusBadRequest)
		return
	}
	if size < 1 || size > 100 {
		http.Error(w, "invalid size (has to be between 1 and 100)", http.StatusBadRequest)
		return
	}

	sets, total, err := handler.repo.List(ctx, workouts.ListParams{
		ExerciseID:  r.URL.Query().Get("exercise_id"),
		MuscleGroup: r.URL.Query().Get("group"),
		Page:        page,
		Size:        size,
	})
	if err != nil {
		log.Errorf("list workouts: %s", err)
		http.Error(w, "failed to list workouts", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, ListResponse{Sets: sets, Total: total}, http.StatusOK)
}
