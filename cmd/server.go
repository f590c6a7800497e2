package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amirhossein5/rollcall/internal/enroll"
	"github.com/amirhossein5/rollcall/internal/live"
	"github.com/amirhossein5/rollcall/internal/rollno"
	"github.com/amirhossein5/rollcall/internal/source"
	"github.com/amirhossein5/rollcall/internal/store"
	"github.com/amirhossein5/rollcall/internal/stream"
	"github.com/amirhossein5/rollcall/pkg/logger"
	"github.com/amirhossein5/rollcall/pkg/metrics"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

//go:embed index.html
var indexHTML []byte

// server is the live session's HTTP surface. camera is nil unless frames
// come from browsers.
type server struct {
	ctrl    *live.Controller
	frames  *stream.Broadcaster
	camera  *source.Websocket
	store   *store.Store
	deleter *enroll.Enroller
	metrics *metrics.Manager
	log     logger.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/", indexPage)
	r.Get("/stream", s.frames.ServeHTTP)
	if s.camera != nil {
		r.Handle("/camera-websocket", s.camera.Handler())
	}
	r.Post("/control/{command}", s.control)
	r.Get("/status", s.status)
	r.Get("/roster", s.roster)
	r.Delete("/roster/{rollNo}", s.deleteStudent)
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

func indexPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *server) control(w http.ResponseWriter, r *http.Request) {
	cmd, err := live.ParseCommand(chi.URLParam(r, "command"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.ctrl.Send(cmd) {
		respondError(w, http.StatusConflict, "no live session is accepting commands")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"command": cmd.String()})
}

type statusResponse struct {
	live.Status
	Cameras *int `json:"cameras,omitempty"`
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.ctrl.Status()}
	if s.camera != nil {
		n := s.camera.Clients()
		resp.Cameras = &n
	}
	respondJSON(w, http.StatusOK, resp)
}

type rosterEntry struct {
	RollNo string `json:"roll_no"`
	Name   string `json:"name"`
}

func (s *server) roster(w http.ResponseWriter, r *http.Request) {
	all := s.store.All()
	out := make([]rosterEntry, 0, len(all))
	for _, id := range all {
		out = append(out, rosterEntry{RollNo: id.RollNo, Name: id.Name})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *server) deleteStudent(w http.ResponseWriter, r *http.Request) {
	roll := chi.URLParam(r, "rollNo")
	removed, err := s.deleter.Delete(r.Context(), roll)
	switch {
	case errors.Is(err, rollno.ErrAmbiguous), errors.Is(err, rollno.ErrEmpty):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrStoreIO):
		s.metrics.IncStoreErrors()
		s.log.Error(r.Context(), "deleting student failed", logger.String("roll_no", roll), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "deleted in memory but could not persist")
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	case !removed:
		respondError(w, http.StatusNotFound, "roll number not found")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
