// Package api exposes the orchestrator over HTTP: task submission, listing,
// cancellation, and the matrix export, per §6's task input/matrix response
// shapes.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/sagan/gridgen/internal/matrix"
	"github.com/sagan/gridgen/internal/orchestrator"
	"github.com/sagan/gridgen/internal/store"
)

var logger = log.WithField("component", "api")

// Server wraps an orchestrator+store pair with HTTP handlers.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	store        *store.Store
}

func New(o *orchestrator.Orchestrator, st *store.Store) *Server {
	return &Server{orchestrator: o, store: st}
}

// Router builds the mux.Router for this server's routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", s.handleGetTask).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", s.handleDeleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/tasks/{id}/cancel", s.handleCancelTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/matrix", s.handleMatrix).Methods(http.MethodGet)
	return r
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var input orchestrator.CreateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	task, err := s.orchestrator.CreateTask(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TaskFilter{NameSubstr: q.Get("name")}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	writeJSON(w, http.StatusOK, s.orchestrator.ListTasks(filter))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.orchestrator.GetTask(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orchestrator.DeleteTask(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orchestrator.CancelTask(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// matrixResponse is the wire shape of §6's "Matrix response".
type matrixResponse struct {
	TaskID               string            `json:"task_id"`
	TaskName             string            `json:"task_name"`
	CreatedAt            string            `json:"created_at"`
	Variables            map[int]any       `json:"variables"`
	CoordinatesByIndices map[string]string `json:"coordinates_by_indices"`
}

func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.orchestrator.GetTask(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	subtasks := s.store.SubtasksByParent(id)

	variables := make(map[int]any, len(task.Variables))
	for k, v := range task.Variables {
		variables[k] = v
	}

	writeJSON(w, http.StatusOK, matrixResponse{
		TaskID: task.ID, TaskName: task.Name, CreatedAt: task.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Variables:            variables,
		CoordinatesByIndices: matrix.Build(subtasks),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Warn("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
