package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskforge-ai/taskforge/internal/agent"
	"github.com/taskforge-ai/taskforge/internal/decompose"
	"github.com/taskforge-ai/taskforge/internal/dispatch"
	"github.com/taskforge-ai/taskforge/internal/eventbus"
	"github.com/taskforge-ai/taskforge/internal/task"
	"github.com/taskforge-ai/taskforge/pkg/cerr"
)

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	return nil
}

type decomposeRequest struct {
	Task           *task.AtomicTask `json:"task"`
	ProjectContext string           `json:"projectContext,omitempty"`
	// Persist stores the resulting atomic tasks in the task repository.
	Persist bool `json:"persist,omitempty"`
}

type decomposeResponse struct {
	Result      *decompose.DecompositionResult `json:"result"`
	AtomicTasks []*task.AtomicTask             `json:"atomicTasks"`
}

func (s *Server) handleDecompose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req decomposeRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Task == nil || req.Task.Title == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "task with a title is required", nil)
		return
	}
	if req.Task.Status == "" {
		req.Task.Status = task.StatusPending
	}
	if !req.Task.Priority.Valid() {
		req.Task.Priority = task.PriorityMedium
	}

	result := s.engine.DecomposeTask(ctx, req.Task, req.ProjectContext)

	atomic := result.Subtasks
	if result.IsAtomic {
		atomic = []*task.AtomicTask{result.Task}
	}
	if req.Persist {
		for _, t := range atomic {
			if err := s.taskRepo.Create(ctx, t); err != nil {
				slog.Warn("failed to persist decomposed task", "task_id", t.ID, "error", err)
			}
		}
	}
	cerr.SetJSONResponse(ctx, decomposeResponse{Result: result, AtomicTasks: atomic})
}

type listTasksResponse struct {
	Tasks []*task.AtomicTask `json:"tasks"`
	Total int                `json:"total"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	tasks, total, err := s.taskRepo.List(ctx, q.Get("projectId"), q.Get("epicId"), task.Status(q.Get("status")), limit, offset)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, listTasksResponse{Tasks: tasks, Total: total})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.taskRepo.Get(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

type updateTaskRequest struct {
	Status task.Status `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

func (s *Server) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	switch req.Status {
	case task.StatusPending, task.StatusInProgress, task.StatusCompleted, task.StatusFailed:
	default:
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid status", nil)
		return
	}

	t, err := s.taskRepo.Get(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t.Status = req.Status
	t.Touch()
	if err := s.taskRepo.Update(ctx, t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Status == task.StatusFailed {
		s.bus.PublishNew(eventbus.EventTaskFailed, t.ID, req.Reason, nil)
	}
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var reg agent.Registration
	if err := decodeJSON(r, &reg); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.registry.Register(&reg); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	stored, _ := s.registry.GetAgent(reg.ID)
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, stored)
}

type listAgentsResponse struct {
	Agents []*agent.Registration `json:"agents"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.registry.GetOnlineAgents()
	if agents == nil {
		agents = []*agent.Registration{}
	}
	cerr.SetJSONResponse(r.Context(), listAgentsResponse{Agents: agents})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reg, ok := s.registry.GetAgent(chi.URLParam(r, "agentID"))
	if !ok {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "agent not found", nil)
		return
	}
	cerr.SetJSONResponse(ctx, reg)
}

func (s *Server) handleUnregisterAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")
	if err := s.registry.Unregister(agentID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	dropped := s.dispatcher.ClearAgentTasks(agentID)
	cerr.SetJSONResponse(ctx, map[string]int{"droppedTasks": dropped})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")
	if _, ok := s.registry.GetAgent(agentID); !ok {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "agent not found", nil)
		return
	}
	s.registry.Touch(agentID)
	cerr.SetJSONResponse(ctx, map[string]string{"status": "ok"})
}

func (s *Server) handleEnqueueTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var t task.AtomicTask
	if err := decodeJSON(r, &t); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	assignment, err := s.dispatcher.AddTask(chi.URLParam(r, "agentID"), &t)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, assignment)
}

type pollTasksResponse struct {
	Assignments []*dispatch.TaskAssignment `json:"assignments"`
	QueueLength int                        `json:"queueLength"`
	PolledAt    time.Time                  `json:"polledAt"`
}

func (s *Server) handlePollTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")
	if _, ok := s.registry.GetAgent(agentID); !ok {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "agent not found", nil)
		return
	}
	max, _ := strconv.Atoi(r.URL.Query().Get("max"))
	assignments := s.dispatcher.GetTasks(agentID, max)
	if assignments == nil {
		assignments = []*dispatch.TaskAssignment{}
	}
	cerr.SetJSONResponse(ctx, pollTasksResponse{
		Assignments: assignments,
		QueueLength: s.dispatcher.QueueLength(agentID),
		PolledAt:    time.Now(),
	})
}

func (s *Server) handleRemoveAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.dispatcher.RemoveTask(chi.URLParam(r, "agentID"), chi.URLParam(r, "assignmentID")) {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "assignment not queued", nil)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"status": "removed"})
}

type dispatchRequest struct {
	Task                 *task.AtomicTask `json:"task"`
	RequiredCapabilities []string         `json:"requiredCapabilities,omitempty"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req dispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Task == nil || req.Task.ID == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "task with an id is required", nil)
		return
	}
	assignment, err := s.dispatcher.Dispatch(req.Task, req.RequiredCapabilities)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, assignment)
}

func (s *Server) handleVAPIDKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := s.pushService.VAPIDPublicKey()
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"publicKey": key})
}

type pushSubscriptionRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dhKey"`
	AuthKey   string `json:"authKey"`
}

func (s *Server) handleRegisterPush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pushSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.pushService.Register(ctx, req.Endpoint, req.P256dhKey, req.AuthKey); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, map[string]string{"status": "registered"})
}

func (s *Server) handleUnregisterPush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pushSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.pushService.Unregister(ctx, req.Endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"status": "unregistered"})
}

func (s *Server) handleDeletePushSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.pushService.UnregisterByID(ctx, chi.URLParam(r, "subscriptionID")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"status": "unregistered"})
}

func (s *Server) handleTestPush(w http.ResponseWriter, r *http.Request) {
	s.pushService.SendTest(r.Context())
	cerr.SetJSONResponse(r.Context(), map[string]string{"status": "sent"})
}
