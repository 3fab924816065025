package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/engine"
	"github.com/hyperengineering/companion/internal/ritual"
	"github.com/hyperengineering/companion/internal/store"
	"github.com/hyperengineering/companion/internal/types"
	"github.com/hyperengineering/companion/internal/validation"
)

// Handler implements the API handlers
type Handler struct {
	store    store.Store
	engine   *engine.Engine
	trigger  engine.Trigger
	answers  engine.AnswerSink
	fallback engine.FallbackFunc
	version  string
}

// NewHandler creates a new Handler over the engine and its collaborators.
func NewHandler(s store.Store, e *engine.Engine, trigger engine.Trigger, answers engine.AnswerSink, fb engine.FallbackFunc, version string) *Handler {
	return &Handler{
		store:    s,
		engine:   e,
		trigger:  trigger,
		answers:  answers,
		fallback: fb,
		version:  version,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	msgCount, err := h.store.CountMessages(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	rituals, err := h.store.ListRituals(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		MessageCount: msgCount,
		RitualCount:  int64(len(rituals)),
	})
}

// ListMessages handles GET /api/messages: the render view of the
// conversation, with superseded goodnight cards suppressed.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs := h.engine.History().RenderList()
	writeJSON(w, http.StatusOK, msgs)
}

// AppendMessage handles POST /api/messages
func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	var req types.AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if req.Text == "" && !req.Message.HasCard() {
		WriteProblemWithErrors(w, r, "Message must carry text or a card",
			[]validation.ValidationError{{Field: "text", Message: "text or metadata is required"}})
		return
	}
	if req.Role == "" {
		req.Role = types.RoleAssistant
	}

	msg := h.engine.Append(r.Context(), req.Message, req.Echo)
	writeJSON(w, http.StatusOK, msg)
}

// UpdateMessage handles PUT /api/messages
func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if req.ID == "" {
		WriteProblemWithErrors(w, r, "Message id is required",
			[]validation.ValidationError{{Field: "id", Message: "id is required"}})
		return
	}

	updated, ok := h.engine.UpdateMessage(r.Context(), req)
	if !ok {
		WriteProblem(w, r, http.StatusNotFound, "Message not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ClearMessages handles DELETE /api/messages
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearChat(r.Context()); err != nil {
		slog.Error("clear chat failed", "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetSettings handles GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetSettings(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings handles POST and PUT /api/settings. Omitted fields keep
// their stored values.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch types.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	if patch.FallbackWebhook != nil {
		c.Add(validation.ValidateWebhookURL("fallbackWebhook", *patch.FallbackWebhook))
	}
	if patch.NotificationsWebhook != nil {
		c.Add(validation.ValidateWebhookURL("notificationsWebhook", *patch.NotificationsWebhook))
	}
	if errs := c.Errors(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Settings contain invalid fields", errs)
		return
	}

	if err := h.store.MergeSettings(r.Context(), patch); err != nil {
		MapStoreError(w, r, err)
		return
	}
	s, err := h.store.GetSettings(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SendChat handles POST /api/chat/send, the dispatcher entry point.
func (h *Handler) SendChat(w http.ResponseWriter, r *http.Request) {
	var req types.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	msgs, err := h.engine.Send(r.Context(), req.Text)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SendResponse{OK: true, Messages: msgs})
}

// ListRituals handles GET /api/rituals
func (h *Handler) ListRituals(w http.ResponseWriter, r *http.Request) {
	rituals, err := h.store.ListRituals(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if rituals == nil {
		rituals = []types.Ritual{}
	}
	writeJSON(w, http.StatusOK, rituals)
}

// SaveRitual handles POST /api/rituals (upsert by id)
func (h *Handler) SaveRitual(w http.ResponseWriter, r *http.Request) {
	var rit types.Ritual
	if err := json.NewDecoder(r.Body).Decode(&rit); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if errs := ritual.Validate(rit); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Ritual contains invalid fields", errs)
		return
	}

	if err := h.store.SaveRitual(r.Context(), rit); err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rit)
}

// DeleteRitual handles DELETE /api/rituals/{id}
func (h *Handler) DeleteRitual(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteRitual(r.Context(), id); err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// TriggerRitual handles POST /api/rituals/trigger, the trigger proxy.
func (h *Handler) TriggerRitual(w http.ResponseWriter, r *http.Request) {
	var req types.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if req.RitualID == "" {
		WriteProblemWithErrors(w, r, "Ritual id is required",
			[]validation.ValidationError{{Field: "ritualId", Message: "ritualId is required"}})
		return
	}

	resp, err := h.trigger.Trigger(r.Context(), req)
	if err != nil {
		slog.Warn("ritual trigger failed", "ritual_id", req.RitualID, "error", err)
		writeJSON(w, http.StatusBadGateway, types.TriggerResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Fallback handles POST /api/fallback, the conversational proxy.
func (h *Handler) Fallback(w http.ResponseWriter, r *http.Request) {
	var req types.FallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		WriteProblemWithErrors(w, r, "Text is required",
			[]validation.ValidationError{{Field: "text", Message: "text is required"}})
		return
	}

	text, err := h.fallback(r.Context(), req)
	if err != nil {
		slog.Warn("fallback failed", "error", err)
		writeJSON(w, http.StatusBadGateway, types.FallbackResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, types.FallbackResponse{OK: true, Text: text})
}

// SaveMind handles POST /api/mind: answers filed as plain notes regardless
// of any session on the request.
func (h *Handler) SaveMind(w http.ResponseWriter, r *http.Request) {
	h.saveAnswer(w, r, false)
}

// SaveWinddownAnswer handles POST /api/winddown/answer
func (h *Handler) SaveWinddownAnswer(w http.ResponseWriter, r *http.Request) {
	h.saveAnswer(w, r, true)
}

func (h *Handler) saveAnswer(w http.ResponseWriter, r *http.Request, session bool) {
	var req types.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("text", req.Text))
	if session {
		c.Add(validation.ValidateRequired("sessionId", req.SessionID))
	} else {
		req.SessionID = ""
	}
	if errs := c.Errors(); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Answer contains invalid fields", errs)
		return
	}

	if req.ID == "" {
		req.ID = "mind_" + fmt.Sprintf("%d", time.Now().UnixNano())
	}
	if req.CreatedAt == 0 {
		req.CreatedAt = time.Now().UnixMilli()
	}

	resp, err := h.answers.Save(r.Context(), req)
	if err != nil {
		slog.Error("answer save failed", "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartCard handles POST /api/cards/{id}/start: starts the countdown on the
// identified card by rewriting its metadata in place.
func (h *Handler) StartCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updated, ok := h.engine.StartCountdown(r.Context(), id)
	if !ok {
		WriteProblem(w, r, http.StatusNotFound, "Countdown card not found or already started")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// cardActionRequest is the body of POST /api/cards/{id}/action.
type cardActionRequest struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
}

// CardAction handles POST /api/cards/{id}/action: the card-local buttons.
func (h *Handler) CardAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req cardActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	switch req.Action {
	case "save":
		msgs, err := h.engine.SaveAnswer(r.Context(), id, req.Text)
		if err != nil {
			if errors.Is(err, engine.ErrUnknownCard) || errors.Is(err, engine.ErrEmptyAnswer) {
				MapStoreError(w, r, err)
				return
			}
			slog.Warn("answer save failed", "card_id", id, "error", err)
			writeJSON(w, http.StatusBadGateway, types.SendResponse{})
			return
		}
		writeJSON(w, http.StatusOK, types.SendResponse{OK: true, Messages: msgs})

	case "evaluate":
		card, ok := h.engine.History().Get(id)
		if !ok || card.CardKind() != cards.KindListSection {
			WriteProblem(w, r, http.StatusNotFound, "Evaluation card not found")
			return
		}
		msg := h.engine.EvaluateImpulse(r.Context())
		writeJSON(w, http.StatusOK, types.SendResponse{OK: true, Messages: []types.Message{msg}})

	case "button":
		if !h.engine.ClearButtons(r.Context(), id) {
			WriteProblem(w, r, http.StatusNotFound, "Message not found")
			return
		}
		var msgs []types.Message
		if strings.TrimSpace(req.Text) != "" {
			sent, err := h.engine.Send(r.Context(), req.Text)
			if err != nil {
				MapStoreError(w, r, err)
				return
			}
			msgs = sent
		}
		writeJSON(w, http.StatusOK, types.SendResponse{OK: true, Messages: msgs})

	default:
		WriteProblemWithErrors(w, r, "Unknown card action",
			[]validation.ValidationError{{Field: "action", Message: "must be save, evaluate, or button"}})
	}
}

// ListAppointments handles GET /api/appointments?date=YYYY-MM-DD
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if err := validation.ValidateDate("date", date); err != nil {
		WriteProblemWithErrors(w, r, "Invalid date", []validation.ValidationError{*err})
		return
	}

	appts, err := h.store.ListAppointments(r.Context(), date)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if appts == nil {
		appts = []types.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

// ListUrgentTodos handles GET /api/todos/urgent: open todos in priority
// order, done entries filtered out.
func (h *Handler) ListUrgentTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := h.store.ListUrgentTodos(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	items := make([]cards.TodoItem, len(todos))
	for i, t := range todos {
		items[i] = cards.TodoItem{Title: t.Title, Priority: t.Priority, Done: t.Done}
	}
	out := make([]types.UrgentTodo, 0, len(items))
	for _, it := range cards.SortUrgent(items) {
		out = append(out, types.UrgentTodo{Title: it.Title, Priority: it.Priority, Done: it.Done})
	}
	writeJSON(w, http.StatusOK, out)
}
