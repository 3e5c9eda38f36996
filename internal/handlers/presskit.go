package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/presskit-builder/apiserver/internal/logging"
	"github.com/presskit-builder/apiserver/internal/services"
	"github.com/presskit-builder/apiserver/internal/store"
	"github.com/presskit-builder/apiserver/types"
)

const pressKitIDParam = "pressKitID"

// PressKitHandler provides HTTP handlers for press kits.
type PressKitHandler struct {
	pressKitService *services.PressKitService
	logger          *slog.Logger
}

// NewPressKitHandler constructs a handler with the provided service.
func NewPressKitHandler(pressKitService *services.PressKitService, logger *slog.Logger) *PressKitHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PressKitHandler{
		pressKitService: pressKitService,
		logger:          logger,
	}
}

// PressKitRouter registers press kit routes on the given router. Create
// validates its body before authenticating the caller.
func PressKitRouter(r chi.Router, handler *PressKitHandler, v *Validator, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware).Get("/", handler.List)
	r.With(Validate[CreatePressKitRequest](v), authMiddleware).Post("/", handler.Create)
	r.Route("/{"+pressKitIDParam+"}", func(r chi.Router) {
		r.With(authMiddleware).Get("/", handler.Get)
		r.With(authMiddleware).Put("/", handler.Update)
		r.With(authMiddleware).Delete("/", handler.Delete)
		r.Post("/views", handler.RecordView)
	})
}

// List returns summaries of the caller's press kits, newest first.
func (h *PressKitHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authDenied)
		return
	}

	summaries, err := h.pressKitService.List(r.Context(), identity.Subject)
	if err != nil {
		writeServerError(w, r, h.logger, "list press kits", err)
		return
	}
	if summaries == nil {
		summaries = []types.PressKitSummary{}
	}

	writeJSON(w, http.StatusOK, summaries)
}

func (h *PressKitHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authDenied)
		return
	}
	id, ok := resourceID(r, pressKitIDParam)
	if !ok {
		writeError(w, http.StatusNotFound, "press kit not found")
		return
	}

	kit, err := h.pressKitService.Get(r.Context(), identity.Subject, id)
	if err != nil {
		h.writeLookupError(w, r, "get press kit", err)
		return
	}

	writeJSON(w, http.StatusOK, kit)
}

func (h *PressKitHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := bodyFromContext[CreatePressKitRequest](r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authDenied)
		return
	}

	kit, err := h.pressKitService.Create(r.Context(), identity.Subject, req.PressKit())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "press kit with this slug already exists")
			return
		}
		writeServerError(w, r, h.logger, "create press kit", err)
		return
	}

	writeJSON(w, http.StatusCreated, kit)
}

// Update applies a partial update to one of the caller's press kits.
func (h *PressKitHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authDenied)
		return
	}
	id, ok := resourceID(r, pressKitIDParam)
	if !ok {
		writeError(w, http.StatusNotFound, "press kit not found")
		return
	}

	var req UpdatePressKitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	kit, err := h.pressKitService.Update(r.Context(), identity.Subject, id, req.Patch())
	if err != nil {
		h.writeLookupError(w, r, "update press kit", err)
		return
	}

	writeJSON(w, http.StatusOK, kit)
}

func (h *PressKitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authDenied)
		return
	}
	id, ok := resourceID(r, pressKitIDParam)
	if !ok {
		writeError(w, http.StatusNotFound, "press kit not found")
		return
	}

	if err := h.pressKitService.Delete(r.Context(), identity.Subject, id); err != nil {
		h.writeLookupError(w, r, "delete press kit", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Press kit removed"})
}

// RecordView counts an anonymous view of a published press kit. Unknown and
// unpublished kits are indistinguishable to the caller.
func (h *PressKitHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(r, pressKitIDParam)
	if !ok {
		writeError(w, http.StatusNotFound, "press kit not found")
		return
	}

	if err := h.pressKitService.RecordView(r.Context(), id); err != nil {
		h.writeLookupError(w, r, "record press kit view", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PressKitHandler) writeLookupError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "press kit not found")
		return
	}
	writeServerError(w, r, h.logger, msg, err)
}

type CreatePressKitRequest struct {
	Title           string `json:"title" validate:"required" msg:"Title is required"`
	TemplateID      string `json:"template_id" validate:"required" msg:"Template ID is required"`
	PrimaryColor    string `json:"primary_color"`
	SecondaryColor  string `json:"secondary_color"`
	FontChoice      string `json:"font_choice"`
	CustomCSS       string `json:"custom_css"`
	MetaDescription string `json:"meta_description"`
}

func (req *CreatePressKitRequest) Normalize() {
	req.Title = strings.TrimSpace(req.Title)
	req.TemplateID = strings.TrimSpace(req.TemplateID)
}

// PressKit converts the request into an unsaved press kit.
func (req CreatePressKitRequest) PressKit() types.PressKit {
	return types.PressKit{
		Title:           req.Title,
		TemplateID:      req.TemplateID,
		PrimaryColor:    req.PrimaryColor,
		SecondaryColor:  req.SecondaryColor,
		FontChoice:      req.FontChoice,
		CustomCSS:       req.CustomCSS,
		MetaDescription: req.MetaDescription,
	}
}

// optional records whether a JSON field was present in the body. A JSON null
// counts as absent.
type optional[T any] struct {
	present bool
	value   T
}

func (o *optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &o.value); err != nil {
		return err
	}
	o.present = true
	return nil
}

type UpdatePressKitRequest struct {
	Title           optional[string] `json:"title"`
	TemplateID      optional[string] `json:"template_id"`
	PrimaryColor    optional[string] `json:"primary_color"`
	SecondaryColor  optional[string] `json:"secondary_color"`
	FontChoice      optional[string] `json:"font_choice"`
	CustomCSS       optional[string] `json:"custom_css"`
	MetaDescription optional[string] `json:"meta_description"`
	IsPublished     optional[bool]   `json:"is_published"`
}

// Patch converts the request into field updates. Style and identity fields
// change only when given a non-empty value; free-text fields and the publish
// flag change whenever present.
func (req UpdatePressKitRequest) Patch() types.PressKitPatch {
	return types.PressKitPatch{
		Title:           nonEmpty(req.Title),
		TemplateID:      nonEmpty(req.TemplateID),
		PrimaryColor:    nonEmpty(req.PrimaryColor),
		SecondaryColor:  nonEmpty(req.SecondaryColor),
		FontChoice:      nonEmpty(req.FontChoice),
		CustomCSS:       ifPresent(req.CustomCSS),
		MetaDescription: ifPresent(req.MetaDescription),
		IsPublished:     ifPresent(req.IsPublished),
	}
}

func nonEmpty(field optional[string]) types.FieldUpdate[string] {
	if !field.present || field.value == "" {
		return types.Unchanged[string]()
	}
	return types.SetTo(field.value)
}

func ifPresent[T any](field optional[T]) types.FieldUpdate[T] {
	if !field.present {
		return types.Unchanged[T]()
	}
	return types.SetTo(field.value)
}
