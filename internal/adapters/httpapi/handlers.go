package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gibiertrace/internal/auth"
	"gibiertrace/internal/core"
	"gibiertrace/pkg/domain"
)

type dossierResponse struct {
	Fei      domain.DossierView `json:"fei"`
	Warnings []warning          `json:"warnings,omitempty"`
}

type unitResponse struct {
	Carcasse domain.Unit `json:"carcasse"`
	Warnings []warning   `json:"warnings,omitempty"`
}

type hopResponse struct {
	Intermediaire domain.CustodyHop `json:"carcasseIntermediaire"`
	Warnings      []warning         `json:"warnings,omitempty"`
}

type warning struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func warnings(res core.Result) []warning {
	var out []warning
	for _, v := range res.Violations {
		out = append(out, warning{Rule: v.Rule, Message: v.Message})
	}
	return out
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var batch core.SyncBatch
	if !h.decode(w, r, &batch) {
		return
	}
	res := h.service.Sync(r.Context(), actor, batch)
	if len(res.Rejected) > 0 {
		h.logger.Warn("sync items rejected", "batch_id", res.BatchID, "actor_id", actor.ID, "rejected", len(res.Rejected))
	}
	writeData(w, http.StatusOK, res)
}

func (h *Handler) getDossier(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetDossier(r.Context(), chi.URLParam(r, "numero"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dossierResponse{Fei: view})
}

func (h *Handler) applyDossier(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var patch domain.DossierPatch
	if !h.decode(w, r, &patch) {
		return
	}
	numero := chi.URLParam(r, "numero")
	if patch.Numero != "" && patch.Numero != numero {
		h.fail(w, r, domain.ValidationError{Entity: domain.EntityDossier, Field: "numero", Reason: "does not match the path"})
		return
	}
	patch.Numero = numero
	view, res, err := h.service.ApplyDossier(r.Context(), actor, numero, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dossierResponse{Fei: view, Warnings: warnings(res)})
}

func (h *Handler) applyUnit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var patch domain.UnitPatch
	if !h.decode(w, r, &patch) {
		return
	}
	numero, unitID := chi.URLParam(r, "numero"), chi.URLParam(r, "unitID")
	if (patch.UnitID != "" && patch.UnitID != unitID) || (patch.DossierNumero != "" && patch.DossierNumero != numero) {
		h.fail(w, r, domain.ValidationError{Entity: domain.EntityUnit, Reason: "body does not match the path"})
		return
	}
	patch.UnitID, patch.DossierNumero = unitID, numero
	unit, res, err := h.service.ApplyUnit(r.Context(), actor, numero, unitID, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, unitResponse{Carcasse: unit, Warnings: warnings(res)})
}

func (h *Handler) upsertHop(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var patch domain.HopPatch
	if !h.decode(w, r, &patch) {
		return
	}
	numero, unitID, handlerID := chi.URLParam(r, "numero"), chi.URLParam(r, "unitID"), chi.URLParam(r, "handlerID")
	hop, res, err := h.service.UpsertHop(r.Context(), actor, numero, unitID, handlerID, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, hopResponse{Intermediaire: hop, Warnings: warnings(res)})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.fail(w, r, auth.ErrMissingToken)
		return domain.Actor{}, false
	}
	return actor, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
