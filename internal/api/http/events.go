package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/sports-bet-ledger/internal/api/dto"
	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/event"
	"github.com/radieske/sports-bet-ledger/internal/model"
)

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateEventRequest
	if !a.decode(w, r, &req) {
		return
	}
	ev, err := a.Events.CreateEvent(r.Context(), event.CreateRequest{
		ExternalID:  req.ExternalID,
		HomeTeam:    req.HomeTeam,
		AwayTeam:    req.AwayTeam,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) importEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.ImportEventRequest
	if !a.decode(w, r, &req) {
		return
	}
	ev, err := a.Events.ImportEvent(r.Context(), req.ExternalID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	out, err := a.Events.List(r.Context(), model.EventState(r.URL.Query().Get("state")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := a.Events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) startEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := a.Events.StartEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) finishEvent(w http.ResponseWriter, r *http.Request) {
	var req dto.FinishEventRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.HomeScore == nil || req.AwayScore == nil {
		a.writeError(w, r, apperr.New(apperr.Validation, "event.Finish", "homeScore and awayScore are required"))
		return
	}
	ev, err := a.Events.FinishEvent(r.Context(), chi.URLParam(r, "id"), *req.HomeScore, *req.AwayScore)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
