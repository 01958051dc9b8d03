package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/dto"
)

// errorBody is the `{detail, code}` JSON shape every HTTP error uses, per
// spec.md §7.
type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Detail: err.Error(), Code: string(domain.CodeOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusForError(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (rt *Router) createCampaign(w http.ResponseWriter, r *http.Request) {
	var body CreateSpec
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, domain.NewValidationError("malformed request body"))
		return
	}

	c, err := rt.campaigns.Create(r.Context(), body)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"campaign_id": string(c.ID),
		"title":       c.Title,
		"status":      string(c.Status),
		"total_tasks": c.TotalTasks,
		"created_at":  c.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
	})
}

func (rt *Router) listCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := rt.campaigns.List(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	out := make([]dto.CampaignWire, len(campaigns))
	for i, c := range campaigns {
		out[i] = dto.CampaignToWire(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) getCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.NewValidationError("invalid campaign id"))
		return
	}
	c, err := rt.campaigns.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, dto.CampaignToWire(c))
}

func (rt *Router) getCampaignPlaces(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.NewValidationError("invalid campaign id"))
		return
	}
	places, err := rt.campaigns.PlacesOf(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	out := make([]dto.PlaceWire, len(places))
	for i, p := range places {
		out[i] = dto.PlaceToWire(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) getCampaignTasks(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.NewValidationError("invalid campaign id"))
		return
	}
	tasks, err := rt.campaigns.TasksOf(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	out := make([]dto.TaskWire, len(tasks))
	for i, t := range tasks {
		out[i] = dto.TaskToWire(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) startCampaign(w http.ResponseWriter, r *http.Request) {
	rt.transition(w, r, rt.campaigns.Start)
}

func (rt *Router) resumeCampaign(w http.ResponseWriter, r *http.Request) {
	rt.transition(w, r, rt.campaigns.Resume)
}

func (rt *Router) archiveCampaign(w http.ResponseWriter, r *http.Request) {
	rt.transition(w, r, rt.campaigns.Archive)
}

func (rt *Router) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id domain.ID) error) {
	id, err := domain.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.NewValidationError("invalid campaign id"))
		return
	}
	if err := op(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) getCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := rt.geo.Countries(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, countries)
}

func (rt *Router) getRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := rt.geo.Regions(r.Context(), r.PathValue("cc"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, regions)
}

func (rt *Router) getProvinces(w http.ResponseWriter, r *http.Request) {
	regions, err := rt.geo.Provinces(r.Context(), r.PathValue("cc"), r.URL.Query().Get("admin1_code"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, regions)
}

func (rt *Router) getCities(w http.ResponseWriter, r *http.Request) {
	minPop := parseInt64(r.URL.Query().Get("min_population"))
	regions, err := rt.geo.Cities(r.Context(), r.PathValue("cc"), r.URL.Query().Get("admin1_code"), r.URL.Query().Get("admin2_code"), minPop)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, regions)
}

func parseInt64(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
