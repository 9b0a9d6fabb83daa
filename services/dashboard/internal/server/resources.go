package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"jobhunt/internal/util"
	"jobhunt/pkg/domain"
	"jobhunt/pkg/repository"
)

// resource serves one entity table: GET/POST on the collection path and
// PUT/DELETE on collection/{id}.
type resource[E domain.Entity, F domain.Fields] struct {
	s    *Server
	path string
	repo repository.Repository[E, F]
}

func mount[E domain.Entity, F domain.Fields](s *Server, path string, repo repository.Repository[E, F]) {
	res := &resource[E, F]{s: s, path: path, repo: repo}
	s.mux.Handle(path, s.authenticated(res.handleCollection))
	s.mux.Handle(path+"/", s.authenticated(res.handleItem))
}

func (res *resource[E, F]) handleCollection(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		items, err := res.repo.List(r.Context(), user.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
			filtered := make([]E, 0, len(items))
			for _, item := range items {
				if domain.Matches(item, q) {
					filtered = append(filtered, item)
				}
			}
			items = filtered
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"count": len(items),
		})
	case http.MethodPost:
		fields, ok := decodeFields[F](w, r)
		if !ok {
			return
		}
		created, err := res.repo.Create(r.Context(), user.ID, fields)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		util.LoggerFromContext(r.Context()).Info("row created", "resource", res.path, "id", created.EntityID())
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w)
	}
}

func (res *resource[E, F]) handleItem(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, res.path+"/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		fields, ok := decodeFields[F](w, r)
		if !ok {
			return
		}
		updated, err := res.repo.Update(r.Context(), id, user.ID, fields)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := res.repo.Delete(r.Context(), id, user.ID); err != nil {
			writeDomainError(w, err)
			return
		}
		util.LoggerFromContext(r.Context()).Info("row deleted", "resource", res.path, "id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func decodeFields[F any](w http.ResponseWriter, r *http.Request) (F, bool) {
	var fields F
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return fields, false
	}
	return fields, true
}
