package opshttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/tmodkit/internal/loader"
	"github.com/keithlinneman/tmodkit/internal/log"
)

type modView struct {
	loader.Mod
	Active bool `json:"active"`
}

type modsResponse struct {
	Ready bool      `json:"ready"`
	Mods  []modView `json:"mods"`
}

func viewOf(m loader.Mod) modView { return modView{Mod: m, Active: m.Active()} }

// ModsHandler lists every loaded mod with its roots, scripts, shader
// resolutions, removed components and lightmap bindings.
func ModsHandler(src ModSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := src.Get()
		out := modsResponse{Ready: snap.Ready, Mods: make([]modView, 0, len(snap.Mods))}
		for _, m := range snap.Mods {
			out.Mods = append(out.Mods, viewOf(m))
		}
		writeJSON(w, r, http.StatusOK, out)
	}
}

// ModHandler serves one mod by the {name} route param.
func ModHandler(src ModSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		for _, m := range src.Get().Mods {
			if m.Name == name {
				writeJSON(w, r, http.StatusOK, viewOf(m))
				return
			}
		}
		http.Error(w, "mod not loaded\n", http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.FromContext(r.Context()).Warn(r.Context(), "encode response", "err", err)
	}
}
