package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Databases  *DatabaseHandler
	Metrics    http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Databases != nil {
		mux.HandleFunc("/databases", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Databases.List(w, r)
		})
		mux.HandleFunc("/databases/", func(w http.ResponseWriter, r *http.Request) {
			name, action, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/databases/"), "/")
			if name == "" || !ok {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithDatabaseName(r.Context(), name))

			if table, isTable := strings.CutPrefix(action, "tables/"); isTable {
				if table == "" || strings.Contains(table, "/") {
					http.NotFound(w, r)
					return
				}
				if r.Method != http.MethodGet {
					methodNotAllowed(w, http.MethodGet)
					return
				}
				cfg.Databases.FindMany(w, r, table)
				return
			}

			switch action {
			case "query":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Databases.Query(w, r)
			case "storage":
				if r.Method != http.MethodDelete {
					methodNotAllowed(w, http.MethodDelete)
					return
				}
				cfg.Databases.DeleteStorage(w, r)
			case "reinitialize":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Databases.Reinitialize(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
