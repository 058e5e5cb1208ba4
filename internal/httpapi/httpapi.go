// Package httpapi stubs the eight resources spec.md §6 names as an
// external HTTP collaborator: thin handlers that decode a request,
// delegate to the engine, and translate cincherr.Error into a status
// code. It owns no business logic of its own — that lives in the core
// packages the engine composes.
//
// Routing follows justinmoon-cook/internal/server/server.go's
// chi.Mux + setupRoutes shape, generalized from one monolithic web app
// to eight resource groups.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/engine"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/schema"
)

// Server exposes the engine over HTTP.
type Server struct {
	Engine *engine.Engine
	router *chi.Mux
}

// New builds a Server and wires its routes.
func New(e *engine.Engine) *Server {
	s := &Server{Engine: e, router: chi.NewRouter()}
	s.router.Use(middleware.Recoverer)
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.router.Get("/projects", s.handleProjectStatus)

	s.router.Post("/databases", s.handleCreateDatabase)

	s.router.Post("/branches", s.handleCreateBranch)
	s.router.Delete("/branches/{branch}", s.handleDeleteBranch)
	s.router.Post("/branches/{branch}/merge", s.handleMergeBranch)

	s.router.Post("/tenants", s.handleCreateTenant)

	s.router.Post("/tables", s.handleCreateTable)
	s.router.Delete("/tables/{table}", s.handleDropTable)

	s.router.Post("/columns", s.handleAddColumn)
	s.router.Delete("/columns", s.handleDropColumn)

	s.router.Post("/views", s.handleCreateView)
	s.router.Delete("/views/{view}", s.handleDropView)

	s.router.Post("/query", s.handleQuery)
}

// statusFor maps a cincherr.Kind to an HTTP status code per spec.md §6.
func statusFor(err error) int {
	var e *cincherr.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case cincherr.InvalidName, cincherr.SQLValidation:
		return http.StatusBadRequest
	case cincherr.NotFound:
		return http.StatusNotFound
	case cincherr.AlreadyExists, cincherr.SchemaConflict, cincherr.MergeConflict:
		return http.StatusConflict
	case cincherr.Maintenance:
		return http.StatusLocked
	case cincherr.Concurrency, cincherr.TenantDivergent:
		return http.StatusConflict
	case cincherr.Storage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// handleProjectStatus reports the active database/branch from config
// (spec.md §6's `/projects` resource).
func (s *Server) handleProjectStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"active_database": s.Engine.Config.ActiveDatabase,
		"active_branch":   s.Engine.Config.ActiveBranch,
	})
}

func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.Engine.CreateDatabase(req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Database string `json:"database"`
		From     string `json:"from"`
		Name     string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.Engine.Branches(req.Database).CreateBranch(r.Context(), req.From, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

func (s *Server) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	db := r.URL.Query().Get("database")
	branch := chi.URLParam(r, "branch")
	if err := s.Engine.Branches(db).DeleteBranch(r.Context(), branch); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMergeBranch(w http.ResponseWriter, r *http.Request) {
	db := r.URL.Query().Get("database")
	target := chi.URLParam(r, "branch")
	var req struct {
		Source string `json:"source"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	result, err := s.Engine.Branches(db).Merge(r.Context(), req.Source, target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Database string `json:"database"`
		Branch   string `json:"branch"`
		Name     string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.Engine.CreateTenant(r.Context(), req.Database, req.Branch, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

func connParams(r *http.Request) (db, branch string) {
	q := r.URL.Query()
	return q.Get("database"), q.Get("branch")
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	db, branch := connParams(r)
	var req struct {
		Name    string          `json:"name"`
		Columns []schema.Column `json:"columns"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	change, err := s.Engine.Schema(db, branch).CreateTable(r.Context(), req.Name, req.Columns)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, change)
}

func (s *Server) handleDropTable(w http.ResponseWriter, r *http.Request) {
	db, branch := connParams(r)
	table := chi.URLParam(r, "table")
	change, err := s.Engine.Schema(db, branch).DropTable(r.Context(), table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	db, branch := connParams(r)
	var req struct {
		Table  string        `json:"table"`
		Column schema.Column `json:"column"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	change, err := s.Engine.Schema(db, branch).AddColumn(r.Context(), req.Table, req.Column)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, change)
}

func (s *Server) handleDropColumn(w http.ResponseWriter, r *http.Request) {
	db, branch := connParams(r)
	var req struct {
		Table  string `json:"table"`
		Column string `json:"column"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	change, err := s.Engine.Schema(db, branch).DropColumn(r.Context(), req.Table, req.Column)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	db, branch := connParams(r)
	var req struct {
		Name      string `json:"name"`
		SelectSQL string `json:"select_sql"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	change, err := s.Engine.Schema(db, branch).CreateView(r.Context(), req.Name, req.SelectSQL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, change)
}

func (s *Server) handleDropView(w http.ResponseWriter, r *http.Request) {
	db, branch := connParams(r)
	view := chi.URLParam(r, "view")
	change, err := s.Engine.Schema(db, branch).DropView(r.Context(), view)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Database string `json:"database"`
		Branch   string `json:"branch"`
		Tenant   string `json:"tenant"`
		SQL      string `json:"sql"`
		Write    bool   `json:"write"`
		Args     []any  `json:"args"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cc := model.ConnContext{Database: req.Database, Branch: req.Branch, Tenant: req.Tenant}
	q := s.Engine.Query()
	if req.Write {
		n, err := q.ExecuteWrite(r.Context(), cc, req.SQL, req.Args...)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"rows_affected": n})
		return
	}
	rows, err := q.Execute(r.Context(), cc, req.SQL, req.Args...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
