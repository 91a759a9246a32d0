// internal/api/http/admin.go
package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/mind-engage/mindengage-lti-tool/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

// MountAdmin registers tool deployment administration under r:
//
//	GET    /                 list; filter with ?issuer=&clientId=&deploymentId=
//	POST   /                 register
//	GET    /{id}
//	DELETE /{id}
func MountAdmin(r chi.Router, svc *deployment.Service, log *zap.Logger) {
	r.Get("/", listDeploymentsHandler(svc, log))
	r.Post("/", registerDeploymentHandler(svc, log))
	r.Get("/{id}", getDeploymentHandler(svc, log))
	r.Delete("/{id}", deleteDeploymentHandler(svc, log))
}

func listDeploymentsHandler(svc *deployment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		issuer := strings.TrimSpace(q.Get("issuer"))
		clientID := strings.TrimSpace(q.Get("clientId"))
		deploymentID := strings.TrimSpace(q.Get("deploymentId"))

		var (
			list []deployment.ToolDeployment
			err  error
		)
		switch {
		case issuer == "" && (clientID != "" || deploymentID != ""):
			writeErr(w, http.StatusBadRequest, CodeBadRequest, "issuer is required when filtering")
			return
		case deploymentID != "" && clientID == "":
			writeErr(w, http.StatusBadRequest, CodeBadRequest, "clientId is required with deploymentId")
			return
		case deploymentID != "":
			var td *deployment.ToolDeployment
			td, err = svc.Find(r.Context(), deploymentID, clientID, issuer)
			if td != nil {
				list = []deployment.ToolDeployment{*td}
			}
		case clientID != "":
			list, err = svc.FindByClientIDIssuer(r.Context(), clientID, issuer)
		case issuer != "":
			list, err = svc.FindByIssuer(r.Context(), issuer)
		default:
			list, err = svc.List(r.Context())
		}
		if err != nil {
			writeError(w, log, err)
			return
		}
		if list == nil {
			list = []deployment.ToolDeployment{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func registerDeploymentHandler(svc *deployment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in deployment.RegisterInput
		if !decodeJSON(w, r, &in) {
			return
		}
		td, err := svc.Register(r.Context(), in)
		if err != nil {
			writeError(w, log, err)
			return
		}
		log.Info("admin registered tool deployment",
			zap.String("admin", authmw.AdminFromContext(r.Context())),
			zap.String("id", td.ID))
		w.Header().Set("Location", strings.TrimRight(r.URL.Path, "/")+"/"+td.ID)
		writeJSON(w, http.StatusCreated, td)
	}
}

func getDeploymentHandler(svc *deployment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		td, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		if td == nil {
			writeErr(w, http.StatusNotFound, CodeNotFound, "tool deployment not found")
			return
		}
		writeJSON(w, http.StatusOK, td)
	}
}

func deleteDeploymentHandler(svc *deployment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.Unregister(r.Context(), id); err != nil {
			writeError(w, log, err)
			return
		}
		log.Info("admin removed tool deployment",
			zap.String("admin", authmw.AdminFromContext(r.Context())),
			zap.String("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}
