package auth

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// BasicAuth guards administration routes with a single user whose password is
// stored as a bcrypt hash. The authenticated user name is put in the request context.
func BasicAuth(realm, user, passHash string, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	challenge := `Basic realm="` + realm + `", charset="UTF-8"`
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || !validCredentials(user, passHash, u, p) {
				if ok {
					log.Warn("admin authentication failed", zap.String("user", u), zap.String("remote", r.RemoteAddr))
				}
				w.Header().Set("WWW-Authenticate", challenge)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), u)))
		})
	}
}

func validCredentials(wantUser, passHash, user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(wantUser), []byte(user)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(passHash), []byte(pass)) == nil
	return userOK && passOK
}
