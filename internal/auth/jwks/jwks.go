// Package jwks publishes the tool's public keys so platforms can verify the
// deep-linking responses and client assertions it signs.
package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
)

// Lister returns every registered tool deployment.
type Lister interface {
	List(ctx context.Context) ([]deployment.ToolDeployment, error)
}

// Build returns a key set with the public half of each deployment key. The kid
// of each key is the deployment id. Deployments whose key cannot be parsed are skipped.
func Build(deps []deployment.ToolDeployment, log *zap.Logger) (jwk.Set, error) {
	if log == nil {
		log = zap.NewNop()
	}
	set := jwk.NewSet()
	for _, td := range deps {
		priv, err := deployment.ParsePrivateKey(td.PrivateKey)
		if err != nil {
			log.Warn("skipping deployment key", zap.String("id", td.ID), zap.Error(err))
			continue
		}
		key, err := jwk.Import(&priv.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("jwks: import key %s: %w", td.ID, err)
		}
		if err := key.Set(jwk.KeyIDKey, td.ID); err != nil {
			return nil, err
		}
		if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
			return nil, err
		}
		if err := key.Set(jwk.AlgorithmKey, td.SignatureAlgorithm); err != nil {
			return nil, err
		}
		if err := set.AddKey(key); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func Handler(src Lister, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		deps, err := src.List(r.Context())
		if err != nil {
			log.Error("list deployments for jwks", zap.Error(err))
			http.Error(w, "key set unavailable", http.StatusInternalServerError)
			return
		}
		set, err := Build(deps, log)
		if err != nil {
			log.Error("build jwks", zap.Error(err))
			http.Error(w, "key set unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = json.NewEncoder(w).Encode(set)
	}
}
