package auth

import (
	"encoding/json"
	"net/http"
)

// RequireBearer returns middleware that rejects requests without a valid
// bearer token. Intended for the operator API's mutating routes; read
// routes are left unauthenticated per the operator API's design.
func RequireBearer(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r.Header.Get("Authorization"))
			if token == "" {
				writeUnauthorized(w, ErrMissingToken)
				return
			}

			if _, err := v.ValidateToken(token); err != nil {
				writeUnauthorized(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}
