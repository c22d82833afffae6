package auth

import "net/http"

type AuthenticateMiddleware struct {
	Secret []byte
}

func (m *AuthenticateMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := VerifyUser(r, m.Secret); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
