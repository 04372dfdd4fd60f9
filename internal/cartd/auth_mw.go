package cartd

import (
	"context"
	"net/http"

	"MiniCart/pkg/kit"
)

type ctxKey string

const deviceKey ctxKey = "device"

type Device struct {
	ID string
}

func DeviceFromContext(ctx context.Context) (Device, bool) {
	d, ok := ctx.Value(deviceKey).(Device)
	return d, ok
}

func AuthJWT(tm *TokenMaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := kit.BearerToken(r)
			if !ok {
				kit.WriteError(w, r, http.StatusUnauthorized, "missing token", nil)
				return
			}

			claims, err := tm.Parse(tok)
			if err != nil {
				kit.WriteError(w, r, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), deviceKey, Device{ID: claims.DeviceID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
