package api

import (
	"context"
	"fmt"
	"net/http"
)

// adminUserHeader carries the identity asserted by the upstream gateway.
// The gateway strips the header from external traffic, so its presence
// here is trusted; only the capability check happens locally.
const adminUserHeader = "X-Admin-User"

type contextKey string

const adminUserKey contextKey = "admin-user"

func AdminUser(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(adminUserKey).(string)
	return userId, ok
}

func (s *MeetSignalApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *MeetSignalApp) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := r.Header.Get(adminUserHeader)
		if userId == "" {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		isAdmin, err := s.reg.IsPlatformAdmin(userId)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if !isAdmin {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := context.WithValue(r.Context(), adminUserKey, userId)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
