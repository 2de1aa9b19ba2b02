package echoapi

import (
	"bytes"
	"io"
	"io/ioutil"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core/audit"
	"github.com/pinhaljunior/aventureiros/core/user"
)

const maxAuditBody = 64 << 10

// roleMiddleware resolves the role the request runs as and rejects users with none of `roles`.
// With no roles, any active user passes. The token's active role is kept when allowed; otherwise the
// first available allowed role is used.
func roleMiddleware(svc user.Service, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			usr, err := getContextUser(ctx, svc, claims)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsActive {
				return errAccountInactive
			}

			active, ok := user.ResolveActiveRole(user.AvailableRoles(usr), claims.ActiveRole, roles)
			if !ok {
				return errHttpForbidden
			}
			ctx.Set(contextRoleKey, active)
			return next(ctx)
		}
	}
}

// auditMiddleware stores one activity log per request.
func auditMiddleware(svc audit.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if audit.Skip(req.URL.Path) {
				return next(ctx)
			}

			contentType := req.Header.Get(echo.HeaderContentType)
			var body []byte
			if req.Body != nil && strings.Contains(strings.ToLower(contentType), "json") {
				body, _ = ioutil.ReadAll(io.LimitReader(req.Body, maxAuditBody))
				req.Body = ioutil.NopCloser(io.MultiReader(bytes.NewReader(body), req.Body))
			}

			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			res := ctx.Response()
			entry := audit.Log{
				Method:     req.Method,
				Path:       req.URL.Path,
				ViewName:   ctx.Path(),
				Referer:    req.Referer(),
				IP:         audit.ClientIP(req.Header.Get(echo.HeaderXForwardedFor), req.RemoteAddr),
				UserAgent:  req.UserAgent(),
				StatusCode: res.Status,
				Success:    err == nil && res.Status < 400,
				DurationMS: int(time.Since(start) / time.Millisecond),
				Payload:    audit.BuildPayload(req.URL.Query(), req.PostForm, contentType, body),
				CreatedAt:  start.UTC(),
			}
			if err != nil {
				entry.Message = err.Error()
			}
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				if id := claims.UserID(); id > 0 {
					entry.UserID = &id
				}
			}
			svc.Record(req.Context(), entry)
			return nil
		}
	}
}
