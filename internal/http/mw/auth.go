package mw

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/7and1/robotscraping/internal/service"
)

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "apiKeyAuth"

// APIKeyHeader carries the API key. Authorization: Bearer is accepted as an
// alias for clients that cannot set custom headers.
const APIKeyHeader = "x-api-key"

// HumaAuth returns a Huma middleware that authenticates operations whose
// security lists the API key scheme. With allowAnonymous set, requests
// without any key pass through unauthenticated.
func HumaAuth(api huma.API, authSvc *service.AuthService, allowAnonymous bool) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || !operationRequiresAuth(op) {
			next(ctx)
			return
		}

		presented := presentedKey(ctx)
		if presented == "" {
			if allowAnonymous {
				next(ctx)
				return
			}
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing API key")
			return
		}

		key, err := authSvc.Authenticate(ctx.Context(), presented)
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				huma.WriteErr(api, ctx, http.StatusUnauthorized, "invalid or inactive API key")
				return
			}
			huma.WriteErr(api, ctx, http.StatusInternalServerError, "authentication unavailable")
			return
		}

		next(huma.WithContext(ctx, WithAPIKey(ctx.Context(), key)))
	}
}

func presentedKey(ctx huma.Context) string {
	if key := ctx.Header(APIKeyHeader); key != "" {
		return key
	}
	auth := ctx.Header("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func operationRequiresAuth(op *huma.Operation) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[SecurityScheme]; ok {
			return true
		}
	}
	return false
}
