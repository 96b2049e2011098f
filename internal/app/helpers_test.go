package app

import (
	"context"

	"github.com/estatecrm/estatecrm/internal/rbac"
)

type allowAll struct{}

func (allowAll) CheckPermission(context.Context, rbac.Request) (rbac.Decision, error) {
	return rbac.Decision{Granted: true, Reason: rbac.ReasonGranted}, nil
}

func allowAllMiddleware() rbac.Middleware {
	return rbac.Middleware{Checker: allowAll{}}
}
