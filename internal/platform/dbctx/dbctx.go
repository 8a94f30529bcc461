// Package dbctx bundles a request context with an optional in-flight GORM
// transaction, so repo methods can participate in a caller's transaction
// without every signature growing a *gorm.DB parameter.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
