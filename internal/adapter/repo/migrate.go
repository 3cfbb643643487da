package repo

import (
	"context"

	"agrinix/internal/infra"
	"agrinix/internal/sqlinline"
)

// Migrate creates the detection schema if it does not exist yet.
func Migrate(ctx context.Context, sql infra.SQLExecutor) error {
	_, err := sql.Exec(ctx, sqlinline.QMigrateSchema)
	return classify("migrate schema", err)
}
