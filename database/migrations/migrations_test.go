package migrations_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplepos/shell/database/migrations"
	"github.com/simplepos/shell/pkg/database"
	"github.com/simplepos/shell/pkg/migration"
)

func TestNativeSet(t *testing.T) {
	var ups []migration.Migration
	for _, m := range migration.For(migrations.NativeDatabase) {
		if m.Kind == migration.Up {
			ups = append(ups, m)
		}
	}
	require.Len(t, ups, 2)
	assert.Equal(t, int64(1), ups[0].Version)
	assert.Equal(t, "create initial tables", ups[0].Description)
	assert.Equal(t, int64(2), ups[1].Version)
	assert.Equal(t, "complete schema", ups[1].Description)
}

func TestBistroSet(t *testing.T) {
	var ups []migration.Migration
	for _, m := range migration.For(migrations.BistroDatabase) {
		if m.Kind == migration.Up {
			ups = append(ups, m)
		}
	}
	require.Len(t, ups, 1)
	assert.Equal(t, "create initial tables", ups[0].Description)
}

func TestNativeSchemaAppliesAndRollsBack(t *testing.T) {
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	ctx := context.Background()

	runner := migration.New(db, migrations.NativeDatabase, migrations.Native())
	require.NoError(t, runner.Run(ctx))
	require.NoError(t, runner.Run(ctx), "re-running is a no-op")

	for _, table := range []string{
		"code_table", "code_translation", "user", "table", "category", "product", "variant",
		"order", "order_item", "extra", "ingredient", "product_extra", "product_ingredient",
		"order_item_extra", "account", "organization",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	// The trigger stamps completedAt once an order is closed.
	require.NoError(t, db.Exec(`INSERT INTO code_table (codeType, code, sortOrder) VALUES
		('ORDER_STATUS', 'OPEN', 1), ('ORDER_STATUS', 'COMPLETED', 6), ('ORDER_TYPE', 'TAKEAWAY', 2),
		('USER_ROLE', 'ADMIN', 1)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO user (name, roleId, pinHash) VALUES ('admin', 4, 'x')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO "order" (orderNumber, typeId, statusId, subtotal, tax, total, createdAt, userId)
		VALUES ('A-1', 3, 1, 10, 2, 12, '2026-01-01T10:00:00Z', 1)`).Error)
	require.NoError(t, db.Exec(`UPDATE "order" SET statusId = 2 WHERE orderNumber = 'A-1'`).Error)

	var completedAt sql.NullString
	require.NoError(t, db.Raw(`SELECT completedAt FROM "order" WHERE orderNumber = 'A-1'`).Row().Scan(&completedAt))
	assert.True(t, completedAt.Valid)
	assert.NotEmpty(t, completedAt.String)

	require.NoError(t, runner.Rollback(ctx))
	assert.False(t, db.Migrator().HasTable("code_table"))
}

func TestBistroSchemaApplies(t *testing.T) {
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)

	require.NoError(t, migration.New(db, migrations.BistroDatabase, migrations.Bistro()).Run(context.Background()))
	assert.True(t, db.Migrator().HasTable("product_extra"))
	assert.False(t, db.Migrator().HasTable("order"))
}
