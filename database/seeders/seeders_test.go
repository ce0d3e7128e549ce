package seeders_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplepos/shell/database/migrations"
	"github.com/simplepos/shell/database/seeders"
	"github.com/simplepos/shell/pkg/database"
	"github.com/simplepos/shell/pkg/migration"
)

func TestSeedCodeTables_Idempotent(t *testing.T) {
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, migration.New(db, migrations.NativeDatabase, migrations.Native()).Run(ctx))

	var out bytes.Buffer
	require.NoError(t, seeders.RunAll(ctx, db, &out))
	require.NoError(t, seeders.RunAll(ctx, db, nil))
	assert.Contains(t, out.String(), "codetables")
	assert.Contains(t, seeders.Names(), "codetables")

	var codes, translations int64
	require.NoError(t, db.Table("code_table").Count(&codes).Error)
	require.NoError(t, db.Table("code_translation").Count(&translations).Error)
	assert.Equal(t, int64(len(seeders.CodeTables)), codes)
	assert.Equal(t, 2*codes, translations)

	var label string
	require.NoError(t, db.Raw(`
		SELECT t.label FROM code_translation t
		JOIN code_table c ON c.id = t.codeTableId
		WHERE c.codeType = 'ORDER_STATUS' AND c.code = 'CANCELLED' AND t.language = 'sq'`).Row().Scan(&label))
	assert.Equal(t, "I Anuluar", label)

	var sortOrder int
	require.NoError(t, db.Raw(`SELECT sortOrder FROM code_table WHERE codeType = 'USER_ROLE' AND code = 'DRIVER'`).Row().Scan(&sortOrder))
	assert.Equal(t, 4, sortOrder)
}
