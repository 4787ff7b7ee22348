package migration_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/smallbiznis/tryon/internal/migration"
	"github.com/smallbiznis/tryon/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm/schema"
)

// MySQL has no uuid type and cannot index or default a TEXT column without a
// key length, so every model must avoid both.
func TestModelsCreatableOnMySQL(t *testing.T) {
	precision := 3
	dialector := mysql.New(mysql.Config{SkipInitializeWithVersion: true, DefaultDatetimePrecision: &precision})

	for _, model := range migration.Models() {
		sch, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
		require.NoError(t, err)

		for _, field := range sch.Fields {
			columnType := strings.ToLower(field.TagSettings["TYPE"])
			if field.DBName == "" || (columnType == "" && field.DataType != schema.String) {
				continue
			}
			column := sch.Table + "." + field.DBName
			if columnType == "" {
				columnType = strings.ToLower(dialector.DataTypeOf(field))
			}
			assert.NotContains(t, columnType, "uuid", column)

			_, indexed := field.TagSettings["INDEX"]
			_, unique := field.TagSettings["UNIQUEINDEX"]
			defaulted := field.HasDefaultValue && field.DataType == schema.String
			if indexed || unique || field.PrimaryKey || defaulted {
				assert.NotContains(t, columnType, "text", column)
			}
		}
	}
}

func TestAutoMigrateCreatesSchema(t *testing.T) {
	db := testsupport.OpenDB(t)

	for _, table := range []string{"identities", "credit_transactions", "payment_events", "usage_records"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("payment_events", "ux_payment_events_provider_payment"))
}
