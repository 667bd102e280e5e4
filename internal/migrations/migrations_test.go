package migrations

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elghella/marketplace/internal/domain"
)

func TestListMigrationsInOrder(t *testing.T) {
	list, err := List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, Migration{Version: 1, Name: "schema"}, list[0])
	assert.Equal(t, Migration{Version: 2, Name: "indexes"}, list[1])
	assert.Equal(t, Migration{Version: 3, Name: "seed"}, list[2])
}

func TestEveryUpHasDown(t *testing.T) {
	entries, err := files.ReadDir("sql")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	for name := range names {
		if strings.HasSuffix(name, ".up.sql") {
			assert.True(t, names[strings.TrimSuffix(name, ".up.sql")+".down.sql"], name)
		}
	}
}

// The schema must define every column the domain types read and write.
func TestSchemaMatchesDomainTables(t *testing.T) {
	raw, err := files.ReadFile("sql/000001_schema.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	tables := map[string][]string{
		domain.EquipmentTable.Name:       domain.EquipmentTable.Columns,
		domain.AnimalTable.Name:          domain.AnimalTable.Columns,
		domain.LandTable.Name:            domain.LandTable.Columns,
		domain.VegetableTable.Name:       domain.VegetableTable.Columns,
		domain.NurseryTable.Name:         domain.NurseryTable.Columns,
		domain.LaborTable.Name:           domain.LaborTable.Columns,
		domain.AnalysisTable.Name:        domain.AnalysisTable.Columns,
		domain.DeliveryTable.Name:        domain.DeliveryTable.Columns,
		domain.ProfileTable.Name:         domain.ProfileTable.Columns,
		domain.MessageTable.Name:         domain.MessageTable.Columns,
		domain.CategoryTable.Name:        domain.CategoryTable.Columns,
		domain.MarketplaceItemTable.Name: domain.MarketplaceItemTable.Columns,
		domain.WebsiteSettingsTable.Name: domain.WebsiteSettingsTable.Columns,
	}
	block := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)
	defined := map[string]string{}
	for _, m := range block.FindAllStringSubmatch(schema, -1) {
		defined[m[1]] = m[2]
	}

	for table, cols := range tables {
		body, ok := defined[table]
		require.True(t, ok, "table %s missing", table)
		for _, col := range cols {
			assert.Regexp(t, `(?m)^\s+`+col+`\s`, body, "%s.%s", table, col)
		}
	}
}

func TestNewRunnerRequiresURL(t *testing.T) {
	_, err := NewRunner(" ", nil)
	assert.Error(t, err)
}
