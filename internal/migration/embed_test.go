package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	_, err := RunMigrations(nil)
	require.Error(t, err)
}

func TestApplySkipsNonPostgres(t *testing.T) {
	require.NoError(t, Apply(testutil.OpenSQLite(t), config.Config{DBType: "sqlite"}, zap.NewNop()))
}
