package migrate

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicescript/collector/migrations"
)

func TestParseFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		file        string
		version     string
		description string
		ok          bool
	}{
		{"standard", "V001__initial_schema.sql", "001", "initial schema", true},
		{"large version", "V12__add_column.sql", "12", "add column", true},
		{"missing prefix", "001__initial.sql", "", "", false},
		{"single underscore", "V1_initial.sql", "", "", false},
		{"wrong extension", "V1__initial.txt", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, description, ok := ParseFileName(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.description, description)
		})
	}
}

func TestLoad_SortsNumerically(t *testing.T) {
	t.Parallel()

	source := fstest.MapFS{
		"V10__ten.sql":  {Data: []byte("SELECT 10;")},
		"V2__two.sql":   {Data: []byte("SELECT 2;")},
		"V1__one.sql":   {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("ignored")},
		"bad_name.sql":  {Data: []byte("ignored")},
		"migrations.go": {Data: []byte("package migrations")},
	}

	loaded, err := Load(source)
	require.NoError(t, err)

	var names []string
	for _, m := range loaded {
		names = append(names, m.ScriptName)
	}
	want := []string{"V1__one.sql", "V2__two.sql", "V10__ten.sql"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("Load order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Checksum([]byte("SELECT 1;")), loaded[0].Checksum)
}

func TestLoad_DuplicateVersion(t *testing.T) {
	t.Parallel()

	source := fstest.MapFS{
		"V1__one.sql":   {Data: []byte("SELECT 1;")},
		"V001__dup.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := Load(source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version")
}

func TestPending(t *testing.T) {
	t.Parallel()

	all := []Migration{
		{Version: "001", ScriptName: "V001__a.sql", Checksum: "aaa"},
		{Version: "002", ScriptName: "V002__b.sql", Checksum: "bbb"},
		{Version: "003", ScriptName: "V003__c.sql", Checksum: "ccc"},
	}

	t.Run("skips applied", func(t *testing.T) {
		applied := map[string]AppliedMigration{"001": {Version: "001", Checksum: "aaa"}}
		pending, err := Pending(all, applied)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "002", pending[0].Version)
		assert.Equal(t, "003", pending[1].Version)
	})

	t.Run("modified applied migration", func(t *testing.T) {
		applied := map[string]AppliedMigration{"002": {Version: "002", Checksum: "changed"}}
		_, err := Pending(all, applied)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrChecksumMismatch))
		assert.Contains(t, err.Error(), "V002__b.sql")
	})

	t.Run("nothing applied", func(t *testing.T) {
		pending, err := Pending(all, nil)
		require.NoError(t, err)
		assert.Len(t, pending, 3)
	})
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	t.Parallel()

	loaded, err := Load(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, loaded)
	assert.Equal(t, "001", loaded[0].Version)

	for _, m := range loaded {
		assert.NotEmpty(t, SplitStatements(m.SQL), "migration %s has no statements", m.ScriptName)
	}
}
