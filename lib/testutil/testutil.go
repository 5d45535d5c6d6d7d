package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/Jill09166/facebook-group-post-scraper/lib/telemetry"

	_ "modernc.org/sqlite"
)

type Params struct {
	Name string
	// if unspecified, it will skip setting up a db
	DbSchema string
}

type Result struct {
	DB *sql.DB
}

// Setup wires telemetry for a test and, when a schema is given, an
// in-memory sqlite database with it applied.
func Setup(t testing.TB, params Params) (Result, func()) {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))

	if params.DbSchema == "" {
		return Result{}, cleanup
	}

	sqlite, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	_, err = sqlite.Exec(params.DbSchema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}

	return Result{DB: sqlite}, func() {
		sqlite.Close()
		cleanup()
	}
}
