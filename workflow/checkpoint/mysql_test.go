package checkpoint

import (
	"os"
	"testing"
)

// MySQL tests run only when TEST_MYSQL_DSN points at a reachable database,
// e.g. "root:root@tcp(127.0.0.1:3306)/workflow_test".
func newTestMySQLStore(t *testing.T) *MySQLStore {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping MySQL tests: TEST_MYSQL_DSN not set")
	}
	store, err := NewMySQLStore(dsn)
	if err != nil {
		t.Fatalf("NewMySQLStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMySQLStoreConformance(t *testing.T) {
	runStoreConformance(t, newTestMySQLStore(t))
}

func TestMySQLStoreInvalidDSN(t *testing.T) {
	if os.Getenv("TEST_MYSQL_DSN") == "" {
		t.Skip("skipping MySQL tests: TEST_MYSQL_DSN not set")
	}
	if _, err := NewMySQLStore("user:pass@tcp(127.0.0.1:1)/nope"); err == nil {
		t.Error("unreachable DSN should fail")
	}
}
