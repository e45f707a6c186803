package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const templateDB = "settlement_template"

// cluster is one Postgres container shared by every test in the binary.
// testcontainers reaps it when the process exits.
type cluster struct {
	baseDSN string
	admin   *sql.DB
}

var (
	clusterOnce sync.Once
	shared      *cluster
	sharedErr   error
	dbSeq       atomic.Int64
)

// SetupTestDB returns an empty database migrated to the current schema.
// Each call clones a migrated template, so tests never see each other's rows.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	clusterOnce.Do(func() { shared, sharedErr = startCluster(context.Background()) })
	if sharedErr != nil {
		t.Fatalf("start postgres: %v", sharedErr)
	}

	name := fmt.Sprintf("test_%d_%d", os.Getpid(), dbSeq.Add(1))
	if _, err := shared.admin.Exec(`CREATE DATABASE ` + name + ` TEMPLATE ` + templateDB); err != nil {
		t.Fatalf("create database %s: %v", name, err)
	}

	db, err := sql.Open("postgres", withDatabase(shared.baseDSN, name))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		if _, err := shared.admin.Exec(`DROP DATABASE IF EXISTS ` + name); err != nil {
			t.Logf("drop database %s: %v", name, err)
		}
	})
	return db
}

func startCluster(ctx context.Context) (*cluster, error) {
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase(templateDB),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("run container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("connection string: %w", err)
	}

	tmpl, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	err = runMigrations(tmpl)
	// CREATE DATABASE ... TEMPLATE fails while the template has sessions.
	tmpl.Close()
	if err != nil {
		return nil, err
	}

	admin, err := sql.Open("postgres", withDatabase(dsn, "postgres"))
	if err != nil {
		return nil, fmt.Errorf("open admin: %w", err)
	}
	admin.SetMaxOpenConns(1)
	return &cluster{baseDSN: dsn, admin: admin}, nil
}

func withDatabase(dsn, name string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	u.Path = "/" + name
	return u.String()
}

func runMigrations(db *sql.DB) error {
	dir := findMigrationsDir()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: %w", err)
	}

	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	for _, f := range ups {
		content, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("runMigrations: %s: %w", f, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("runMigrations: %s: %w", f, err)
		}
	}
	return nil
}

// findMigrationsDir walks up from the package under test to the module root.
func findMigrationsDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "migrations"
	}
	for range 10 {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	return "migrations"
}
