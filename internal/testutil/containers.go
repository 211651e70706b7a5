//go:build integration

// Package testutil starts database containers for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

const (
	mysqlImage       = "mysql:8.0.36"
	postgresImage    = "postgres:16-alpine"
	database         = "mailqueue"
	password         = "secret"
	startupTimeout   = 2 * time.Minute
	mysqlDSNTemplate = "root:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true"
	pgDSNTemplate    = "postgres://postgres:%s@%s:%s/%s?sslmode=disable"
)

// Database is a running container with an open connection pool.
type Database struct {
	Container testcontainers.Container
	DB        *sql.DB
	DSN       string
}

// StartMySQLContainer starts MySQL 8 and returns a pool on the mailqueue database.
// The test is skipped when Docker is unavailable.
func StartMySQLContainer(t *testing.T, ctx context.Context) Database {
	t.Helper()

	return start(t, ctx, "mysql", nat.Port("3306/tcp"), mysqlDSNTemplate, testcontainers.ContainerRequest{
		Image: mysqlImage,
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": password,
			"MYSQL_DATABASE":      database,
		},
	})
}

// StartPostgresContainer starts PostgreSQL and returns a pool on the mailqueue database.
func StartPostgresContainer(t *testing.T, ctx context.Context) Database {
	t.Helper()

	return start(t, ctx, "postgres", nat.Port("5432/tcp"), pgDSNTemplate, testcontainers.ContainerRequest{
		Image: postgresImage,
		Env: map[string]string{
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       database,
		},
	})
}

func start(
	t *testing.T,
	ctx context.Context,
	driver string,
	port nat.Port,
	dsnTemplate string,
	req testcontainers.ContainerRequest,
) Database {
	t.Helper()

	dsnFor := func(host string, p nat.Port) string {
		return fmt.Sprintf(dsnTemplate, password, host, p.Port(), database)
	}
	req.ExposedPorts = []string{string(port)}
	req.WaitingFor = wait.ForSQL(port, driver, dsnFor).WithStartupTimeout(startupTimeout)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start %s container: %v", driver, err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	dsn := dsnFor(host, mappedPort)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return Database{Container: container, DB: db, DSN: dsn}
}
