//go:build integration

// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"expohub/internal/db"
)

// Start runs postgres, applies the schema and returns the pool plus a purge func.
func Start() (*pgxpool.Pool, func()) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not construct docker pool: %s", err)
	}
	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("could not connect to docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=expohub",
			"POSTGRES_PASSWORD=expohub",
			"POSTGRES_DB=expohub",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("could not start postgres: %s", err)
	}
	_ = resource.Expire(180)

	dsn := fmt.Sprintf("postgres://expohub:expohub@%s/expohub?sslmode=disable", resource.GetHostPort("5432/tcp"))

	var pg *pgxpool.Pool
	pool.MaxWait = 90 * time.Second
	if err := pool.Retry(func() error {
		var errRetry error
		pg, errRetry = db.Open(context.Background(), dsn)
		return errRetry
	}); err != nil {
		_ = pool.Purge(resource)
		log.Fatalf("could not connect to postgres: %s", err)
	}

	if err := db.Migrate(context.Background(), pg); err != nil {
		pg.Close()
		_ = pool.Purge(resource)
		log.Fatalf("migrate: %s", err)
	}

	return pg, func() {
		pg.Close()
		if err := pool.Purge(resource); err != nil {
			log.Printf("could not purge postgres: %s", err)
		}
	}
}

// CreateUser inserts a bare user row and returns its id.
func CreateUser(ctx context.Context, d db.DB, email string) (string, error) {
	var id string
	err := d.QueryRow(ctx,
		`INSERT INTO users (email, username, password_hash) VALUES ($1, $1, 'x') RETURNING id::text`,
		email,
	).Scan(&id)
	return id, err
}
