//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// testDSNEnv points the suite at an existing database instead of a container.
const testDSNEnv = "ELVERRA_TEST_DATABASE_URL"

// membershipTables lists every table the schema creates, children first.
var membershipTables = []string{
	"token_transactions",
	"token_accounts",
	"payments",
	"membership_cards",
	"membership_subscriptions",
	"membership_pricing",
	"membership_cycles",
	"membership_products",
}

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runIntegration(m))
}

func runIntegration(m *testing.M) int {
	ctx := context.Background()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		id, started, err := startMembershipDB()
		if err != nil {
			logger.Error().Err(err).Msg("start postgres container (is docker running?)")
			return 1
		}
		defer func() {
			if err := exec.Command("docker", "stop", id).Run(); err != nil {
				logger.Warn().Err(err).Str("container", id).Msg("stop postgres container")
			}
		}()
		dsn = started
	}

	pool, err := waitForPool(ctx, dsn, 30*time.Second, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("connect to test database")
		return 1
	}
	defer pool.Close()
	testPool = pool

	if err := applyMembershipSchema(ctx, pool); err != nil {
		logger.Error().Err(err).Msg("apply schema")
		return 1
	}
	logger.Info().Msg("membership schema ready")
	return m.Run()
}

// startMembershipDB runs a throwaway postgres bound to a random loopback port
// and returns its container id and DSN.
func startMembershipDB() (string, string, error) {
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_DB=elverra_test",
		"-e", "POSTGRES_USER=elverra",
		"-e", "POSTGRES_PASSWORD=elverra",
		"postgres:16-alpine",
	).Output()
	if err != nil {
		return "", "", fmt.Errorf("docker run: %w", err)
	}
	id := strings.TrimSpace(string(out))
	if len(id) > 12 {
		id = id[:12]
	}

	port, err := exec.Command("docker", "port", id, "5432/tcp").Output()
	if err != nil {
		_ = exec.Command("docker", "stop", id).Run()
		return "", "", fmt.Errorf("docker port: %w", err)
	}
	// "127.0.0.1:49153", possibly followed by an IPv6 line
	hostPort := strings.TrimSpace(strings.SplitN(string(port), "\n", 2)[0])
	return id, fmt.Sprintf("postgres://elverra:elverra@%s/elverra_test?sslmode=disable", hostPort), nil
}

func waitForPool(ctx context.Context, dsn string, within time.Duration, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	deadline := time.Now().Add(within)
	for attempt := 1; ; attempt++ {
		pool, err := pgxpool.Connect(ctx, dsn)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("database not ready after %d attempts: %w", attempt, err)
		}
		logger.Debug().Int("attempt", attempt).Msg("waiting for database")
		time.Sleep(time.Second)
	}
}

// applyMembershipSchema executes deploy/postgres/init.sql from the module root.
func applyMembershipSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := moduleRoot()
	if err != nil {
		return err
	}
	schema, err := os.ReadFile(filepath.Join(root, "deploy", "postgres", "init.sql"))
	if err != nil {
		return fmt.Errorf("read init.sql: %w", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		return fmt.Errorf("exec init.sql: %w", err)
	}
	return nil
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above working directory")
		}
		dir = parent
	}
}

// resetMembershipTables empties the schema between subtests.
func resetMembershipTables(t *testing.T) {
	t.Helper()
	q := "TRUNCATE " + strings.Join(membershipTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := testPool.Exec(context.Background(), q); err != nil {
		t.Fatalf("reset membership tables: %v", err)
	}
}
