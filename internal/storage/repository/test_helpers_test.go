package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/giftspark/giftspark/internal/migrations"
	"github.com/giftspark/giftspark/internal/models"
)

// setupTestDatabase starts a throwaway PostgreSQL container, applies the
// migrations and returns a connected Storage plus a cleanup func.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "testdb",
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(nat.Port("5432/tcp")),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(3 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port("5432/tcp"))
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable",
		host, port.Port())

	// The container may report ready before it accepts connections.
	var storage *Storage
	for i := 0; i < 10; i++ {
		storage, err = New(connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	cleanup := func() {
		_ = storage.DB.Close()
		_ = container.Terminate(ctx)
	}
	return storage, cleanup
}

// TestDataFactory inserts fixture rows directly, bypassing the repository
// methods under test.
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory creates a factory bound to the given storage.
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser inserts a verified user and returns its generated UID.
func (f *TestDataFactory) CreateUser(t *testing.T, email string) string {
	var uid string
	err := f.storage.DB.QueryRow(`INSERT INTO users (email, password_hash, email_verified)
		VALUES ($1, $2, TRUE) RETURNING uid`,
		email, "hashedpassword").Scan(&uid)
	require.NoError(t, err)
	return uid
}

// CreateSubscription inserts a subscription row and returns its id.
func (f *TestDataFactory) CreateSubscription(t *testing.T, userUID string, plan models.Plan,
	status models.SubscriptionStatus, startDate, endDate time.Time, autoRenew bool) int {
	var id int
	err := f.storage.DB.QueryRow(`INSERT INTO subscriptions
		(user_uid, plan, status, start_date, end_date, auto_renew)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		userUID, plan, status, startDate, endDate, autoRenew).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateCoupon inserts a coupon row and returns its id.
func (f *TestDataFactory) CreateCoupon(t *testing.T, code string, discountType models.DiscountType,
	discountValue int64, maxUses int, active bool) int {
	var id int
	err := f.storage.DB.QueryRow(`INSERT INTO coupons
		(code, discount_type, discount_value, valid_from, valid_until, max_uses, active)
		VALUES ($1, $2, $3, NOW() - INTERVAL '1 day', NOW() + INTERVAL '30 days', $4, $5)
		RETURNING id`,
		code, discountType, discountValue, maxUses, active).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateSession inserts a session row and returns its id.
func (f *TestDataFactory) CreateSession(t *testing.T, userUID string, expiresAt time.Time) string {
	id := uuid.New().String()
	_, err := f.storage.DB.Exec(`INSERT INTO sessions (id, user_uid, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, '127.0.0.1', 'test-agent')`,
		id, userUID, expiresAt)
	require.NoError(t, err)
	return id
}

// UserPlan reads the denormalized plan column of a user.
func (f *TestDataFactory) UserPlan(t *testing.T, userUID string) string {
	var plan string
	err := f.storage.DB.QueryRow(`SELECT plan FROM users WHERE uid = $1`, userUID).Scan(&plan)
	require.NoError(t, err)
	return plan
}

// CouponUses reads the usage counter of a coupon.
func (f *TestDataFactory) CouponUses(t *testing.T, id int) int {
	var uses int
	err := f.storage.DB.QueryRow(`SELECT uses FROM coupons WHERE id = $1`, id).Scan(&uses)
	require.NoError(t, err)
	return uses
}

// CountRows counts rows in table matching the user.
func (f *TestDataFactory) CountRows(t *testing.T, table, userUID string) int {
	var count int
	err := f.storage.DB.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE user_uid = $1`, table), userUID).Scan(&count)
	require.NoError(t, err)
	return count
}
