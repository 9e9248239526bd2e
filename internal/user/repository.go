package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Repository defines the interface for access key persistence.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByKey(ctx context.Context, key string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed user repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Register creates a user called name with a freshly generated key.
func (r *SQLiteRepository) Register(ctx context.Context, name string) (*User, error) {
	u := &User{Name: name}
	if err := r.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

const userColumns = "key, name, created_at"

// Create inserts u, generating its Key when empty. CreatedAt is stamped
// at second precision to match what is stored.
func (r *SQLiteRepository) Create(ctx context.Context, u *User) error {
	if u.Key == "" {
		u.Key = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC().Truncate(time.Second)

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?)",
		u.Key, u.Name, u.CreatedAt.Format(time.RFC3339),
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", ErrKeyExists, u.Key)
	default:
		return fmt.Errorf("inserting user: %w", err)
	}
}

// GetByKey returns the user holding key, or ErrUserNotFound.
func (r *SQLiteRepository) GetByKey(ctx context.Context, key string) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE key = ?", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// List returns all users, oldest first. It never returns a nil slice.
func (r *SQLiteRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Count returns the number of registered keys.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// scanUser reads one row from *sql.Row or *sql.Rows. sql.ErrNoRows is
// passed through unwrapped.
func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u       User
		created string
	)
	switch err := row.Scan(&u.Key, &u.Name, &created); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created) //nolint:errcheck // zero time on a hand-edited row
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
