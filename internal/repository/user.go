package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voicescript/collector/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailExists      = errors.New("email already exists")
	ErrGoogleIDAssigned = errors.New("google account already linked")
)

const userColumns = `id, email, password_hash, first_name, last_name, role,
	gender, age_group, google_id, profile_picture, auth_provider, created_at`

// CreateUser inserts a new user and fills in its ID and creation time.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	if user.Role == "" {
		user.Role = model.RoleProvider
	}
	if user.AuthProvider == "" {
		user.AuthProvider = model.AuthProviderLocal
	}

	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, role,
			gender, age_group, google_id, profile_picture, auth_provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		nullString(user.Gender),
		nullString(user.AgeGroup),
		user.GoogleID,
		nullString(user.ProfilePicture),
		user.AuthProvider,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getUser(ctx, "id = $1", id)
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, "email = $1", email)
}

// GetUserByGoogleID retrieves a user by their Google subject ID.
func (r *Repository) GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.getUser(ctx, "google_id = $1", googleID)
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers returns all users, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// LinkGoogleAccount attaches a Google identity to an existing user.
func (r *Repository) LinkGoogleAccount(ctx context.Context, userID int64, googleID, picture string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users
		SET google_id = $2, profile_picture = COALESCE($3, profile_picture), auth_provider = $4
		WHERE id = $1
	`, userID, googleID, nullString(picture), model.AuthProviderGoogle)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrGoogleIDAssigned
		}
		return fmt.Errorf("failed to link google account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUser persists name, email and demographic fields.
func (r *Repository) UpdateUser(ctx context.Context, user *model.User) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, email = $4, gender = $5, age_group = $6
		WHERE id = $1
	`, user.ID, user.FirstName, user.LastName, user.Email, nullString(user.Gender), nullString(user.AgeGroup))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUserRole changes a user's role.
func (r *Repository) UpdateUserRole(ctx context.Context, userID int64, role model.Role) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUserPassword replaces the password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, userID int64, hash string) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUsersByEmail removes the given accounts and returns how many existed.
func (r *Repository) DeleteUsersByEmail(ctx context.Context, emails []string) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE email = ANY($1)`, emails)
	if err != nil {
		return 0, fmt.Errorf("failed to delete users: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountUsersByRole returns the number of users holding each role.
// Roles with no users are reported as zero.
func (r *Repository) CountUsersByRole(ctx context.Context) (map[model.Role]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("failed to count users by role: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Role]int64, len(model.ValidRoles))
	for _, role := range model.ValidRoles {
		counts[role] = 0
	}
	for rows.Next() {
		var role model.Role
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("failed to scan role count: %w", err)
		}
		counts[role] = n
	}
	return counts, rows.Err()
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u                            model.User
		gender, ageGroup, pictureURL *string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&gender,
		&ageGroup,
		&u.GoogleID,
		&pictureURL,
		&u.AuthProvider,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Gender = derefString(gender)
	u.AgeGroup = derefString(ageGroup)
	u.ProfilePicture = derefString(pictureURL)
	return &u, nil
}
