package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"workhub/server/common/apperr"
	"workhub/server/notify/domain"
)

const pgUniqueViolation = "23505"

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO users(id, name, email, password_hash)
		VALUES($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, user.ID, user.Name, user.Email, user.PasswordHash).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.User{}, apperr.Validation("email %s is already registered", user.Email)
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.Memberships = []domain.Membership{}
	return user, nil
}

const userColumns = `id, name, email, password_hash, active_company_id, COALESCE(refresh_token, ''), refresh_token_expires, created_at, updated_at`

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *UserRepository) getUser(ctx context.Context, sql string, arg string) (domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx, sql, arg).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.ActiveCompanyID,
		&user.RefreshToken, &user.RefreshTokenExpires, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, apperr.NotFound("user")
		}
		return domain.User{}, err
	}
	memberships, err := r.listMemberships(ctx, user.ID)
	if err != nil {
		return domain.User{}, err
	}
	user.Memberships = memberships
	return user, nil
}

func (r *UserRepository) listMemberships(ctx context.Context, userID string) ([]domain.Membership, error) {
	rows, err := r.db.Query(ctx, `SELECT company_id, role, joined_at FROM company_members WHERE user_id=$1 ORDER BY joined_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Membership, 0)
	for rows.Next() {
		var item domain.Membership
		if err := rows.Scan(&item.CompanyID, &item.Role, &item.JoinedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *UserRepository) SetActiveCompany(ctx context.Context, userID, companyID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET active_company_id=$1, updated_at=NOW() WHERE id=$2`, companyID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// SaveRefreshToken overwrites the single stored refresh credential.
func (r *UserRepository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET refresh_token=$1, refresh_token_expires=$2, updated_at=NOW() WHERE id=$3`, token, expiresAt, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (r *UserRepository) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET refresh_token=NULL, refresh_token_expires=NULL, updated_at=NOW() WHERE id=$1`, userID)
	return err
}

// ClearRefreshTokenIfMatch clears the stored credential only while it still
// equals token, so a concurrent login is not undone.
func (r *UserRepository) ClearRefreshTokenIfMatch(ctx context.Context, userID, token string) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE users SET refresh_token=NULL, refresh_token_expires=NULL, updated_at=NOW() WHERE id=$1 AND refresh_token=$2`, userID, token)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *UserRepository) ListCompanyMembers(ctx context.Context, companyID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM company_members WHERE company_id=$1 ORDER BY joined_at`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) CreateCompany(ctx context.Context, company domain.Company) (domain.Company, error) {
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `INSERT INTO companies(id, name) VALUES($1, $2) RETURNING created_at`, company.ID, company.Name).Scan(&company.CreatedAt)
	if err != nil {
		return domain.Company{}, fmt.Errorf("insert company: %w", err)
	}
	return company, nil
}

// AddMember upserts the user's role in the company.
func (r *UserRepository) AddMember(ctx context.Context, companyID, userID string, role domain.Role) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO company_members(company_id, user_id, role)
		VALUES($1, $2, $3)
		ON CONFLICT (company_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, companyID, userID, role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperr.NotFound("company or user")
		}
		return err
	}
	return nil
}
