package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/edusphere/courseline/internal/domain"
)

var _ domain.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, name, role, profile_picture
		FROM users
        WHERE id = $1
        `
	var u domain.User
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		err = tx.QueryRowxContext(ctx, query, id).StructScan(&u)
	} else {
		err = r.db.QueryRowxContext(ctx, query, id).StructScan(&u)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetForToken resolves a hashed bearer token to its user. Token issuance
// lives with the auth collaborator; this repo only verifies.
func (r *UserRepository) GetForToken(ctx context.Context, tokenHash []byte) (*domain.User, error) {
	query := `
		SELECT u.id, u.name, u.role, u.profile_picture
		FROM users u
		    INNER JOIN tokens t ON t.user_id = u.id
		WHERE t.hash = $1 AND t.expiry > $2
		`
	var u domain.User
	var err error
	if tx := contextGetTX(ctx); tx != nil {
		err = tx.QueryRowxContext(ctx, query, tokenHash, time.Now()).StructScan(&u)
	} else {
		err = r.db.QueryRowxContext(ctx, query, tokenHash, time.Now()).StructScan(&u)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &u, nil
}
