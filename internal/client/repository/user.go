package repository

import (
	"database/sql"
	"errors"

	"github.com/edusphere/courseline/internal/domain"
)

type LocalUserRepository struct {
	db *DB
}

func newLocalUserRepository(db *DB) LocalUserRepository {
	return LocalUserRepository{db}
}

// SaveCurrentUser keeps a single row, the logged-in account.
func (r LocalUserRepository) SaveCurrentUser(u *domain.User) error {
	query := `
		INSERT INTO users (id, name, role, profile_picture)
		VALUES (:id, :name, :role, :profile_picture)
		ON CONFLICT (id) DO UPDATE
		    SET name = excluded.name, role = excluded.role, profile_picture = excluded.profile_picture
	`
	if _, err := r.db.Exec(`DELETE FROM users WHERE id <> $1`, u.ID); err != nil {
		return err
	}
	_, err := r.db.NamedExec(query, u)
	return err
}

func (r LocalUserRepository) GetCurrentUser() (*domain.User, error) {
	query := `
		SELECT id, name, role, profile_picture FROM users LIMIT 1
	`
	var u domain.User
	if err := r.db.QueryRowx(query).StructScan(&u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &u, nil
}
