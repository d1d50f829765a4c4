package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutriscan/nutriscan/internal/domain/user"
	"github.com/nutriscan/nutriscan/internal/security"
)

type UsersRepo struct {
	pool    *pgxpool.Pool
	cipher  *security.FieldCipher
	metrics Metrics
}

func NewUsersRepo(pool *pgxpool.Pool, cipher *security.FieldCipher, metrics Metrics) *UsersRepo {
	return &UsersRepo{pool: pool, cipher: cipher, metrics: metrics}
}

const userColumns = `id, email, password_hash, first_name, last_name, date_of_birth,
	email_verified, verification_token, verification_expires,
	reset_token, reset_expires, last_login, is_active, created_at, updated_at`

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	enc, err := r.encrypt(u)

	if err != nil {
		return err
	}

	return observe(r.metrics, "users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, first_name, last_name, date_of_birth,
				email_verified, verification_token, verification_expires,
				reset_token, reset_expires, last_login, is_active, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			enc.ID, enc.Email, enc.PasswordHash, enc.FirstName, enc.LastName, enc.DateOfBirth,
			enc.EmailVerified, enc.VerificationToken, enc.VerificationExpires,
			enc.ResetToken, enc.ResetExpires, enc.LastLogin, enc.IsActive, enc.CreatedAt, enc.UpdatedAt,
		)

		var pgErr *pgconn.PgError

		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return user.ErrEmailTaken
		}

		return err
	})
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_email", `WHERE email = $1`, user.NormalizeEmail(email))
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_id", `WHERE id = $1`, id)
}

func (r *UsersRepo) GetByVerificationToken(ctx context.Context, token string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_verification_token",
		`WHERE verification_token = $1 AND verification_expires > NOW()`, token)
}

func (r *UsersRepo) GetByResetToken(ctx context.Context, token string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_reset_token",
		`WHERE reset_token = $1 AND reset_expires > NOW()`, token)
}

// Update writes every mutable column back. Callers load, mutate the domain
// value, then save it whole.
func (r *UsersRepo) Update(ctx context.Context, u user.User) error {
	enc, err := r.encrypt(u)

	if err != nil {
		return err
	}

	return observe(r.metrics, "users.update", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users
			 SET email = $2,
			     password_hash = $3,
			     first_name = $4,
			     last_name = $5,
			     date_of_birth = $6,
			     email_verified = $7,
			     verification_token = $8,
			     verification_expires = $9,
			     reset_token = $10,
			     reset_expires = $11,
			     last_login = $12,
			     is_active = $13,
			     updated_at = NOW()
			 WHERE id = $1`,
			enc.ID, enc.Email, enc.PasswordHash, enc.FirstName, enc.LastName, enc.DateOfBirth,
			enc.EmailVerified, enc.VerificationToken, enc.VerificationExpires,
			enc.ResetToken, enc.ResetExpires, enc.LastLogin, enc.IsActive,
		)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}

		return nil
	})
}

// Delete removes the user row; assessments and the consent record go with it
// via ON DELETE CASCADE.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	return observe(r.metrics, "users.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}

		return nil
	})
}

func (r *UsersRepo) getBy(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User

	err := observe(r.metrics, op, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users `+where, arg,
		).Scan(
			&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.DateOfBirth,
			&u.EmailVerified, &u.VerificationToken, &u.VerificationExpires,
			&u.ResetToken, &u.ResetExpires, &u.LastLogin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}

	r.decrypt(&u)

	return u, nil
}

// encrypt returns a copy with the protected fields sealed. The email stays
// plaintext because the unique index and login lookups need it.
func (r *UsersRepo) encrypt(u user.User) (user.User, error) {
	var err error

	if u.FirstName, err = r.cipher.Encrypt(u.FirstName); err != nil {
		return user.User{}, err
	}

	if u.LastName, err = r.cipher.Encrypt(u.LastName); err != nil {
		return user.User{}, err
	}

	if u.DateOfBirth != nil {
		dob, err := r.cipher.Encrypt(*u.DateOfBirth)

		if err != nil {
			return user.User{}, err
		}

		u.DateOfBirth = &dob
	}

	return u, nil
}

func (r *UsersRepo) decrypt(u *user.User) {
	u.FirstName = r.cipher.Decrypt(u.FirstName)
	u.LastName = r.cipher.Decrypt(u.LastName)

	if u.DateOfBirth != nil {
		dob := r.cipher.Decrypt(*u.DateOfBirth)
		u.DateOfBirth = &dob
	}
}
