package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/email"
	"github.com/stefchosov/walkdata/internal/errorz"
	"github.com/stefchosov/walkdata/internal/krypto"
)

var (
	// ErrDuplicateUsername indicates the username is already registered.
	ErrDuplicateUsername = errors.New("username already in use")
	// ErrDuplicateEmail indicates the email address is already registered.
	ErrDuplicateEmail = errors.New("email address already in use")
)

// Registration is the input for registering a new user.
type Registration struct {
	Username Username
	Name     string
	Email    email.Address
	Password Password
}

// Credentials is the input for authenticating a user.
type Credentials struct {
	Username Username
	Password Password
}

// Service is the type that provides the main rules for authentication.
type Service struct {
	store Store

	// comparisonHash is used to compare passwords when no user was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store) (*Service, error) {
	// Hash random data so there is always something to compare against.
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(random)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:          s,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}, nil
}

// RegisterUser registers a new user with the provided registration data
// and returns the id of the new user.
//
// Username uniqueness is checked before email uniqueness, each violation
// gets its own error so the caller can tell the user which field to fix.
func (s *Service) RegisterUser(ctx context.Context, reg Registration) (uuid.UUID, error) {
	pwdHash, err := reg.Password.Hash()
	if err != nil {
		return uuid.Nil, err
	}

	now := s.NowFunc()

	user := User{
		ID:           uuid.New(),
		Username:     reg.Username,
		Name:         reg.Name,
		Email:        reg.Email,
		PasswordHash: pwdHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.inTx(ctx, func(tx Tx) error {
		users, txErr := tx.FindUsers(&UserFilter{
			Usernames: []Username{user.Username},
		})
		if txErr != nil {
			return txErr
		}

		if len(users) > 0 {
			return ErrDuplicateUsername
		}

		users, txErr = tx.FindUsers(&UserFilter{
			Emails: []email.Address{user.Email},
		})
		if txErr != nil {
			return txErr
		}

		if len(users) > 0 {
			return ErrDuplicateEmail
		}

		return tx.CreateUser(&user)
	})

	if errors.Is(err, errorz.ErrConstraintViolated) {
		// A concurrent registration won the race between our uniqueness
		// checks and the insert. Re-check so the caller is still told
		// which field collided.
		users, findErr := s.store.FindUsers(ctx, &UserFilter{
			Usernames: []Username{user.Username},
		})
		if findErr != nil {
			return uuid.Nil, findErr
		}
		if len(users) > 0 {
			return uuid.Nil, ErrDuplicateUsername
		}

		users, findErr = s.store.FindUsers(ctx, &UserFilter{
			Emails: []email.Address{user.Email},
		})
		if findErr != nil {
			return uuid.Nil, findErr
		}
		if len(users) > 0 {
			return uuid.Nil, ErrDuplicateEmail
		}

		return uuid.Nil, err
	}

	if err != nil {
		return uuid.Nil, err
	}

	return user.ID, nil
}

// Authenticate checks if the provided credentials are valid and returns the
// id of the matching user.
//
// An unknown username and a wrong password both result in ok == false
// without an error. The two cases are deliberately indistinguishable to the
// caller, and a comparison hash is matched on the unknown-username path to
// prevent timing differences that could lead to user enumeration.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (uuid.UUID, bool, error) {
	users, err := s.store.FindUsers(ctx, &UserFilter{
		Usernames: []Username{c.Username},
	})
	if err != nil {
		return uuid.Nil, false, err
	}

	if len(users) != 1 {
		_ = c.Password.Match(s.comparisonHash)
		return uuid.Nil, false, nil
	}

	if !c.Password.Match(users[0].PasswordHash) {
		return uuid.Nil, false, nil
	}

	return users[0].ID, true, nil
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	return nil
}
