package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/auth"
	"github.com/stefchosov/walkdata/internal/auth/db"
	"github.com/stefchosov/walkdata/internal/db/testdb"
	"github.com/stefchosov/walkdata/internal/email"
	"github.com/stefchosov/walkdata/internal/errorz/testerr"
)

func Test_Service_RegisterUser(t *testing.T) {
	t.Run("ok, register user", func(t *testing.T) {
		st := newServiceTest(t)

		userID, err := st.svc.RegisterUser(context.Background(), testRegistration())
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}

		users, err := st.store.FindUsers(context.Background(), &auth.UserFilter{
			IDs: []uuid.UUID{userID},
		})
		if err != nil {
			t.Fatalf("failed to find users: %v", err)
		}

		if len(users) != 1 {
			t.Fatalf("expected 1 user, got %d", len(users))
		}

		if users[0].Username != testRegistration().Username {
			t.Errorf("got username %s, want %s", users[0].Username, testRegistration().Username)
		}
	})

	t.Run("fail, duplicate username", func(t *testing.T) {
		st := newServiceTest(t)

		_, err := st.svc.RegisterUser(context.Background(), testRegistration())
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}

		reg := testRegistration()
		reg.Email = must(email.ParseAddress("other@example.com"))

		_, err = st.svc.RegisterUser(context.Background(), reg)
		if !errors.Is(err, auth.ErrDuplicateUsername) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", auth.ErrDuplicateUsername, err)
		}
	})

	t.Run("fail, duplicate email", func(t *testing.T) {
		st := newServiceTest(t)

		_, err := st.svc.RegisterUser(context.Background(), testRegistration())
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}

		reg := testRegistration()
		reg.Username = must(auth.ParseUsername("otheruser"))

		_, err = st.svc.RegisterUser(context.Background(), reg)
		if !errors.Is(err, auth.ErrDuplicateEmail) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", auth.ErrDuplicateEmail, err)
		}
	})

	t.Run("fail, concurrent registration takes the username", func(t *testing.T) {
		st := newServiceTest(t)

		_, err := st.svc.RegisterUser(context.Background(), testRegistration())
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}

		raceSvc, err := auth.NewService(&blindStore{store: st.store.store})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		reg := testRegistration()
		reg.Email = must(email.ParseAddress("other@example.com"))

		_, err = raceSvc.RegisterUser(context.Background(), reg)
		if !errors.Is(err, auth.ErrDuplicateUsername) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", auth.ErrDuplicateUsername, err)
		}
	})

	t.Run("fail, concurrent registration takes the email", func(t *testing.T) {
		st := newServiceTest(t)

		_, err := st.svc.RegisterUser(context.Background(), testRegistration())
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}

		raceSvc, err := auth.NewService(&blindStore{store: st.store.store})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		reg := testRegistration()
		reg.Username = must(auth.ParseUsername("otheruser"))

		_, err = raceSvc.RegisterUser(context.Background(), reg)
		if !errors.Is(err, auth.ErrDuplicateEmail) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", auth.ErrDuplicateEmail, err)
		}
	})

	for i, tracker := range testerr.NewFailingDeps(testerr.Err, 5) {
		t.Run("fail, store fails", func(t *testing.T) {
			st := newServiceTest(t)
			st.store.tracker = &tracker

			_, err := st.svc.RegisterUser(context.Background(), testRegistration())
			if !errors.Is(err, testerr.Err) {
				t.Fatalf("case %d: wanted error %v, got %v (via errors.Is)", i, testerr.Err, err)
			}
		})
	}
}

func Test_Service_Authenticate(t *testing.T) {
	t.Run("ok, valid credentials", func(t *testing.T) {
		st := newServiceTest(t)

		userID, err := st.svc.RegisterUser(context.Background(), testRegistration())
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}

		gotID, ok, err := st.svc.Authenticate(context.Background(), auth.Credentials{
			Username: testRegistration().Username,
			Password: must(auth.ParsePassword("reallyStrongPassword1")),
		})
		if err != nil {
			t.Fatalf("failed to authenticate: %v", err)
		}

		if !ok {
			t.Fatalf("expected credentials to be accepted")
		}

		if gotID != userID {
			t.Errorf("got user id %s, want %s", gotID, userID)
		}
	})

	t.Run("ok, unknown username is rejected without error", func(t *testing.T) {
		st := newServiceTest(t)

		_, ok, err := st.svc.Authenticate(context.Background(), auth.Credentials{
			Username: must(auth.ParseUsername("nobody")),
			Password: must(auth.ParsePassword("reallyStrongPassword1")),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if ok {
			t.Fatalf("expected credentials to be rejected")
		}
	})

	t.Run("ok, wrong password is rejected without error", func(t *testing.T) {
		st := newServiceTest(t)

		_, err := st.svc.RegisterUser(context.Background(), testRegistration())
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}

		_, ok, err := st.svc.Authenticate(context.Background(), auth.Credentials{
			Username: testRegistration().Username,
			Password: must(auth.ParsePassword("wrongPassword1")),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if ok {
			t.Fatalf("expected credentials to be rejected")
		}
	})

	t.Run("fail, store fails", func(t *testing.T) {
		st := newServiceTest(t)

		failingDeps := testerr.NewFailingDeps(testerr.Err, 1)
		st.store.tracker = &failingDeps[0]

		_, _, err := st.svc.Authenticate(context.Background(), auth.Credentials{
			Username: must(auth.ParseUsername("nobody")),
			Password: must(auth.ParsePassword("reallyStrongPassword1")),
		})
		if !errors.Is(err, testerr.Err) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", testerr.Err, err)
		}
	})
}

func testRegistration() auth.Registration {
	return auth.Registration{
		Username: must(auth.ParseUsername("testuser")),
		Name:     "Test User",
		Email:    must(email.ParseAddress("info@example.com")),
		Password: must(auth.ParsePassword("reallyStrongPassword1")),
	}
}

type svcTest struct {
	t     *testing.T
	svc   *auth.Service
	store *testStore
}

func newServiceTest(t *testing.T) *svcTest {
	testDB := testdb.RunWhile(t, true)
	test := &svcTest{
		t: t,
		store: &testStore{
			store: db.New(testDB),
			// Trackers with a negative fail index never fail.
			tracker: &testerr.FailingDep{CallIndex: -1, FailAtIndex: -1},
		},
	}

	svc, err := auth.NewService(test.store)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	svc.NowFunc = func() time.Time {
		return time.Now().Round(0)
	}

	test.svc = svc

	return test
}

// testStore wraps an actual store implementation but fails calls when the
// tracker says it's time to fail.
type testStore struct {
	store   *db.Store
	tracker *testerr.FailingDep
}

func (s *testStore) BeginTx(ctx context.Context) (auth.Tx, error) {
	return testerr.MaybeFail(s.tracker, func() (auth.Tx, error) {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return nil, err
		}

		return &testTx{store: s, tx: tx}, nil
	})
}

func (s *testStore) FindUsers(ctx context.Context, filter *auth.UserFilter) ([]auth.User, error) {
	return testerr.MaybeFail(s.tracker, func() ([]auth.User, error) {
		return s.store.FindUsers(ctx, filter)
	})
}

type testTx struct {
	store *testStore
	tx    auth.Tx
}

func (t *testTx) Commit() error {
	return testerr.MaybeFailErrFunc(t.store.tracker, t.tx.Commit)
}

func (t *testTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *testTx) CreateUser(u *auth.User) error {
	return testerr.MaybeFailErrFunc(t.store.tracker, func() error {
		return t.tx.CreateUser(u)
	})
}

func (t *testTx) FindUsers(filter *auth.UserFilter) ([]auth.User, error) {
	return testerr.MaybeFail(t.store.tracker, func() ([]auth.User, error) {
		return t.tx.FindUsers(filter)
	})
}

// blindStore simulates a concurrent registration landing between the
// uniqueness checks and the insert: its transactions report no existing
// users, so the insert runs into the unique index instead.
type blindStore struct {
	store *db.Store
}

func (s *blindStore) BeginTx(ctx context.Context) (auth.Tx, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	return &blindTx{tx: tx}, nil
}

func (s *blindStore) FindUsers(ctx context.Context, filter *auth.UserFilter) ([]auth.User, error) {
	return s.store.FindUsers(ctx, filter)
}

type blindTx struct {
	tx auth.Tx
}

func (t *blindTx) Commit() error {
	return t.tx.Commit()
}

func (t *blindTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *blindTx) CreateUser(u *auth.User) error {
	return t.tx.CreateUser(u)
}

func (t *blindTx) FindUsers(_ *auth.UserFilter) ([]auth.User, error) {
	return nil, nil
}

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}
	return t
}
