package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copenhagenbuzz/internal/domain"
)

// fakePasswordHasher implements domain.PasswordHasher for tests.
type fakePasswordHasher struct {
	salt string
}

func (f *fakePasswordHasher) GenerateSalt() (string, error) { return f.salt, nil }
func (f *fakePasswordHasher) Hash(salt, password string) (string, error) {
	return "hash-" + salt + password, nil
}
func (f *fakePasswordHasher) Compare(hash, salt, password string) error {
	if hash != "hash-"+salt+password {
		return errors.New("mismatch")
	}
	return nil
}

// fakeTokenIssuer implements domain.TokenIssuer for tests.
type fakeTokenIssuer struct {
	err error
}

func (f *fakeTokenIssuer) Issue(userID, email string, expiry time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-" + userID, nil
}

// fakeUserRepo implements domain.UserRepository for tests.
type fakeUserRepo struct {
	byID      map[string]*domain.User
	byEmail   map[string]*domain.User
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (f *fakeUserRepo) Create(ctx context.Context, u *domain.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return domain.ErrDuplicateEmail
	}
	u.ID = "created-1"
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrUserNotFound
}

// fakeEmailService records welcome emails.
type fakeEmailService struct {
	sent []*domain.WelcomeEmailData
	err  error
}

func (f *fakeEmailService) SendWelcome(ctx context.Context, data *domain.WelcomeEmailData) error {
	f.sent = append(f.sent, data)
	return f.err
}

func TestAuthService_SignUp(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		email     string
		password  string
		setup     func(*fakeUserRepo, *fakeEmailService)
		wantErr   error
		wantEmail string
		wantSent  int
	}{
		{
			name:      "success normalizes email and sends welcome",
			email:     "  Alice@Example.COM ",
			password:  "longenough",
			wantEmail: "alice@example.com",
			wantSent:  1,
		},
		{
			name:     "invalid email",
			email:    "not-an-email",
			password: "longenough",
			wantErr:  ErrInvalidSignUp,
		},
		{
			name:     "short password",
			email:    "a@b.com",
			password: "short",
			wantErr:  ErrInvalidSignUp,
		},
		{
			name:     "duplicate email",
			email:    "taken@example.com",
			password: "longenough",
			setup: func(r *fakeUserRepo, _ *fakeEmailService) {
				r.byEmail["taken@example.com"] = &domain.User{ID: "u0"}
			},
			wantErr: domain.ErrDuplicateEmail,
		},
		{
			name:      "welcome email failure does not fail sign up",
			email:     "bob@example.com",
			password:  "longenough",
			setup:     func(_ *fakeUserRepo, e *fakeEmailService) { e.err = errors.New("ses down") },
			wantEmail: "bob@example.com",
			wantSent:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeUserRepo()
			mail := &fakeEmailService{}
			if tt.setup != nil {
				tt.setup(repo, mail)
			}
			svc := NewAuthService(repo, &fakePasswordHasher{salt: "s"}, &fakeTokenIssuer{}, mail, time.Hour, testLogger)

			user, err := svc.SignUp(ctx, tt.email, tt.password, " Alice ")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				assert.Empty(t, mail.sent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "created-1", user.ID)
			assert.Equal(t, tt.wantEmail, user.Email)
			assert.Equal(t, "Alice", user.Name)
			assert.Equal(t, "s", user.Salt)
			assert.Equal(t, "hash-s"+tt.password, user.PasswordHash)
			require.Len(t, mail.sent, tt.wantSent)
			assert.Equal(t, tt.wantEmail, mail.sent[0].Email)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	repo := newFakeUserRepo()
	svc := NewAuthService(repo, &fakePasswordHasher{salt: "s"}, &fakeTokenIssuer{}, nil, time.Hour, testLogger)
	_, err := svc.SignUp(ctx, "alice@example.com", "correct-horse", "Alice")
	require.NoError(t, err)

	tests := []struct {
		name      string
		email     string
		password  string
		wantToken string
		wantErr   error
	}{
		{name: "success", email: "ALICE@example.com", password: "correct-horse", wantToken: "token-created-1"},
		{name: "wrong password", email: "alice@example.com", password: "wrong-password", wantErr: domain.ErrInvalidCredentials},
		{name: "unknown user", email: "nobody@example.com", password: "correct-horse", wantErr: domain.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, user, err := svc.Login(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, "alice@example.com", user.Email)
		})
	}
}

func TestAuthService_LoginIssuerError(t *testing.T) {
	ctx := context.Background()
	repo := newFakeUserRepo()
	issuerErr := errors.New("sign failed")
	svc := NewAuthService(repo, &fakePasswordHasher{salt: "s"}, &fakeTokenIssuer{err: issuerErr}, nil, time.Hour, testLogger)
	_, err := svc.SignUp(ctx, "alice@example.com", "correct-horse", "Alice")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice@example.com", "correct-horse")
	assert.ErrorIs(t, err, issuerErr)
}

func TestAuthService_GetByID(t *testing.T) {
	repo := newFakeUserRepo()
	repo.byID["u1"] = &domain.User{ID: "u1", Email: "a@b.com"}
	svc := NewAuthService(repo, &fakePasswordHasher{}, &fakeTokenIssuer{}, nil, time.Hour, testLogger)

	u, err := svc.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", u.Email)

	_, err = svc.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
