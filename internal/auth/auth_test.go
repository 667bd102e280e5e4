package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/supabase"
)

const secret = "super-secret-jwt-token-with-at-least-32-characters"

func quietLogger() *logging.Logger {
	return logging.NewWithOutput("test", "info", "json", io.Discard)
}

func TestVerifierRoundTrip(t *testing.T) {
	v, err := NewVerifier(secret)
	require.NoError(t, err)

	token, err := v.Issue("user-1", "a@example.dz", domain.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "a@example.dz", claims.Email)
	assert.Equal(t, domain.RoleAdmin, claims.AppRole())

	_, err = NewVerifier(" ")
	assert.Error(t, err)
}

func TestVerifierRejects(t *testing.T) {
	v, _ := NewVerifier(secret)
	other, _ := NewVerifier("another-secret-another-secret-another")

	expired := func() string {
		old, _ := NewVerifier(secret)
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		tok, _ := old.Issue("u", "", "", time.Hour)
		return tok
	}()
	forged, _ := other.Issue("u", "", "", time.Hour)

	wrongAud, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u",
		Audience:  jwt.ClaimStrings{"anon"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  "u",
		Audience: jwt.ClaimStrings{Audience},
	}).SignedString([]byte(secret))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "u",
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))

	for name, tok := range map[string]string{
		"expired":     expired,
		"forged":      forged,
		"audience":    wrongAud,
		"no subject":  noSubject,
		"no expiry":   noExpiry,
		"other alg":   hs512,
		"not a token": "abc.def",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok)
			require.Error(t, err)
			assert.True(t, svcerrors.HasCode(err, svcerrors.CodeInvalidToken))
		})
	}
}

type stubRoles map[string]string

func (s stubRoles) Role(_ context.Context, id string) (string, error) {
	if id == "broken" {
		return "", errors.New("db down")
	}
	return s[id], nil
}

func TestResolverPrecedence(t *testing.T) {
	profiles := stubRoles{"p-admin": domain.RoleAdmin, "p-user": domain.RoleUser, "claim-user": domain.RoleAdmin}
	r := NewResolver([]string{"listed"}, profiles, time.Minute, quietLogger())

	claims := func(id, appRole string) *Claims {
		c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id}}
		if appRole != "" {
			c.AppMetadata = map[string]any{"role": appRole}
		}
		return c
	}

	ctx := context.Background()
	assert.Equal(t, domain.RoleAdmin, r.Resolve(ctx, claims("listed", domain.RoleUser)))
	assert.Equal(t, domain.RoleAdmin, r.Resolve(ctx, claims("x", domain.RoleAdmin)))
	assert.Equal(t, domain.RoleUser, r.Resolve(ctx, claims("claim-user", domain.RoleUser)))
	assert.Equal(t, domain.RoleAdmin, r.Resolve(ctx, claims("p-admin", "")))
	assert.Equal(t, domain.RoleUser, r.Resolve(ctx, claims("p-user", "")))
	assert.Equal(t, domain.RoleUser, r.Resolve(ctx, claims("unknown", "")))
	assert.Equal(t, domain.RoleUser, r.Resolve(ctx, claims("broken", "")))

	// Profile roles are cached until forgotten.
	profiles["p-user"] = domain.RoleAdmin
	assert.Equal(t, domain.RoleUser, r.Resolve(ctx, claims("p-user", "")))
	r.Forget("p-user")
	assert.Equal(t, domain.RoleAdmin, r.Resolve(ctx, claims("p-user", "")))

	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	r.Purge()
	assert.Empty(t, r.cache)
}

func TestAuthenticatorAndContext(t *testing.T) {
	v, _ := NewVerifier(secret)
	a := NewAuthenticator(v, NewResolver([]string{"boss"}, nil, 0, quietLogger()))
	token, _ := v.Issue("boss", "boss@example.dz", "", time.Hour)

	actor, claims, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: "boss", Role: domain.RoleAdmin}, actor)
	assert.Equal(t, "boss@example.dz", claims.Email)

	ctx := ContextWithActor(context.Background(), actor, token)
	assert.Equal(t, actor, ActorFromContext(ctx))
	assert.Equal(t, token, supabase.AccessTokenFromContext(ctx))
	assert.True(t, ActorFromContext(context.Background()).Anonymous())

	_, _, err = a.Authenticate(context.Background(), "garbage")
	assert.Error(t, err)
}

type fakeProvider struct {
	signUp  *supabase.AuthResponse
	signIn  *supabase.AuthResponse
	err     error
	gotMeta map[string]any
}

func (f *fakeProvider) SignUp(_ context.Context, email, _ string, metadata map[string]any) (*supabase.AuthResponse, error) {
	f.gotMeta = metadata
	return f.signUp, f.err
}

func (f *fakeProvider) SignIn(context.Context, string, string) (*supabase.AuthResponse, error) {
	return f.signIn, f.err
}

func (f *fakeProvider) Refresh(context.Context, string) (*supabase.AuthResponse, error) {
	return f.signIn, f.err
}

func (f *fakeProvider) GetUser(context.Context, string) (*supabase.User, error) {
	return nil, f.err
}

type fakeProfiles struct {
	ensured map[string]string
	tokens  []string
	fail    bool
}

func (f *fakeProfiles) Ensure(ctx context.Context, userID, fullName, _ string) (*domain.Profile, error) {
	f.tokens = append(f.tokens, supabase.AccessTokenFromContext(ctx))
	if f.fail {
		return nil, errors.New("rls denied")
	}
	f.ensured[userID] = fullName
	return &domain.Profile{ID: userID, FullName: fullName, Role: domain.RoleUser}, nil
}

func (f *fakeProfiles) Get(_ context.Context, id string) (*domain.Profile, error) {
	name, ok := f.ensured[id]
	if !ok {
		return nil, svcerrors.NotFound("profile", id)
	}
	return &domain.Profile{ID: id, FullName: name, Role: domain.RoleUser}, nil
}

func TestSignUpCreatesProfile(t *testing.T) {
	provider := &fakeProvider{signUp: &supabase.AuthResponse{
		AccessToken: "tok",
		User:        &supabase.User{ID: "new-user", Email: "new@example.dz"},
	}}
	profiles := &fakeProfiles{ensured: map[string]string{}}
	svc := NewService(provider, profiles, nil, quietLogger())

	session, err := svc.SignUp(context.Background(), SignUpRequest{
		Email: " New@Example.dz ", Password: "secret1", FullName: " كريم ",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok", session.AccessToken)
	assert.False(t, session.ConfirmationRequired)
	require.NotNil(t, session.Profile)
	assert.Equal(t, "كريم", profiles.ensured["new-user"])
	assert.Equal(t, []string{"tok"}, profiles.tokens)
	assert.Equal(t, map[string]any{"full_name": "كريم"}, provider.gotMeta)

	// Profile failures do not fail the sign-up.
	profiles.fail = true
	provider.signUp = &supabase.AuthResponse{User: &supabase.User{ID: "pending"}}
	session, err = svc.SignUp(context.Background(), SignUpRequest{Email: "p@example.dz", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, session.ConfirmationRequired)
	assert.Nil(t, session.Profile)
}

func TestSignUpValidation(t *testing.T) {
	svc := NewService(&fakeProvider{}, nil, nil, quietLogger())
	ctx := context.Background()
	_, err := svc.SignUp(ctx, SignUpRequest{Email: "bad", Password: "secret1"})
	assert.True(t, svcerrors.IsValidation(err))
	_, err = svc.SignUp(ctx, SignUpRequest{Email: "a@b.dz", Password: "123"})
	assert.True(t, svcerrors.IsValidation(err))

	disabled := NewService(nil, nil, nil, quietLogger())
	_, err = disabled.SignIn(ctx, "a@b.dz", "secret1")
	assert.True(t, svcerrors.HasCode(err, svcerrors.CodeUnavailable))
}

func TestSignInAndMe(t *testing.T) {
	provider := &fakeProvider{signIn: &supabase.AuthResponse{
		AccessToken: "tok", RefreshToken: "ref", User: &supabase.User{ID: "u1"},
	}}
	profiles := &fakeProfiles{ensured: map[string]string{"u1": "ليلى"}}
	svc := NewService(provider, profiles, nil, quietLogger())
	ctx := context.Background()

	session, err := svc.SignIn(ctx, "u1@example.dz", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ref", session.RefreshToken)
	assert.Equal(t, "ليلى", session.Profile.FullName)

	refreshed, err := svc.Refresh(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, "tok", refreshed.AccessToken)
	_, err = svc.Refresh(ctx, "")
	assert.True(t, svcerrors.IsValidation(err))

	me, err := svc.Me(ctx, domain.Actor{UserID: "u1", Role: domain.RoleUser}, &Claims{Email: "u1@example.dz"})
	require.NoError(t, err)
	assert.Equal(t, "u1@example.dz", me.Email)
	assert.False(t, me.IsAdmin)
	assert.Equal(t, "ليلى", me.Profile.FullName)

	_, err = svc.Me(ctx, domain.Actor{}, nil)
	assert.True(t, svcerrors.IsUnauthorized(err))

	provider.err = &supabase.Error{StatusCode: http.StatusBadRequest, Message: "Invalid login credentials"}
	_, err = svc.SignIn(ctx, "u1@example.dz", "wrong-pass")
	assert.True(t, svcerrors.IsUnauthorized(err))
}

func TestMapAuthError(t *testing.T) {
	cases := []struct {
		err  error
		code svcerrors.ErrorCode
	}{
		{&supabase.Error{StatusCode: 429, Message: "too many"}, svcerrors.CodeRateLimited},
		{&supabase.Error{StatusCode: 422, Message: "User already registered"}, svcerrors.CodeConflict},
		{&supabase.Error{StatusCode: 400, Message: "Email not confirmed"}, svcerrors.CodeForbidden},
		{&supabase.Error{StatusCode: 422, Message: "Password should be at least 6 characters"}, svcerrors.CodeBadRequest},
		{&supabase.Error{StatusCode: 500, Message: "boom"}, svcerrors.CodeUnavailable},
		{fmt.Errorf("http request: %w", errors.New("dial tcp: refused")), svcerrors.CodeUnavailable},
	}
	for _, c := range cases {
		assert.True(t, svcerrors.HasCode(mapAuthError(c.err), c.code), "%v", c.err)
	}
}
