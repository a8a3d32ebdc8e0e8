package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

var testNow = time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC)

func signToken(t *testing.T, secret, subject string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "tracker@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// newGoTrue serves the password grant. userID is reported in the user object
// and the token is minted by mint.
func newGoTrue(t *testing.T, userID string, mint func() string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("apikey") != "anon-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"No API key found in request"}`))
			return
		}
		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if creds["email"] != "tracker@example.com" || creds["password"] != "hunter2" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  mint(),
			"token_type":    "bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-me",
			"user":          map[string]string{"id": userID, "email": "tracker@example.com"},
		})
	}))
}

func TestSignInVerifiesToken(t *testing.T) {
	user := uuid.New()
	srv := newGoTrue(t, user.String(), func() string {
		return signToken(t, testSecret, user.String(), testNow.Add(time.Hour))
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "anon-key", "tracker@example.com", "hunter2", testSecret)
	c.now = func() time.Time { return testNow }

	sess, err := c.SignIn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.UserID != user {
		t.Fatalf("expected user %s, got %s", user, sess.UserID)
	}
	if sess.AccessToken == "" || sess.RefreshToken != "refresh-me" {
		t.Fatalf("unexpected session tokens: %+v", sess)
	}
	if !sess.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("expected expiry %s, got %s", testNow.Add(time.Hour), sess.ExpiresAt)
	}
	if sess.Expired(testNow) || !sess.Expired(testNow.Add(2*time.Hour)) {
		t.Fatalf("unexpected expiry semantics for %s", sess.ExpiresAt)
	}
}

func TestSignInWithoutSecretReadsClaims(t *testing.T) {
	user := uuid.New()
	srv := newGoTrue(t, user.String(), func() string {
		return signToken(t, "some-other-secret", user.String(), testNow.Add(time.Hour))
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "anon-key", "tracker@example.com", "hunter2", "")
	sess, err := c.SignIn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.UserID != user {
		t.Fatalf("expected user %s, got %s", user, sess.UserID)
	}
}

func TestSignInRejectsBadSignature(t *testing.T) {
	user := uuid.New()
	srv := newGoTrue(t, user.String(), func() string {
		return signToken(t, "some-other-secret", user.String(), testNow.Add(time.Hour))
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "anon-key", "tracker@example.com", "hunter2", testSecret)
	c.now = func() time.Time { return testNow }
	if _, err := c.SignIn(context.Background()); !errors.Is(err, ErrSignIn) {
		t.Fatalf("expected ErrSignIn, got %v", err)
	}
}

func TestSignInRejectsSubjectMismatch(t *testing.T) {
	user := uuid.New()
	srv := newGoTrue(t, user.String(), func() string {
		return signToken(t, testSecret, uuid.New().String(), testNow.Add(time.Hour))
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "anon-key", "tracker@example.com", "hunter2", testSecret)
	c.now = func() time.Time { return testNow }
	if _, err := c.SignIn(context.Background()); !errors.Is(err, ErrSignIn) {
		t.Fatalf("expected ErrSignIn, got %v", err)
	}
}

func TestSignInBadCredentials(t *testing.T) {
	user := uuid.New()
	srv := newGoTrue(t, user.String(), func() string {
		return signToken(t, testSecret, user.String(), testNow.Add(time.Hour))
	})
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "anon-key", "tracker@example.com", "wrong", testSecret)
	_, err := c.SignIn(context.Background())
	if !errors.Is(err, ErrSignIn) {
		t.Fatalf("expected ErrSignIn, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	user := uuid.New()
	sess, err := NewStatic(user).SignIn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.UserID != user || sess.Expired(time.Now()) {
		t.Fatalf("unexpected static session %+v", sess)
	}

	if _, err := NewStatic(uuid.Nil).SignIn(context.Background()); !errors.Is(err, ErrSignIn) {
		t.Fatalf("expected ErrSignIn for nil user, got %v", err)
	}
}
