// Package auth signs the application user in against the hosted identity
// service and exposes the resulting session to the stores.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-period-tracker/internal/httpclient"
)

// ErrSignIn is wrapped by every sign-in failure.
var ErrSignIn = errors.New("sign-in failed")

// Session is an authenticated identity. AccessToken is empty for identities
// that never talked to the identity service.
type Session struct {
	UserID       uuid.UUID
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Claims are the access token claims the stores rely on.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Client performs the password grant against a GoTrue-compatible endpoint.
type Client struct {
	baseURL   string
	apiKey    string
	email     string
	password  string
	jwtSecret []byte
	http      *http.Client
	circuit   *gobreaker.CircuitBreaker
	now       func() time.Time
}

// NewClient creates a Client. jwtSecret may be empty, in which case token
// claims are read without verifying the signature.
func NewClient(client *http.Client, baseURL, apiKey, email, password, jwtSecret string) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		email:    email,
		password: password,
		http:     client,
		circuit:  httpclient.NewBreaker("auth"),
		now:      time.Now,
	}
	if jwtSecret != "" {
		c.jwtSecret = []byte(jwtSecret)
	}
	return c
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn exchanges the configured email and password for a session.
func (c *Client) SignIn(ctx context.Context) (Session, error) {
	body, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrSignIn, err)
	}

	buildRequest := func() (*http.Request, error) {
		u := c.baseURL + "/auth/v1/token?grant_type=password"
		req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := httpclient.Do(ctx, c.http, c.circuit, buildRequest)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrSignIn, err)
	}
	defer resp.Body.Close()

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Session{}, fmt.Errorf("%w: decode token response: %v", ErrSignIn, err)
	}
	if payload.AccessToken == "" {
		return Session{}, fmt.Errorf("%w: response carried no access token", ErrSignIn)
	}

	claims, err := c.parseClaims(payload.AccessToken)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrSignIn, err)
	}

	userID, err := uuid.Parse(payload.User.ID)
	if err != nil {
		return Session{}, fmt.Errorf("%w: invalid user id %q", ErrSignIn, payload.User.ID)
	}
	if claims.Subject != userID.String() {
		return Session{}, fmt.Errorf("%w: token subject %q does not match user %s", ErrSignIn, claims.Subject, userID)
	}

	sess := Session{
		UserID:       userID,
		Email:        payload.User.Email,
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}
	switch {
	case payload.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(payload.ExpiresAt, 0).UTC()
	case payload.ExpiresIn > 0:
		sess.ExpiresAt = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second).UTC()
	case claims.ExpiresAt != nil:
		sess.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return sess, nil
}

func (c *Client) parseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if c.jwtSecret == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("parse access token: %w", err)
		}
		return claims, nil
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid access token: %v", err)
	}
	return claims, nil
}

// Static hands out a fixed identity without contacting any service.
type Static struct {
	Session Session
}

// NewStatic returns a Static identity for userID.
func NewStatic(userID uuid.UUID) *Static {
	return &Static{Session: Session{UserID: userID}}
}

func (s *Static) SignIn(context.Context) (Session, error) {
	if s.Session.UserID == uuid.Nil {
		return Session{}, fmt.Errorf("%w: static identity has no user id", ErrSignIn)
	}
	return s.Session, nil
}
