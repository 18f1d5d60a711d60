package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// dummyHash keeps login timing similar for unknown emails and wrong passwords.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3e6Q9nqGQ0.h1pQF4D3F1Ku"

// Service authenticates users and decodes bearer tokens.
type Service struct {
	users  UserStore
	tokens *TokenIssuer
}

// NewService wires the login flow.
func NewService(users UserStore, tokens *TokenIssuer) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	return &Service{users: users, tokens: tokens}, nil
}

// Login checks credentials and issues a token. Users that are inactive or not
// approved get ErrAccountDisabled only after the password matched.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = VerifyPassword(dummyHash, password)
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, err
	}
	if !user.Active || !user.Approved {
		return Session{}, ErrAccountDisabled
	}
	token, expires, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Authenticate decodes a bearer token into an identity.
func (s *Service) Authenticate(token string) (Identity, error) {
	return s.tokens.Parse(token)
}

// Me returns the stored user behind an identity.
func (s *Service) Me(ctx context.Context, id Identity) (User, error) {
	if !id.Authenticated() {
		return User{}, ErrUnauthorized
	}
	return s.users.UserByID(ctx, id.UserID)
}
