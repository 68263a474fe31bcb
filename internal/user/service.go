package user

import (
	"context"
	"errors"
	"strings"
)

type Service interface {
	Register(ctx context.Context, name, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Register(ctx context.Context, name, email, password string) (string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" || email == "" || !strings.Contains(email, "@") {
		return "", errors.New("invalid name or email")
	}
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	u, err := s.repo.Create(ctx, name, email, hash)
	if err != nil {
		return "", err
	}

	return GenerateJWT(u.ID, string(u.Role), u.Email)
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !CheckPasswordHash(password, u.Password) {
		return "", ErrInvalidCredentials
	}

	return GenerateJWT(u.ID, string(u.Role), u.Email)
}
