package service

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"user-management-api/internal/domain"
	"user-management-api/internal/repository"
)

// UserInput carries the writable fields of a User record.
type UserInput struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

func (in UserInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 50)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 50)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 200), is.Email),
		validation.Field(&in.Phone, validation.Length(0, 32)),
	)
}

func (in UserInput) normalized() UserInput {
	return UserInput{
		ID:        strings.TrimSpace(in.ID),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
	}
}

// UserService manages generic user records.
type UserService interface {
	List(ctx context.Context) ([]domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, input UserInput) (*domain.User, error)
	Update(ctx context.Context, id string, input UserInput) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}

type userService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) UserService {
	return &userService{users: users}
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

func (s *userService) Get(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	user, err := s.users.Get(ctx, id)
	return user, notFound(err)
}

func (s *userService) Create(ctx context.Context, input UserInput) (*domain.User, error) {
	input = input.normalized()
	if err := input.Validate(); err != nil {
		return nil, invalid(err)
	}

	user := &domain.User{
		ID:        uuid.NewString(),
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) Update(ctx context.Context, id string, input UserInput) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	input = input.normalized()
	if input.ID != "" && input.ID != id {
		return nil, invalid(errors.New("id: does not match the request path"))
	}
	if err := input.Validate(); err != nil {
		return nil, invalid(err)
	}

	user := &domain.User{
		ID:        id,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (s *userService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return notFound(s.users.Delete(ctx, id))
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
