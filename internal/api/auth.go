package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"hatch-backend/internal/auth"
	"hatch-backend/internal/database"
	"hatch-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type AuthService struct {
	db     *gorm.DB
	issuer *auth.TokenIssuer
}

func NewAuthService(db *gorm.DB, issuer *auth.TokenIssuer) *AuthService {
	return &AuthService{db: db, issuer: issuer}
}

func (s *AuthService) AddRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", RestHandler(s.Register))
		r.Post("/login", RestHandler(s.Login))
		r.Get("/session", RestHandler(s.Session))
	})
}

func validateCredentials(creds api.Credentials) error {
	if _, err := mail.ParseAddress(creds.Email); err != nil {
		return CodedErrorf(http.StatusBadRequest, "invalid email address '%s'", creds.Email)
	}
	if len(creds.Password) < minPasswordLength {
		return CodedErrorf(http.StatusBadRequest, "password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func (s *AuthService) tokenResponse(user database.User) (any, error) {
	token, err := s.issuer.NewAccessToken(user.Id, user.Email)
	if err != nil {
		slog.Error("error issuing access token", "user_id", user.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "unable to issue access token")
	}
	return api.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        api.User{Id: user.Id, Email: user.Email},
	}, nil
}

func (s *AuthService) Register(r *http.Request) (any, error) {
	creds, err := ParseRequest[api.Credentials](r)
	if err != nil {
		return nil, err
	}
	creds.Email = strings.TrimSpace(creds.Email)
	if err := validateCredentials(creds); err != nil {
		return nil, err
	}

	if _, err := database.GetUserByEmail(r.Context(), s.db, creds.Email); err == nil {
		return nil, CodedErrorf(http.StatusConflict, "user with email '%s' already exists", creds.Email)
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, CodedError(http.StatusBadRequest, err)
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	user, err := database.CreateUser(r.Context(), s.db, creds.Email, hash)
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	slog.Info("registered user", "user_id", user.Id)
	return s.tokenResponse(user)
}

func (s *AuthService) Login(r *http.Request) (any, error) {
	creds, err := ParseRequest[api.Credentials](r)
	if err != nil {
		return nil, err
	}

	user, err := database.GetUserByEmail(r.Context(), s.db, creds.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, CodedErrorf(http.StatusUnauthorized, "Invalid credentials")
		}
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	if !user.Password.Valid || !auth.CheckPasswordHash(creds.Password, user.Password.String) {
		return nil, CodedErrorf(http.StatusUnauthorized, "Invalid credentials")
	}

	return s.tokenResponse(user)
}

func (s *AuthService) Session(r *http.Request) (any, error) {
	session, err := requireSession(r)
	if err != nil {
		return nil, err
	}
	return api.SessionResponse{User: api.User{Id: session.User.Id, Email: session.User.Email}}, nil
}
