package api

import "github.com/google/uuid"

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	Id    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

type SessionResponse struct {
	User User `json:"user"`
}
