package authapi

import (
	"encoding/json"
	"time"
)

type signUpRequest struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	Avatar   *string `json:"avatar"`
	Group    string  `json:"group"`
}

type signInRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type signOutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type passkeyLoginOptionsRequest struct {
	Login string `json:"login"`
}

type passkeyLoginVerifyRequest struct {
	Login    string          `json:"login"`
	Response json.RawMessage `json:"response"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Avatar    *string   `json:"avatar"`
	Group     string    `json:"group"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type authResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type statusResponse struct {
	UserID string `json:"userId"`
}

type verifyAdminResponse struct {
	UserID    string `json:"userId"`
	UserGroup string `json:"userGroup"`
}

type authenticatorResponse struct {
	CredentialID string    `json:"credential_id"`
	DeviceType   string    `json:"device_type"`
	BackedUp     bool      `json:"backed_up"`
	Transports   []string  `json:"transports"`
	CreatedAt    time.Time `json:"created_at"`
}
