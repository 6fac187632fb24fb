package server

import "github.com/biocortex/hypothesis/internal/agent/core"

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string            `json:"session_id"`
	Mode      core.Mode         `json:"mode"`
	Reply     string            `json:"reply"`
	Plan      *core.Plan        `json:"plan,omitempty"`
	Results   []core.StepResult `json:"results,omitempty"`
	FollowUps []string          `json:"follow_ups,omitempty"`
}

type httpError struct {
	Error string `json:"error"`
}
