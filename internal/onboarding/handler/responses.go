package handler

import (
	"time"

	"onboarding-gateway/internal/kyc"
	"onboarding-gateway/internal/profile"
	"onboarding-gateway/internal/steps"
)

// StepResponse is one step's projection.
type StepResponse struct {
	Status         string       `json:"status"`
	StatusText     string       `json:"status_text"`
	IsComplete     bool         `json:"is_complete"`
	ActionDisabled bool         `json:"action_disabled"`
	Error          *steps.Error `json:"error,omitempty"`
}

func FromProjection(p steps.Projection) StepResponse {
	return StepResponse{
		Status:         p.Status,
		StatusText:     p.StatusText,
		IsComplete:     p.Complete,
		ActionDisabled: p.ActionDisabled,
		Error:          p.Err,
	}
}

// IdentitySessionResponse tells the client where to redirect the user.
type IdentitySessionResponse struct {
	SessionID   string    `json:"session_id"`
	RedirectURL string    `json:"redirect_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Reused      bool      `json:"reused"`
}

func FromStartResult(r kyc.StartResult) IdentitySessionResponse {
	return IdentitySessionResponse{
		SessionID:   r.SessionID,
		RedirectURL: r.RedirectURL,
		ExpiresAt:   r.ExpiresAt,
		Reused:      r.Reused,
	}
}

type ProfileResponse struct {
	DisplayName string     `json:"display_name"`
	Phone       string     `json:"phone"`
	City        string     `json:"city"`
	Specialty   string     `json:"specialty"`
	Bio         string     `json:"bio"`
	Complete    bool       `json:"complete"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func FromProfile(p *profile.Profile) ProfileResponse {
	return ProfileResponse{
		DisplayName: p.DisplayName,
		Phone:       p.Phone,
		City:        p.City,
		Specialty:   p.Specialty,
		Bio:         p.Bio,
		Complete:    p.Complete(),
		Published:   p.Published,
		PublishedAt: p.PublishedAt,
	}
}
