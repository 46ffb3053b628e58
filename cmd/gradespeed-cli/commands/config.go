package commands

import (
	"time"

	"gradespeed-backend/internal/components/telemetry"
	"gradespeed-backend/internal/store"
	"gradespeed-backend/internal/transport"
)

type HttpConfig struct {
	TimeoutSeconds   int     `json:"timeout_seconds"`
	RateLimit        float64 `json:"rate_limit"`
	CloudflareBypass bool    `json:"cloudflare_bypass"`
	UserAgent        string  `json:"user_agent"`
}

func (c HttpConfig) options() transport.Options {
	return transport.Options{
		Timeout:          time.Duration(c.TimeoutSeconds) * time.Second,
		RateLimit:        c.RateLimit,
		CloudflareBypass: c.CloudflareBypass,
		UserAgent:        c.UserAgent,
	}
}

// Config is read from gradespeed.json5 (and gradespeed.local.json5) in the
// working directory or any of its parents.
type Config struct {
	District string `json:"district"`
	Username string `json:"username"`
	Password string `json:"password"`
	// StudentID picks a student of a multi-student account without asking.
	StudentID string `json:"student_id"`

	Store     store.Config     `json:"store"`
	Http      HttpConfig       `json:"http"`
	Telemetry telemetry.Config `json:"telemetry"`
	Verbose   bool             `json:"verbose"`
}
