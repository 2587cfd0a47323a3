package api

import (
	"time"
)

type DebounceRequest struct {
	URL            string `json:"url"`
	SiteForCookies string `json:"siteForCookies,omitempty"` // defaults to the URL's own site
}

type StepDTO struct {
	Index   int    `json:"index"`
	Outcome string `json:"outcome"`
	URL     string `json:"url,omitempty"`
}

type DebounceResponse struct {
	Changed  bool      `json:"changed"`
	FinalURL string    `json:"finalUrl"`
	Steps    []StepDTO `json:"steps,omitempty"` // only with ?explain=true
}

type RuleDTO struct {
	Index   int      `json:"index"`
	Action  string   `json:"action"`
	Param   string   `json:"param,omitempty"`
	Include []string `json:"include"`
	Exclude []string `json:"exclude,omitempty"`
}

type RulesResponse struct {
	Version  string    `json:"version"`
	LoadedAt time.Time `json:"loadedAt"`
	Error    string    `json:"error,omitempty"`
	Rules    []RuleDTO `json:"rules"`
}

type ComponentRequest struct {
	InstallDir string `json:"installDir"`
}

type ReloadResponse struct {
	Changed bool   `json:"changed"`
	Version string `json:"version"`
	Rules   int    `json:"rules"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Rules  int    `json:"rules"`
	Ready  bool   `json:"ready"`
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
