// internal/model/models.go
package model

import "time"

// Account mirrors a GitHub user profile. Only ID and Login are guaranteed;
// every other column is nullable, so pointer fields map absent JSON fields to
// SQL NULLs.
type Account struct {
	ID          int64      `json:"id"`
	Login       string     `json:"login"`
	Name        *string    `json:"name"`
	Location    *string    `json:"location"`
	PublicRepos *int       `json:"public_repos"`
	Followers   *int       `json:"followers"`
	CreatedAt   *time.Time `json:"created_at"`
}

// Repository mirrors a GitHub repository owned by an Account. AccountID is
// stamped by the writer from the owning account's id, never trusted from the
// repository payload.
type Repository struct {
	ID              int64      `json:"id"`
	AccountID       int64      `json:"account_id"`
	Name            *string    `json:"name"`
	FullName        *string    `json:"full_name"`
	HTMLURL         *string    `json:"html_url"`
	Description     *string    `json:"description"`
	Language        *string    `json:"language"`
	StargazersCount *int       `json:"stargazers_count"`
	ForksCount      *int       `json:"forks_count"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

// AccountResult records the outcome of one account's ingestion within a run.
type AccountResult struct {
	Handle    string `json:"handle"`
	RepoCount int    `json:"repo_count"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// Succeeded reports whether this account was fully ingested.
func (r AccountResult) Succeeded() bool { return r.Err == nil }

// RunSummary is the end-of-run report: one entry per configured handle, in
// the configured order, plus totals.
type RunSummary struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Results    []AccountResult `json:"results"`
}
