// internal/github/client.go
package github

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	apperrors "github-account-mirror/internal/errors"
	"github-account-mirror/internal/model"
)

const reposPerPage = 100

// Client is a wrapper around the go-github client. It fetches a single
// account's profile and repository list and translates them to our internal
// model, classifying every failure into one of the typed error kinds.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance. An empty token
// produces an anonymous client, subject to stricter upstream rate limits.
// Every outbound request carries the given bounded timeout.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = timeout

	return &Client{
		gh:     github.NewClient(hc),
		logger: logger,
	}
}

// OverrideBaseURL points the client at a different API root, e.g. a test
// server standing in for the GitHub API.
func (c *Client) OverrideBaseURL(base string) error {
	u, err := url.Parse(base + "/")
	if err != nil {
		return err
	}
	c.gh.BaseURL = u
	c.gh.UploadURL = u
	return nil
}

// GetAccount fetches the profile for handle and maps it to a model.Account.
func (c *Client) GetAccount(ctx context.Context, handle string) (*model.Account, error) {
	user, _, err := c.gh.Users.Get(ctx, handle)
	if err != nil {
		return nil, classifyFetchError(handle, err)
	}
	return toAccount(handle, user)
}

// ListRepositories fetches all public repositories for handle, handling API
// pagination transparently. The result may be empty.
func (c *Client) ListRepositories(ctx context.Context, handle string) ([]model.Repository, error) {
	var all []model.Repository

	opts := &github.RepositoryListByUserOptions{
		ListOptions: github.ListOptions{PerPage: reposPerPage},
	}

	for {
		c.logger.Debug("Fetching repositories page", "handle", handle, "page", opts.Page)

		repos, resp, err := c.gh.Repositories.ListByUser(ctx, handle, opts)
		if err != nil {
			return nil, classifyFetchError(handle, err)
		}

		for _, r := range repos {
			repo, err := toRepository(handle, r)
			if err != nil {
				return nil, err
			}
			all = append(all, repo)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// classifyFetchError translates a go-github / transport error into one of the
// typed error kinds.
func classifyFetchError(handle string, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		return &apperrors.RemoteFetchError{
			Handle:     handle,
			StatusCode: ghErr.Response.StatusCode,
			Body:       ghErr.Message,
			Err:        err,
		}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &apperrors.RemoteFetchError{
			Handle:     handle,
			StatusCode: rateErr.Response.StatusCode,
			Body:       rateErr.Message,
			Err:        err,
		}
	}

	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
		return &apperrors.RemoteFetchError{Handle: handle, Timeout: true, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &apperrors.DecodeError{Handle: handle, Err: err}
	}

	// Transport-level failure with no HTTP status.
	return &apperrors.RemoteFetchError{Handle: handle, Err: err}
}

// toAccount translates a github.User to a model.Account. The identity fields
// (id and login) are required; everything else maps absent to nil.
func toAccount(handle string, u *github.User) (*model.Account, error) {
	if u.ID == nil {
		return nil, &apperrors.MappingError{Handle: handle, Record: "account", Field: "id"}
	}
	if u.Login == nil || *u.Login == "" {
		return nil, &apperrors.MappingError{Handle: handle, Record: "account", Field: "login"}
	}

	return &model.Account{
		ID:          u.GetID(),
		Login:       u.GetLogin(),
		Name:        u.Name,
		Location:    u.Location,
		PublicRepos: u.PublicRepos,
		Followers:   u.Followers,
		CreatedAt:   toTimePtr(u.CreatedAt),
	}, nil
}

// toRepository translates a github.Repository to a model.Repository. Only the
// id is required. AccountID is left unset; the writer stamps it with the
// owning account's id.
func toRepository(handle string, r *github.Repository) (model.Repository, error) {
	if r.ID == nil {
		return model.Repository{}, &apperrors.MappingError{Handle: handle, Record: "repository", Field: "id"}
	}

	return model.Repository{
		ID:              r.GetID(),
		Name:            r.Name,
		FullName:        r.FullName,
		HTMLURL:         r.HTMLURL,
		Description:     r.Description,
		Language:        r.Language,
		StargazersCount: r.StargazersCount,
		ForksCount:      r.ForksCount,
		CreatedAt:       toTimePtr(r.CreatedAt),
		UpdatedAt:       toTimePtr(r.UpdatedAt),
	}, nil
}

func toTimePtr(ts *github.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}
