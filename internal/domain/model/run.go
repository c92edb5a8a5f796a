package model

import "time"

// Run is one CI workflow run as reported by the source-control host.
type Run struct {
	ID           int64     `json:"id"            yaml:"id"`
	Name         string    `json:"name"          yaml:"name"`
	DisplayTitle string    `json:"display_title" yaml:"display_title"`
	Status       string    `json:"status"        yaml:"status"`
	Conclusion   string    `json:"conclusion"    yaml:"conclusion"`
	HeadBranch   string    `json:"head_branch"   yaml:"head_branch"`
	HeadSHA      string    `json:"head_sha"      yaml:"head_sha"`
	Event        string    `json:"event"         yaml:"event"`
	HTMLURL      string    `json:"html_url"      yaml:"html_url"`
	CreatedAt    time.Time `json:"created_at"    yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"    yaml:"updated_at"`
}

// Failed reports whether the run concluded unsuccessfully.
func (r Run) Failed() bool {
	switch r.Conclusion {
	case "failure", "timed_out", "startup_failure":
		return true
	}
	return false
}

// RepoRef identifies a repository and the credential used against it.
type RepoRef struct {
	Owner string
	Repo  string
	Token string
}

// PullRequestInput is the payload for opening a pull request.
type PullRequestInput struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
}

// PullRequest is the subset of the created pull request the pipeline needs.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}
