// Package models defines the domain types shared by scanning and publishing.
package models

import "time"

// Document describes one source Markdown file as observed at scan time.
// It is rebuilt on every scan and never mutated afterwards.
type Document struct {
	Path         string     `json:"path"`
	Filename     string     `json:"filename"`
	Slug         string     `json:"slug"`
	Title        string     `json:"title,omitempty"`
	Dek          string     `json:"dek,omitempty"`
	Date         string     `json:"date,omitempty"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	ModifiedAt   time.Time  `json:"modified_at"`
	WordCount    int        `json:"word_count"`
	IsSafe       bool       `json:"is_safe"`
	Warnings     []string   `json:"warnings"`
	PublishedURL string     `json:"published_url,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	SourceDir    string     `json:"source_dir"`
	Unlisted     bool       `json:"unlisted"`
	Password     string     `json:"password,omitempty"`
}

// Published reports whether a published copy was found for the slug at scan time.
func (d *Document) Published() bool {
	return d.PublishedURL != ""
}

// RepositoryState is a point-in-time view of the publication repository.
type RepositoryState struct {
	OK            bool     `json:"ok"`
	Branch        string   `json:"branch"`
	HeadCommit    string   `json:"head_commit,omitempty"`
	HeadSubject   string   `json:"head_subject,omitempty"`
	DirtyFiles    []string `json:"dirty_files"`
	ConflictFiles []string `json:"conflict_files"`
	HasConflicts  bool     `json:"has_conflicts"`
	Error         string   `json:"error,omitempty"`
}

// Operation is the kind of state transition applied to a document.
type Operation string

const (
	OpPublish   Operation = "publish"
	OpUnpublish Operation = "unpublish"
)

// Transition records one publish or unpublish attempt.
type Transition struct {
	ID         string    `json:"id"`
	Op         Operation `json:"op"`
	Slug       string    `json:"slug"`
	SourcePath string    `json:"source_path,omitempty"`
	TargetPath string    `json:"target_path,omitempty"`
	URL        string    `json:"url,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Transition statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Commit is a single entry of a published file's history.
type Commit struct {
	Hash    string    `json:"hash"`
	Subject string    `json:"subject"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}
