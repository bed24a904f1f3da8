package api

import (
	"github.com/starford/dispatch/internal/docservice"
	"github.com/starford/dispatch/internal/models"
)

// PublishRequest is the request body for publishing a document.
type PublishRequest struct {
	SourcePath string `json:"source_path" example:"blog/2025/my-post.md" validate:"required"`
	Slug       string `json:"slug" example:"my-post" validate:"required"`
}

// UnpublishRequest is the request body for unpublishing a document.
type UnpublishRequest struct {
	Slug string `json:"slug" example:"my-post" validate:"required"`
}

// AddTagRequest is the request body for adding a tag to a document.
type AddTagRequest struct {
	Path string `json:"path" example:"blog/2025/my-post.md" validate:"required"`
	Tag  string `json:"tag" example:"golang" validate:"required"`
}

// AddTagResponse lists the document's tags after the change.
type AddTagResponse struct {
	Path string   `json:"path" validate:"required"`
	Tags []string `json:"tags" validate:"required"`
}

// DocumentListResponse wraps a scan result.
type DocumentListResponse struct {
	Documents []models.Document `json:"documents" validate:"required"`
	Total     int               `json:"total" example:"42" validate:"required"`
}

// DiffResponse is the drift report for one document (aliased from the domain layer).
type DiffResponse = docservice.DiffResult

// HistoryResponse is the publish history of a document (aliased from the domain layer).
type HistoryResponse = docservice.History
