package api

import (
	"github.com/google/uuid"

	"github.com/starford/nexus/internal/intelservice"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/store"
)

// CreateLinkRequest is the request body for creating a link.
type CreateLinkRequest struct {
	SourceID         uuid.UUID `json:"source_id" validate:"required"`
	TargetID         uuid.UUID `json:"target_id" validate:"required"`
	RelationshipType string    `json:"relationship_type" example:"owns" validate:"required"`
	Weight           *float64  `json:"weight,omitempty" example:"1.0"`
}

// LinksResponse wraps adjacency listings.
type LinksResponse struct {
	Links []models.Link `json:"links" validate:"required"`
}

// ContextResponse wraps context lines for an entity.
type ContextResponse struct {
	EntityID uuid.UUID `json:"entity_id" validate:"required"`
	Context  []string  `json:"context" validate:"required"`
}

// ProcessDocumentRequest is the request body for processing a local file.
type ProcessDocumentRequest struct {
	Path      string                  `json:"path" example:"/srv/inbox/invoice.txt" validate:"required"`
	RelatedTo []intelservice.Relation `json:"related_to,omitempty"`
}

// DocumentDetail is a document with its artifacts (aliased from the domain layer).
type DocumentDetail = intelservice.DocumentDetail

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []models.Document `json:"documents" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results" validate:"required"`
}

// ClassifyRequest is the request body for classifying free text.
type ClassifyRequest struct {
	Text string `json:"text" example:"Q1 invoice attached"`
}

// ClassifyResponse is the classification outcome (aliased from the domain layer).
type ClassifyResponse = intelservice.Classification
