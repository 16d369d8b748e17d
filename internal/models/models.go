// Package models defines the domain types for the Nexus intelligence graph.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityID is an opaque handle for any business record. The graph does not
// know what an identifier points at.
type EntityID = uuid.UUID

// NewEntityID returns a fresh random identifier.
func NewEntityID() EntityID {
	return uuid.New()
}

// DefaultWeight is the link weight used when the caller does not supply one.
const DefaultWeight = 1.0

// Content types assigned by document intake.
const (
	ContentTypePDF    = "application/pdf"
	ContentTypeText   = "text/plain"
	ContentTypeBinary = "application/octet-stream"
)

// Department is the classification label written onto a document.
type Department string

// Known departments.
const (
	DepartmentGeneral   Department = "General"
	DepartmentFinance   Department = "Finance"
	DepartmentCRM       Department = "CRM"
	DepartmentMarketing Department = "Marketing"
	DepartmentRND       Department = "R&D"
)

// Departments lists every valid department.
func Departments() []Department {
	return []Department{
		DepartmentGeneral,
		DepartmentFinance,
		DepartmentCRM,
		DepartmentMarketing,
		DepartmentRND,
	}
}

// Valid reports whether d is one of the known departments.
func (d Department) Valid() bool {
	for _, known := range Departments() {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDepartment validates s as a department label.
func ParseDepartment(s string) (Department, error) {
	d := Department(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown department %q", s)
	}
	return d, nil
}

// ArtifactType identifies what kind of derived record an artifact holds.
type ArtifactType string

// Known artifact types. The pipeline only produces summaries today.
const (
	ArtifactSummary     ArtifactType = "Summary"
	ArtifactRiskFlag    ArtifactType = "RiskFlag"
	ArtifactOpportunity ArtifactType = "Opportunity"
)

// Valid reports whether t is a known artifact type.
func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactSummary, ArtifactRiskFlag, ArtifactOpportunity:
		return true
	}
	return false
}

// Record is anything a store can persist in one batch.
// The interface is sealed to *Link, *Document and *Artifact.
type Record interface {
	recordKind() string
}

// Link is a directed, typed, weighted edge between two identifiers.
// Links are immutable once created.
type Link struct {
	ID               EntityID  `json:"id"`
	SourceID         EntityID  `json:"source_id"`
	TargetID         EntityID  `json:"target_id"`
	RelationshipType string    `json:"relationship_type"`
	Weight           float64   `json:"weight"`
	CreatedAt        time.Time `json:"created_at"`
}

func (*Link) recordKind() string { return "link" }

// Document is an ingested file and its extracted metadata.
type Document struct {
	ID          EntityID   `json:"id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	RawContent  *string    `json:"raw_content,omitempty"`
	Checksum    string     `json:"checksum,omitempty"`
	Size        int64      `json:"size"`
	StoredPath  string     `json:"stored_path,omitempty"`
	IngestedAt  time.Time  `json:"ingested_at"`
	Department  Department `json:"department"`
}

func (*Document) recordKind() string { return "document" }

// Text returns the extracted content, or an empty string when none was extracted.
func (d *Document) Text() string {
	if d.RawContent == nil {
		return ""
	}
	return *d.RawContent
}

// Artifact is a derived record owned by exactly one document.
type Artifact struct {
	ID         EntityID     `json:"id"`
	DocumentID EntityID     `json:"document_id"`
	Type       ArtifactType `json:"type"`
	Content    string       `json:"content"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (*Artifact) recordKind() string { return "artifact" }
