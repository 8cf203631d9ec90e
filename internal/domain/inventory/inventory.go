package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidSubmission = errors.New("inventory submission is missing required fields")

// Record is a processed inventory entry. Unrelated to the warehouse star
// schema; kept as a plain standalone entity.
type Record struct {
	ID                uuid.UUID `json:"id"`
	ProductName       string    `json:"product_name"`
	Quantity          int       `json:"quantity"`
	WarehouseLocation string    `json:"warehouse_location"`
	SubmittedBy       string    `json:"submitted_by"`
	ProcessedAt       time.Time `json:"processed_at"`
}

type Submission struct {
	ProductName       string    `json:"product_name"`
	Quantity          int       `json:"quantity"`
	WarehouseLocation string    `json:"warehouse_location"`
	SubmittedBy       string    `json:"submitted_by"`
	ProcessedAt       time.Time `json:"processed_at"`
}

type Repository interface {
	List(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, record Record) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns all records, newest first.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (s *Service) Create(ctx context.Context, submission Submission) (*Record, error) {
	if strings.TrimSpace(submission.ProductName) == "" ||
		strings.TrimSpace(submission.WarehouseLocation) == "" ||
		strings.TrimSpace(submission.SubmittedBy) == "" ||
		submission.Quantity <= 0 {
		return nil, ErrInvalidSubmission
	}

	processedAt := submission.ProcessedAt.UTC()
	if submission.ProcessedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	record := Record{
		ID:                uuid.New(),
		ProductName:       submission.ProductName,
		Quantity:          submission.Quantity,
		WarehouseLocation: submission.WarehouseLocation,
		SubmittedBy:       submission.SubmittedBy,
		ProcessedAt:       processedAt,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}
