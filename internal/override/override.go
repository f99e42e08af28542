package override

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veloxpay/velox_ledger/internal/audit"
)

// Type classifies what restriction the override bypasses.
type Type string

const (
	// TypeSoftClosedPosting covers postings into a soft-closed period.
	TypeSoftClosedPosting Type = "soft_closed_posting"
)

// Outcome records whether the override was granted.
type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
)

// Record is one append-only override log row. Every attempt is persisted,
// granted or denied, before the gated action executes.
type Record struct {
	ID            string
	Type          Type
	Justification string
	EntityRef     string
	Actor         string
	Role          string
	Outcome       Outcome
	DenialReason  string
	CreatedAt     time.Time
}

var (
	// ErrUnauthorizedRole occurs when the actor's role is not the
	// designated finance-authority role.
	ErrUnauthorizedRole = errors.New("role not authorized for overrides")

	// ErrJustificationTooShort occurs when the justification is below the
	// configured minimum length.
	ErrJustificationTooShort = errors.New("justification below minimum length")
)

// Repository appends override records. There is no update or delete.
type Repository interface {
	Append(ctx context.Context, rec Record) error
	ListByEntity(ctx context.Context, entityRef string) ([]Record, error)
}

// Service validates and records privileged bypasses. Role claims arrive
// pre-validated by an external authorizer; this service only checks the
// claim against the configured finance-authority role.
type Service struct {
	repo             Repository
	audit            audit.Recorder
	authorityRole    string
	minJustification int
}

// NewService builds the override log service.
func NewService(repo Repository, recorder audit.Recorder, authorityRole string, minJustification int) *Service {
	return &Service{repo: repo, audit: recorder, authorityRole: authorityRole, minJustification: minJustification}
}

// RecordInput captures an override attempt.
type RecordInput struct {
	Type          Type
	Justification string
	EntityRef     string
	Actor         string
	Role          string
}

// Record persists the attempt and returns an error when it is denied. The
// denied attempt is written to the log too.
func (s *Service) Record(ctx context.Context, input RecordInput) (Record, error) {
	rec := Record{
		ID:            uuid.NewString(),
		Type:          input.Type,
		Justification: input.Justification,
		EntityRef:     input.EntityRef,
		Actor:         input.Actor,
		Role:          input.Role,
		Outcome:       OutcomeGranted,
		CreatedAt:     time.Now().UTC(),
	}

	var denial error
	switch {
	case input.Role != s.authorityRole:
		denial = fmt.Errorf("%w: %s", ErrUnauthorizedRole, input.Role)
	case len(strings.TrimSpace(input.Justification)) < s.minJustification:
		denial = fmt.Errorf("%w: need at least %d characters", ErrJustificationTooShort, s.minJustification)
	}
	if denial != nil {
		rec.Outcome = OutcomeDenied
		rec.DenialReason = denial.Error()
	}

	if err := s.repo.Append(ctx, rec); err != nil {
		return Record{}, err
	}

	_ = s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionOverrideRecorded,
		Entity:   "admin_override",
		EntityID: rec.ID,
		Actor:    input.Actor,
		Detail: map[string]string{
			"type":       string(rec.Type),
			"entity_ref": rec.EntityRef,
			"outcome":    string(rec.Outcome),
		},
	})

	if denial != nil {
		return rec, denial
	}
	return rec, nil
}

// RecordPostingOverride satisfies the ledger core's OverrideRecorder: it
// persists a soft-closed-posting override before the posting proceeds.
func (s *Service) RecordPostingOverride(ctx context.Context, justification, entityRef, actor, role string) error {
	_, err := s.Record(ctx, RecordInput{
		Type:          TypeSoftClosedPosting,
		Justification: justification,
		EntityRef:     entityRef,
		Actor:         actor,
		Role:          role,
	})
	return err
}

// ListByEntity returns the override history of an entity.
func (s *Service) ListByEntity(ctx context.Context, entityRef string) ([]Record, error) {
	return s.repo.ListByEntity(ctx, entityRef)
}
