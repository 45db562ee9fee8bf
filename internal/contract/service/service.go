package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/procurely/contracting-api/internal/contract"
	"github.com/procurely/contracting-api/internal/contract/repository"
	"github.com/procurely/contracting-api/pkg/logger"
	"github.com/procurely/contracting-api/pkg/metrics"
)

// saveAttempts bounds the load-validate-save retries on a CAS conflict.
const saveAttempts = 3

// Actor is the authenticated caller of an operation: identity and role from
// the auth collaborator, plus the capability token presented with the
// request.
type Actor struct {
	ID    string
	Role  string
	Token string
}

// Service drives the full mutation pipeline: load and type-check, authorize,
// restrict to the role's editable fields, run the status guard, merge, diff
// and save with a revision append.
type Service struct {
	repo repository.Repository
	reg  *contract.Registry
}

// New wires a service over a repository and a populated type registry.
func New(repo repository.Repository, reg *contract.Registry) *Service {
	return &Service{repo: repo, reg: reg}
}

// Get loads a contract and resolves its type descriptor.
func (s *Service) Get(ctx context.Context, id string) (*contract.Contract, *contract.Type, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.reg.Get(c.ContractType)
	if err != nil {
		return nil, nil, err
	}
	return c, t, nil
}

// List delegates to the listing/feed engine.
func (s *Service) List(ctx context.Context, opts repository.ListOptions) ([]repository.ListItem, error) {
	return s.repo.List(ctx, opts)
}

// Create validates a create payload end to end and inserts the new contract
// with its first revision.
func (s *Service) Create(ctx context.Context, payload map[string]any, actor Actor) (*contract.Contract, *contract.Type, error) {
	typeName, _ := payload["contractType"].(string)
	t, err := s.reg.Get(typeName)
	if err != nil {
		return nil, nil, err
	}
	if err := contract.CheckRogueFields(payload, t.CreateFields); err != nil {
		return nil, nil, err
	}
	c, err := contract.FromMap(payload)
	if err != nil {
		return nil, nil, err
	}
	if c.AwardID == "" {
		return nil, nil, contract.NewValidationError("body", "awardID", "This field is required.")
	}
	if c.Status == "" {
		c.Status = contract.StatusDraft
	}
	if err := contract.ValidateStatus(t, c.Status); err != nil {
		return nil, nil, err
	}
	now := time.Now()
	if err := contract.ValidateDateSigned(c.DateSigned, now); err != nil {
		return nil, nil, err
	}
	if c.ID == "" {
		c.ID = contract.NewID()
	}
	c.ContractType = t.Name
	c.Owner = actor.ID
	c.OwnerToken = contract.NewID()
	for i := range c.Items {
		if c.Items[i].ID == "" {
			c.Items[i].ID = contract.NewID()
		}
	}
	for i := range c.Milestones {
		if c.Milestones[i].ID == "" {
			c.Milestones[i].ID = contract.NewID()
		}
	}
	contract.StampTestMode(c)
	if err := s.repo.Insert(ctx, c, actor.ID); err != nil {
		return nil, nil, err
	}
	metrics.ContractsCreated.Inc()
	logger.Infof("created contract %s (type=%s status=%s)", c.ID, c.ContractType, c.Status)
	return c, t, nil
}

// Patch applies a role/status-projected partial update to the contract.
func (s *Service) Patch(ctx context.Context, id string, payload map[string]any, actor Actor) (*contract.Contract, *contract.Type, error) {
	return s.mutate(ctx, id, actor, func(c *contract.Contract, t *contract.Type) (*contract.Contract, error) {
		if err := contract.ValidateContractPatch(t, c, actor.Role); err != nil {
			return nil, err
		}
		allowed := contract.EditFields(t, c.Status, actor.Role)
		merged, err := contract.ApplyPatch(c, contract.FilterPatch(payload, allowed))
		if err != nil {
			return nil, err
		}
		if err := contract.ValidateStatus(t, merged.Status); err != nil {
			return nil, err
		}
		if err := contract.ValidateDateSigned(merged.DateSigned, time.Now()); err != nil {
			return nil, err
		}
		if err := contract.ValidateTerminate(merged); err != nil {
			return nil, err
		}
		return merged, nil
	})
}

// RegenerateCredentials re-issues the contract's owner token.
func (s *Service) RegenerateCredentials(ctx context.Context, id string, actor Actor) (*contract.Contract, *contract.Type, error) {
	return s.mutate(ctx, id, actor, func(c *contract.Contract, t *contract.Type) (*contract.Contract, error) {
		if err := contract.ValidateCredentialsGenerate(t, c); err != nil {
			return nil, err
		}
		c.OwnerToken = contract.NewID()
		return c, nil
	})
}

// CreateChange appends a new pending change, subject to the single-pending
// rule and the contract status gate. Returns the created change.
func (s *Service) CreateChange(ctx context.Context, id string, payload map[string]any, actor Actor) (*contract.Change, error) {
	var created *contract.Change
	_, _, err := s.mutate(ctx, id, actor, func(c *contract.Contract, t *contract.Type) (*contract.Contract, error) {
		if err := contract.ValidateChangeCreate(t, c); err != nil {
			return nil, err
		}
		var ch contract.Change
		if err := decodeInto(&ch, contract.FilterPatch(payload, contract.ChangeCreateFields())); err != nil {
			return nil, err
		}
		if ch.Rationale == "" {
			return nil, contract.NewValidationError("body", "rationale", "This field is required.")
		}
		now := time.Now().UTC().Truncate(time.Millisecond)
		if err := contract.ValidateDateSigned(ch.DateSigned, now); err != nil {
			return nil, err
		}
		ch.ID = contract.NewID()
		ch.Status = contract.ChangePending
		ch.Date = &now
		c.Changes = append(c.Changes, ch)
		created = &c.Changes[len(c.Changes)-1]
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// PatchChange updates a pending change; activating it requires dateSigned.
func (s *Service) PatchChange(ctx context.Context, id, changeID string, payload map[string]any, actor Actor) (*contract.Change, error) {
	var updated *contract.Change
	_, _, err := s.mutate(ctx, id, actor, func(c *contract.Contract, t *contract.Type) (*contract.Contract, error) {
		ch := c.ChangeByID(changeID)
		if ch == nil {
			return nil, contract.ErrNotFound
		}
		patch := contract.FilterPatch(payload, contract.ChangeEditFields())
		if err := contract.ValidateChangePatch(ch, patch); err != nil {
			return nil, err
		}
		if err := decodeInto(ch, patch); err != nil {
			return nil, err
		}
		if ch.Rationale == "" {
			return nil, contract.NewValidationError("body", "rationale", "This field is required.")
		}
		if err := contract.ValidateDateSigned(ch.DateSigned, time.Now()); err != nil {
			return nil, err
		}
		updated = ch
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreateDocument attaches document metadata to the contract or one of its
// sub-entities.
func (s *Service) CreateDocument(ctx context.Context, id string, payload map[string]any, actor Actor) (*contract.Document, error) {
	var created *contract.Document
	_, _, err := s.mutate(ctx, id, actor, func(c *contract.Contract, t *contract.Type) (*contract.Contract, error) {
		if err := contract.ValidateDocumentOp(t, c, "add"); err != nil {
			return nil, err
		}
		var d contract.Document
		if err := decodeInto(&d, contract.FilterPatch(payload, contract.DocumentCreateFields())); err != nil {
			return nil, err
		}
		if d.Title == "" {
			return nil, contract.NewValidationError("body", "title", "This field is required.")
		}
		if d.DocumentOf == "" {
			d.DocumentOf = contract.DocOfContract
		}
		if err := contract.ValidateDocumentData(t, c, &d); err != nil {
			return nil, err
		}
		now := time.Now().UTC().Truncate(time.Millisecond)
		d.ID = contract.NewID()
		d.DatePublished = &now
		d.DateModified = &now
		c.Documents = append(c.Documents, d)
		created = &c.Documents[len(c.Documents)-1]
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// PatchDocument updates document metadata.
func (s *Service) PatchDocument(ctx context.Context, id, docID string, payload map[string]any, actor Actor) (*contract.Document, error) {
	var updated *contract.Document
	_, _, err := s.mutate(ctx, id, actor, func(c *contract.Contract, t *contract.Type) (*contract.Contract, error) {
		d := c.DocumentByID(docID)
		if d == nil {
			return nil, contract.ErrNotFound
		}
		if err := contract.ValidateDocumentOp(t, c, "update"); err != nil {
			return nil, err
		}
		if err := decodeInto(d, contract.FilterPatch(payload, contract.DocumentEditFields())); err != nil {
			return nil, err
		}
		if err := contract.ValidateDocumentData(t, c, d); err != nil {
			return nil, err
		}
		now := time.Now().UTC().Truncate(time.Millisecond)
		d.DateModified = &now
		updated = d
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AttachFile records an uploaded file's location on an existing document.
func (s *Service) AttachFile(ctx context.Context, id, docID, url, format string, actor Actor) (*contract.Document, error) {
	var updated *contract.Document
	_, _, err := s.mutate(ctx, id, actor, func(c *contract.Contract, t *contract.Type) (*contract.Contract, error) {
		d := c.DocumentByID(docID)
		if d == nil {
			return nil, contract.ErrNotFound
		}
		if err := contract.ValidateDocumentOp(t, c, "update"); err != nil {
			return nil, err
		}
		now := time.Now().UTC().Truncate(time.Millisecond)
		d.URL = url
		d.Format = format
		d.DateModified = &now
		updated = d
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// mutate re-drives the whole load-authorize-validate-save sequence until the
// CAS write goes through or the attempt budget is exhausted. fn receives the
// freshly loaded contract and returns the contract to persist.
func (s *Service) mutate(ctx context.Context, id string, actor Actor, fn func(*contract.Contract, *contract.Type) (*contract.Contract, error)) (*contract.Contract, *contract.Type, error) {
	var lastErr error
	for attempt := 0; attempt < saveAttempts; attempt++ {
		c, t, err := s.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if err := authorize(c, actor); err != nil {
			return nil, nil, err
		}
		src := contract.Project(c, t, contract.PurposePlain, "")
		out, err := fn(c, t)
		if err != nil {
			return nil, nil, err
		}
		contract.StampTestMode(out)
		if err := s.repo.Save(ctx, out, src, actor.ID); err != nil {
			if errors.Is(err, contract.ErrConflict) {
				metrics.SaveConflicts.Inc()
				logger.Warnf("save conflict on contract %s (attempt %d)", id, attempt+1)
				lastErr = err
				continue
			}
			return nil, nil, err
		}
		metrics.ContractSaves.Inc()
		return out, t, nil
	}
	return nil, nil, lastErr
}

// authorize enforces the capability token; Administrator bypasses it.
func authorize(c *contract.Contract, actor Actor) error {
	if actor.Role == contract.RoleAdministrator {
		return nil
	}
	if actor.Token == "" || actor.Token != c.OwnerToken {
		return contract.ErrForbidden
	}
	return nil
}

// decodeInto merges a patch map into an existing struct via its JSON form.
func decodeInto(dst any, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	b, err := json.Marshal(dst)
	if err != nil {
		return err
	}
	var cur map[string]any
	if err := json.Unmarshal(b, &cur); err != nil {
		return err
	}
	merged, err := json.Marshal(contract.MergeMaps(cur, patch))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(merged, dst); err != nil {
		if ute, ok := err.(*json.UnmarshalTypeError); ok {
			return contract.NewValidationError("body", ute.Field, "Invalid value type")
		}
		return contract.NewValidationError("body", "data", "Invalid date format")
	}
	return nil
}
