package contract

import (
	"fmt"
	"time"
)

// The status guard encodes which mutations are legal given a contract's
// current status and the actor's role. Every function here is pure: no I/O,
// no mutation, an *OperationError (or *ValidationError) on rejection.

// ValidateContractPatch rejects PATCHes on contracts whose status carries an
// empty edit allow-list. The Administrator role bypasses the status gate.
func ValidateContractPatch(t *Type, c *Contract, role string) error {
	if role == RoleAdministrator {
		return nil
	}
	if len(EditFields(t, c.Status, role)) == 0 {
		return &OperationError{Reason: fmt.Sprintf("Can't update contract in current (%s) status", c.Status)}
	}
	return nil
}

// ValidateTerminate requires amountPaid before a contract may reach the
// terminated status. Called on the already-merged contract so that setting
// amountPaid and terminating in the same request is accepted.
func ValidateTerminate(c *Contract) error {
	if c.Status == StatusTerminated && c.AmountPaid == nil {
		return &OperationError{Reason: "Can't terminate contract while 'amountPaid' is not set"}
	}
	return nil
}

// ValidateChangeCreate gates change creation: the contract must be in an
// editable status and must not already carry a pending change.
func ValidateChangeCreate(t *Type, c *Contract) error {
	if !t.Editable(c.Status) {
		return &OperationError{Reason: fmt.Sprintf("Can't add contract change in current (%s) contract status", c.Status)}
	}
	if c.PendingChange() != nil {
		return &OperationError{Reason: "Can't create new contract change while any (pending) change exists"}
	}
	return nil
}

// ValidateChangePatch gates updates on an existing change: only pending
// changes may be updated, and activating one requires dateSigned to be
// present either on the change or in the patch.
func ValidateChangePatch(ch *Change, patch map[string]any) error {
	if ch.Status != ChangePending {
		return &OperationError{Reason: fmt.Sprintf("Can't update contract change in current (%s) status", ch.Status)}
	}
	if status, ok := patch["status"].(string); ok && status == ChangeActive {
		if _, signed := patch["dateSigned"]; !signed && ch.DateSigned == nil {
			return &OperationError{Reason: "Can't update contract change status. 'dateSigned' is required."}
		}
	}
	return nil
}

// ValidateDateSigned rejects signature dates in the future.
func ValidateDateSigned(ts *time.Time, now time.Time) error {
	if ts != nil && ts.After(now) {
		return NewValidationError("body", "dateSigned", "Contract signature date can't be in the future")
	}
	return nil
}

// ValidateDocumentOp gates adding or updating documents on the contract
// status. verb is "add" or "update" and only changes the message.
func ValidateDocumentOp(t *Type, c *Contract, verb string) error {
	if !t.Editable(c.Status) {
		return &OperationError{Reason: fmt.Sprintf("Can't %s document in current (%s) contract status", verb, c.Status)}
	}
	return nil
}

// ValidateDocumentData checks documentOf, the relatedItem back-reference and
// the active-change rule for a document about to be attached or repointed.
func ValidateDocumentData(t *Type, c *Contract, d *Document) error {
	switch d.DocumentOf {
	case DocOfContract, DocOfItem, DocOfChange, DocOfMilestone:
	case "":
		return NewValidationError("body", "documentOf", "This field is required.")
	default:
		return NewValidationError("body", "documentOf", "Value must be one of ['contract', 'item', 'change', 'milestone'].")
	}
	if d.DocumentOf == DocOfMilestone && !t.Milestones {
		return NewValidationError("body", "documentOf", fmt.Sprintf("Contract type %s has no milestones", t.Name))
	}
	if d.DocumentType != "" && !validDocumentType(d.DocumentType) {
		return NewValidationError("body", "documentType", "Unknown document type")
	}
	if d.DocumentOf == DocOfContract {
		return nil
	}
	if d.RelatedItem == "" {
		return NewValidationError("body", "relatedItem", "This field is required.")
	}
	if !c.HasRelated(d.DocumentOf, d.RelatedItem) {
		return NewValidationError("body", "relatedItem", fmt.Sprintf("relatedItem should be one of %ss", d.DocumentOf))
	}
	if d.DocumentOf == DocOfChange {
		if ch := c.ChangeByID(d.RelatedItem); ch != nil && ch.Status == ChangeActive {
			return &OperationError{Reason: "Can't add document to 'active' change"}
		}
	}
	return nil
}

// ValidateCredentialsGenerate gates owner-token regeneration on the statuses
// the contract type allows.
func ValidateCredentialsGenerate(t *Type, c *Contract) error {
	if !t.CredentialsAllowed(c.Status) {
		return &OperationError{Reason: fmt.Sprintf("Can't generate credentials in current (%s) contract status", c.Status)}
	}
	return nil
}

// ValidateStatus checks the status value against the type's declared set.
func ValidateStatus(t *Type, status string) error {
	if status == "" || t.HasStatus(status) {
		return nil
	}
	return NewValidationError("body", "status", fmt.Sprintf("Value must be one of %v.", t.Statuses))
}

func validDocumentType(dt string) bool {
	for _, v := range DocumentTypes {
		if v == dt {
			return true
		}
	}
	return false
}
