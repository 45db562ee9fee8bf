package contract

import "sort"

// Purpose selects which projection of a contract is produced.
type Purpose string

const (
	PurposeCreate   Purpose = "create"
	PurposeView     Purpose = "view"
	PurposeEdit     Purpose = "edit"
	PurposeEmbedded Purpose = "embedded"
	// PurposePlain is the canonical form used for diffing. It is never
	// exposed to clients: it carries the owner token but drops revisions
	// and dateModified so that bookkeeping never shows up in a diff.
	PurposePlain Purpose = "plain"
)

// FieldSet is an allow-list of top-level field names.
type FieldSet map[string]struct{}

// NewFieldSet builds a FieldSet from field names.
func NewFieldSet(names ...string) FieldSet {
	s := make(FieldSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s FieldSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// With returns a copy of the set extended with extra field names.
func (s FieldSet) With(names ...string) FieldSet {
	out := make(FieldSet, len(s)+len(names))
	for n := range s {
		out[n] = struct{}{}
	}
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// Names returns the sorted field names, mainly for error messages and tests.
func (s FieldSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

var (
	contractCreateFields = NewFieldSet(
		"id", "contractType", "awardID", "contractID", "contractNumber",
		"title", "description", "status", "mode", "owner", "items",
		"suppliers", "procuringEntity", "value", "period", "dateSigned",
	)

	contractEditDraftFields = NewFieldSet(
		"title", "description", "items", "period", "value",
		"contractNumber", "dateSigned", "status", "amountPaid",
		"terminationDetails",
	)

	contractEditActiveFields = NewFieldSet(
		"amountPaid", "description", "items", "period", "status",
		"terminationDetails", "title",
	)

	contractViewFields = NewFieldSet(
		"id", "contractType", "awardID", "contractID", "contractNumber",
		"title", "description", "status", "mode", "owner", "items",
		"suppliers", "procuringEntity", "value", "amountPaid",
		"terminationDetails", "period", "dateSigned", "changes",
		"documents", "milestones", "dateModified",
	)

	contractAdminFields = NewFieldSet("status", "mode", "suppliers")

	changeCreateFields = NewFieldSet(
		"rationale", "rationaleTypes", "contractNumber", "dateSigned",
	)

	changeEditFields = NewFieldSet(
		"rationale", "rationaleTypes", "contractNumber", "dateSigned",
		"status",
	)

	documentCreateFields = NewFieldSet(
		"title", "format", "url", "documentOf", "documentType",
		"relatedItem",
	)

	documentEditFields = NewFieldSet(
		"title", "format", "documentOf", "documentType", "relatedItem",
	)
)

// Sub-entity allow-lists, used by the change and document endpoints.
func ChangeCreateFields() FieldSet   { return changeCreateFields }
func ChangeEditFields() FieldSet     { return changeEditFields }
func DocumentCreateFields() FieldSet { return documentCreateFields }
func DocumentEditFields() FieldSet   { return documentEditFields }

// EditFields resolves the status-dependent edit allow-list for a contract.
// The Administrator role uses its own wider list regardless of status; for a
// contract in a non-editable status (terminated) the owner list is empty.
func EditFields(t *Type, status, role string) FieldSet {
	if role == RoleAdministrator {
		return t.AdminFields
	}
	if fs, ok := t.EditFields[status]; ok {
		return fs
	}
	return FieldSet{}
}

// Project returns the contract serialized to its generic form restricted to
// the allow-list of the given purpose. Plain keeps every declared field
// except the revision history and the modification watermark.
func Project(c *Contract, t *Type, purpose Purpose, role string) map[string]any {
	m := c.ToMap()
	switch purpose {
	case PurposePlain:
		delete(m, "revisions")
		delete(m, "dateModified")
		return m
	case PurposeView, PurposeEmbedded:
		mirrorAmountPaid(c, m)
		return restrict(m, t.ViewFields)
	case PurposeCreate:
		return restrict(m, t.CreateFields)
	case PurposeEdit:
		return restrict(m, EditFields(t, c.Status, role))
	}
	return restrict(m, FieldSet{})
}

func restrict(m map[string]any, fields FieldSet) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range m {
		if fields.Has(k) {
			out[k] = v
		}
	}
	return out
}

// mirrorAmountPaid copies currency and VAT flag from value onto the exposed
// amountPaid, which is stored with an amount only.
func mirrorAmountPaid(c *Contract, m map[string]any) {
	if c.AmountPaid == nil || c.Value == nil {
		return
	}
	ap, ok := m["amountPaid"].(map[string]any)
	if !ok {
		return
	}
	ap["currency"] = c.Value.Currency
	if c.Value.ValueAddedTaxIncluded != nil {
		ap["valueAddedTaxIncluded"] = *c.Value.ValueAddedTaxIncluded
	}
}

// CheckRogueFields rejects payload keys outside the allow-list. Create-time
// writes are strict: unknown fields are an explicit error, never silently
// dropped.
func CheckRogueFields(payload map[string]any, allowed FieldSet) error {
	var rogue []string
	for k := range payload {
		if !allowed.Has(k) {
			rogue = append(rogue, k)
		}
	}
	if len(rogue) == 0 {
		return nil
	}
	sort.Strings(rogue)
	ve := &ValidationError{}
	for _, name := range rogue {
		ve.Errors = append(ve.Errors, FieldError{Location: "body", Name: name, Description: "Rogue field"})
	}
	return ve
}

// FilterPatch drops payload keys outside the allow-list. Patch-time writes
// are permissive: disallowed keys are ignored, matching the role projection
// rather than erroring.
func FilterPatch(payload map[string]any, allowed FieldSet) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if allowed.Has(k) {
			out[k] = v
		}
	}
	return out
}
