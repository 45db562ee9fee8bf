package contract

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Doc type tags stored alongside every contract document. Legacy lowercase
// "contract" documents are tombstones left by the pre-migration schema and
// must surface as Archived, never as live contracts.
const (
	DocTypeContract = "Contract"
	DocTypeArchived = "contract"
)

// Contract statuses shared by the built-in contract types.
const (
	StatusDraft      = "draft"
	StatusActive     = "active"
	StatusTerminated = "terminated"
)

// Change statuses.
const (
	ChangePending = "pending"
	ChangeActive  = "active"
)

// Actor roles.
const (
	RoleBroker        = "broker"
	RoleAdministrator = "Administrator"
)

// Value is a monetary amount.
type Value struct {
	Amount                float64 `json:"amount" bson:"amount"`
	Currency              string  `json:"currency,omitempty" bson:"currency,omitempty"`
	ValueAddedTaxIncluded *bool   `json:"valueAddedTaxIncluded,omitempty" bson:"valueAddedTaxIncluded,omitempty"`
}

// Period is a start/end date range.
type Period struct {
	StartDate *time.Time `json:"startDate,omitempty" bson:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty" bson:"endDate,omitempty"`
}

type Identifier struct {
	Scheme    string `json:"scheme,omitempty" bson:"scheme,omitempty"`
	ID        string `json:"id,omitempty" bson:"id,omitempty"`
	LegalName string `json:"legalName,omitempty" bson:"legalName,omitempty"`
}

type Address struct {
	StreetAddress string `json:"streetAddress,omitempty" bson:"streetAddress,omitempty"`
	Locality      string `json:"locality,omitempty" bson:"locality,omitempty"`
	Region        string `json:"region,omitempty" bson:"region,omitempty"`
	PostalCode    string `json:"postalCode,omitempty" bson:"postalCode,omitempty"`
	CountryName   string `json:"countryName,omitempty" bson:"countryName,omitempty"`
}

type ContactPoint struct {
	Name              string `json:"name,omitempty" bson:"name,omitempty"`
	Email             string `json:"email,omitempty" bson:"email,omitempty"`
	Telephone         string `json:"telephone,omitempty" bson:"telephone,omitempty"`
	URL               string `json:"url,omitempty" bson:"url,omitempty"`
	AvailableLanguage string `json:"availableLanguage,omitempty" bson:"availableLanguage,omitempty"`
}

// Organization is a supplier or procuring entity.
type Organization struct {
	Name                    string         `json:"name,omitempty" bson:"name,omitempty"`
	Identifier              *Identifier    `json:"identifier,omitempty" bson:"identifier,omitempty"`
	Address                 *Address       `json:"address,omitempty" bson:"address,omitempty"`
	ContactPoint            *ContactPoint  `json:"contactPoint,omitempty" bson:"contactPoint,omitempty"`
	AdditionalContactPoints []ContactPoint `json:"additionalContactPoints,omitempty" bson:"additionalContactPoints,omitempty"`
	Kind                    string         `json:"kind,omitempty" bson:"kind,omitempty"`
}

type Classification struct {
	Scheme      string `json:"scheme,omitempty" bson:"scheme,omitempty"`
	ID          string `json:"id,omitempty" bson:"id,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
}

type Unit struct {
	Code string `json:"code,omitempty" bson:"code,omitempty"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
}

// Item is a line item being procured under the contract.
type Item struct {
	ID                        string           `json:"id,omitempty" bson:"id,omitempty"`
	Description               string           `json:"description,omitempty" bson:"description,omitempty"`
	Classification            *Classification  `json:"classification,omitempty" bson:"classification,omitempty"`
	AdditionalClassifications []Classification `json:"additionalClassifications,omitempty" bson:"additionalClassifications,omitempty"`
	Unit                      *Unit            `json:"unit,omitempty" bson:"unit,omitempty"`
	Quantity                  float64          `json:"quantity,omitempty" bson:"quantity,omitempty"`
	DeliveryDate              *Period          `json:"deliveryDate,omitempty" bson:"deliveryDate,omitempty"`
	DeliveryAddress           *Address         `json:"deliveryAddress,omitempty" bson:"deliveryAddress,omitempty"`
}

// DocumentOf target kinds.
const (
	DocOfContract  = "contract"
	DocOfItem      = "item"
	DocOfChange    = "change"
	DocOfMilestone = "milestone"
)

// DocumentTypes is the closed vocabulary for Document.DocumentType.
var DocumentTypes = []string{
	"approvalProtocol", "conflictOfInterest", "contractAnnexe",
	"contractArrangements", "contractGuarantees", "contractNotice",
	"contractSchedule", "contractSigned", "debarments", "registerExtract",
	"rejectionProtocol", "subContract",
}

// Document is an attachment on the contract or one of its sub-entities.
type Document struct {
	ID            string     `json:"id" bson:"id"`
	DocumentOf    string     `json:"documentOf" bson:"documentOf"`
	DocumentType  string     `json:"documentType,omitempty" bson:"documentType,omitempty"`
	Title         string     `json:"title" bson:"title"`
	Format        string     `json:"format,omitempty" bson:"format,omitempty"`
	URL           string     `json:"url,omitempty" bson:"url,omitempty"`
	RelatedItem   string     `json:"relatedItem,omitempty" bson:"relatedItem,omitempty"`
	DatePublished *time.Time `json:"datePublished,omitempty" bson:"datePublished,omitempty"`
	DateModified  *time.Time `json:"dateModified,omitempty" bson:"dateModified,omitempty"`
}

// Change is a proposed modification of an active contract. At most one change
// per contract may be pending at any time.
type Change struct {
	ID             string     `json:"id" bson:"id"`
	Status         string     `json:"status" bson:"status"`
	Date           *time.Time `json:"date,omitempty" bson:"date,omitempty"`
	Rationale      string     `json:"rationale" bson:"rationale"`
	RationaleTypes []string   `json:"rationaleTypes,omitempty" bson:"rationaleTypes,omitempty"`
	ContractNumber string     `json:"contractNumber,omitempty" bson:"contractNumber,omitempty"`
	DateSigned     *time.Time `json:"dateSigned,omitempty" bson:"dateSigned,omitempty"`
}

// Milestone is only accepted by contract types that enable milestones.
type Milestone struct {
	ID          string     `json:"id" bson:"id"`
	Title       string     `json:"title,omitempty" bson:"title,omitempty"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	Status      string     `json:"status,omitempty" bson:"status,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
}

// Revision is an immutable audit record of one applied patch. Rev holds the
// concurrency token the document carried before the patch was applied.
type Revision struct {
	Author  string     `json:"author,omitempty" bson:"author,omitempty"`
	Date    *time.Time `json:"date,omitempty" bson:"date,omitempty"`
	Changes []Op       `json:"changes" bson:"changes"`
	Rev     string     `json:"rev,omitempty" bson:"rev,omitempty"`
}

// Contract is the primary persisted resource.
//
// Rev and DocType are persistence bookkeeping: Rev is the optimistic
// concurrency token checked by the repository on every write, DocType tags
// live documents apart from tombstones. Neither is part of any client-facing
// projection, so both carry `json:"-"`.
type Contract struct {
	ID       string `json:"id" bson:"_id"`
	DocType  string `json:"-" bson:"doc_type"`
	Rev      string `json:"-" bson:"rev"`
	DocIndex int    `json:"-" bson:"doc_index,omitempty"`

	ContractType   string `json:"contractType,omitempty" bson:"contractType,omitempty"`
	AwardID        string `json:"awardID,omitempty" bson:"awardID,omitempty"`
	ContractID     string `json:"contractID,omitempty" bson:"contractID,omitempty"`
	ContractNumber string `json:"contractNumber,omitempty" bson:"contractNumber,omitempty"`
	Title          string `json:"title,omitempty" bson:"title,omitempty"`
	Description    string `json:"description,omitempty" bson:"description,omitempty"`
	Status         string `json:"status,omitempty" bson:"status,omitempty"`
	Mode           string `json:"mode,omitempty" bson:"mode,omitempty"`

	Owner      string `json:"owner,omitempty" bson:"owner,omitempty"`
	OwnerToken string `json:"owner_token,omitempty" bson:"owner_token,omitempty"`

	Period             *Period       `json:"period,omitempty" bson:"period,omitempty"`
	Value              *Value        `json:"value,omitempty" bson:"value,omitempty"`
	AmountPaid         *Value        `json:"amountPaid,omitempty" bson:"amountPaid,omitempty"`
	TerminationDetails string        `json:"terminationDetails,omitempty" bson:"terminationDetails,omitempty"`
	DateSigned         *time.Time    `json:"dateSigned,omitempty" bson:"dateSigned,omitempty"`
	ProcuringEntity    *Organization `json:"procuringEntity,omitempty" bson:"procuringEntity,omitempty"`
	Suppliers          []Organization `json:"suppliers,omitempty" bson:"suppliers,omitempty"`
	Items              []Item        `json:"items,omitempty" bson:"items,omitempty"`
	Changes            []Change      `json:"changes,omitempty" bson:"changes,omitempty"`
	Documents          []Document    `json:"documents,omitempty" bson:"documents,omitempty"`
	Milestones         []Milestone   `json:"milestones,omitempty" bson:"milestones,omitempty"`

	DateModified time.Time  `json:"dateModified,omitempty" bson:"dateModified"`
	Revisions    []Revision `json:"revisions,omitempty" bson:"revisions,omitempty"`
}

// NewID returns a 32-character hex identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PendingChange returns the contract's pending change, if any.
func (c *Contract) PendingChange() *Change {
	for i := range c.Changes {
		if c.Changes[i].Status == ChangePending {
			return &c.Changes[i]
		}
	}
	return nil
}

// ChangeByID returns the change with the given id.
func (c *Contract) ChangeByID(id string) *Change {
	for i := range c.Changes {
		if c.Changes[i].ID == id {
			return &c.Changes[i]
		}
	}
	return nil
}

// DocumentByID returns the document with the given id.
func (c *Contract) DocumentByID(id string) *Document {
	for i := range c.Documents {
		if c.Documents[i].ID == id {
			return &c.Documents[i]
		}
	}
	return nil
}

// HasRelated reports whether an entity of the given kind with the given id
// exists on the contract. Used to resolve Document.RelatedItem references.
func (c *Contract) HasRelated(kind, id string) bool {
	switch kind {
	case DocOfItem:
		for _, it := range c.Items {
			if it.ID == id {
				return true
			}
		}
	case DocOfChange:
		for _, ch := range c.Changes {
			if ch.ID == id {
				return true
			}
		}
	case DocOfMilestone:
		for _, m := range c.Milestones {
			if m.ID == id {
				return true
			}
		}
	}
	return false
}

// ToMap serializes the contract to its generic JSON form. This is the input
// shape for projections and diffing.
func (c *Contract) ToMap() map[string]any {
	b, _ := json.Marshal(c)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

// FromMap decodes a generic JSON map into a Contract. Type mismatches are
// reported as field-level validation errors.
func FromMap(m map[string]any) (*Contract, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var c Contract
	dec := json.NewDecoder(strings.NewReader(string(b)))
	if err := dec.Decode(&c); err != nil {
		if ute, ok := err.(*json.UnmarshalTypeError); ok {
			return nil, &ValidationError{Errors: []FieldError{{
				Location:    "body",
				Name:        ute.Field,
				Description: "Invalid value type",
			}}}
		}
		if strings.Contains(err.Error(), "parsing time") {
			return nil, NewValidationError("body", "data", "Invalid date format")
		}
		return nil, err
	}
	return &c, nil
}
