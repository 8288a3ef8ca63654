package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "bgv/pkg/domain-errors"
)

// Typed identifiers. Each is a distinct named type so a CheckID can never be
// passed where a CaseID is expected.
type (
	TenantID   uuid.UUID
	CaseID     uuid.UUID
	CheckID    uuid.UUID
	DocumentID uuid.UUID
	UserID     uuid.UUID
	EntryID    uuid.UUID
)

const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID("tenant_id", s)
	return TenantID(u), err
}

func ParseCaseID(s string) (CaseID, error) {
	u, err := parseUUID("case_id", s)
	return CaseID(u), err
}

func ParseCheckID(s string) (CheckID, error) {
	u, err := parseUUID("check_id", s)
	return CheckID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID("document_id", s)
	return DocumentID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user_id", s)
	return UserID(u), err
}

func NewTenantID() TenantID     { return TenantID(uuid.New()) }
func NewCaseID() CaseID         { return CaseID(uuid.New()) }
func NewCheckID() CheckID       { return CheckID(uuid.New()) }
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }
func NewEntryID() EntryID       { return EntryID(uuid.New()) }
func NewUserID() UserID         { return UserID(uuid.New()) }

func (id TenantID) String() string   { return uuid.UUID(id).String() }
func (id CaseID) String() string     { return uuid.UUID(id).String() }
func (id CheckID) String() string    { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id EntryID) String() string    { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id CaseID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CheckID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps typed IDs readable in JSON and usable as map keys.

func (id TenantID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id CaseID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id CheckID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id EntryID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func unmarshalUUID(b []byte) (uuid.UUID, error) {
	if len(b) == 0 {
		return uuid.Nil, nil
	}
	return uuid.ParseBytes(b)
}

func (id *TenantID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = TenantID(u)
	return err
}

func (id *CaseID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = CaseID(u)
	return err
}

func (id *CheckID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = CheckID(u)
	return err
}

func (id *DocumentID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = DocumentID(u)
	return err
}

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = UserID(u)
	return err
}

func (id *EntryID) UnmarshalText(b []byte) error {
	u, err := unmarshalUUID(b)
	*id = EntryID(u)
	return err
}
