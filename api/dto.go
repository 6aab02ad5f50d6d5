/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types keep the
  domain types (roster.Date, status.Payload, decimal coverage) out of the
  external contract. All dates on the wire are YYYY-MM-DD strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Operation results that are not a single record

VALIDATION:
  Request types carry go-playground/validator tags. Handlers run
  decodeAndValidate before touching the domain; a failing tag is a 400.
  Tags only check shape. Rules that need the domain (slot exists, deputy
  exists) stay in the services.

SEE ALSO:
  - handlers.go: Uses these types
  - status/payload.go: Stored status encoding
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/directory"
	"github.com/warp/court-roster/staffing"
	"github.com/warp/court-roster/status"
)

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// AssignmentDTO is one court assignment.
type AssignmentDTO struct {
	ID              int64  `json:"id"`
	AssignmentDate  string `json:"assignment_date"`
	Courthouse      string `json:"courthouse"`
	AssignmentType  string `json:"assignment_type"`
	LocationGroup   string `json:"location_group"`
	LocationDetail  string `json:"location_detail"`
	Part            string `json:"part"`
	JudgeName       string `json:"judge_name"`
	ShiftTime       string `json:"shift_time"`
	AssignedMember  string `json:"assigned_member"`
	AssignmentNotes string `json:"assignment_notes"`
}

func toAssignmentDTO(a assignment.CourtAssignment) AssignmentDTO {
	return AssignmentDTO{
		ID:              a.ID,
		AssignmentDate:  a.Date.String(),
		Courthouse:      a.Courthouse,
		AssignmentType:  a.AssignmentType,
		LocationGroup:   a.LocationGroup,
		LocationDetail:  a.LocationDetail,
		Part:            a.Part,
		JudgeName:       a.JudgeName,
		ShiftTime:       a.ShiftTime,
		AssignedMember:  a.AssignedMember,
		AssignmentNotes: a.AssignmentNotes,
	}
}

// MaterializeRequest names the day to seed from templates.
type MaterializeRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type MaterializeResponse struct {
	Date     string `json:"date"`
	Inserted int64  `json:"inserted"`
}

// AssignRequest identifies a slot and the fields to change. Fixed Post
// slots are matched by location_group, every other type by
// location_detail. Omitted fields are left unchanged; "" clears them.
type AssignRequest struct {
	AssignmentDate  string  `json:"assignment_date" validate:"required,datetime=2006-01-02"`
	Courthouse      string  `json:"courthouse" validate:"required,max=100"`
	AssignmentType  string  `json:"assignment_type" validate:"required,max=100"`
	LocationGroup   string  `json:"location_group" validate:"max=200"`
	LocationDetail  string  `json:"location_detail" validate:"max=200"`
	Part            string  `json:"part" validate:"max=50"`
	AssignedMember  *string `json:"assigned_member" validate:"omitempty,max=200"`
	AssignmentNotes *string `json:"assignment_notes" validate:"omitempty,max=2000"`
}

// CoverageDTO summarizes filled slots for a day.
type CoverageDTO struct {
	Date       string          `json:"date"`
	Courthouse string          `json:"courthouse,omitempty"`
	Total      int             `json:"total"`
	Filled     int             `json:"filled"`
	Open       int             `json:"open"`
	FillRate   decimal.Decimal `json:"fill_rate"`
}

func toCoverageDTO(c assignment.Coverage) CoverageDTO {
	return CoverageDTO{
		Date:       c.Date.String(),
		Courthouse: c.Courthouse,
		Total:      c.Total,
		Filled:     c.Filled,
		Open:       c.Open(),
		FillRate:   c.FillRate(),
	}
}

// TemplateDTO is a recurring slot. ID 0 on save creates a new template.
type TemplateDTO struct {
	ID              int64  `json:"id"`
	Courthouse      string `json:"courthouse" validate:"required,max=100"`
	AssignmentType  string `json:"assignment_type" validate:"required,max=100"`
	LocationGroup   string `json:"location_group" validate:"max=200"`
	LocationDetail  string `json:"location_detail" validate:"max=200"`
	Part            string `json:"part" validate:"max=50"`
	JudgeName       string `json:"judge_name" validate:"max=200"`
	ShiftTime       string `json:"shift_time" validate:"max=50"`
	AssignmentNotes string `json:"assignment_notes" validate:"max=2000"`
}

func toTemplateDTO(t assignment.Template) TemplateDTO {
	return TemplateDTO(t)
}

func (d TemplateDTO) template() assignment.Template {
	return assignment.Template(d)
}

// =============================================================================
// STAFFING
// =============================================================================

// StaffingDTO is the grid as of a date.
type StaffingDTO struct {
	AsOf  string          `json:"as_of"`
	Cells []staffing.Cell `json:"cells"`
}

// StaffingCellDTO is a fact written exactly on its date.
type StaffingCellDTO struct {
	StaffingDate string `json:"staffing_date"`
	RowNumber    int    `json:"row_number"`
	ColumnName   string `json:"column_name"`
	DeputyName   string `json:"deputy_name"`
}

// WriteCellRequest records one cell. An empty deputy_name clears the cell
// from that date on.
type WriteCellRequest struct {
	StaffingDate string `json:"staffing_date" validate:"required,datetime=2006-01-02"`
	RowNumber    int    `json:"row_number" validate:"gte=0"`
	ColumnName   string `json:"column_name" validate:"required,max=100"`
	DeputyName   string `json:"deputy_name" validate:"max=200"`
}

type CarryForwardRequest struct {
	TargetDate string `json:"target_date" validate:"required,datetime=2006-01-02"`
	ColumnName string `json:"column_name" validate:"required,max=100"`
}

type CarryForwardResponse struct {
	Status     string `json:"status"`
	SourceDate string `json:"source_date,omitempty"`
	Copied     int64  `json:"copied"`
}

// =============================================================================
// STATUS
// =============================================================================

// ResolveStatusRequest resolves a raw stored payload. A null payload has
// no status; an empty date resolves to the legacy value.
type ResolveStatusRequest struct {
	Payload *string `json:"payload"`
	Date    string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// ResolveStatusResponse carries null when no status applies.
type ResolveStatusResponse struct {
	Status *string `json:"status"`
}

// StatusDTO is a deputy's effective status and the payload it came from.
type StatusDTO struct {
	FullName string         `json:"full_name"`
	Date     string         `json:"date,omitempty"`
	Status   *string        `json:"status"`
	Legacy   string         `json:"legacy,omitempty"`
	Ranges   []status.Range `json:"ranges"`
}

func toStatusDTO(v directory.StatusView) StatusDTO {
	dto := StatusDTO{
		FullName: v.FullName,
		Legacy:   v.Payload.Legacy,
		Ranges:   v.Payload.Ranges,
	}
	if !v.On.IsZero() {
		dto.Date = v.On.String()
	}
	if v.HasStatus {
		s := v.Status
		dto.Status = &s
	}
	if dto.Ranges == nil {
		dto.Ranges = []status.Range{}
	}
	return dto
}

// SetLegacyStatusRequest replaces the legacy status. "" clears it.
type SetLegacyStatusRequest struct {
	Status string `json:"status" validate:"max=100"`
}

// StatusRangeRequest adds or removes one dated status.
type StatusRangeRequest struct {
	Status    string `json:"status" validate:"required,max=100"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (r StatusRangeRequest) statusRange() status.Range {
	return status.Range{Status: r.Status, StartDate: r.StartDate, EndDate: r.EndDate}
}

// =============================================================================
// DEPUTIES
// =============================================================================

// DeputyDTO is a directory record with its effective status.
type DeputyDTO struct {
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	CapacityTag string    `json:"capacity_tag"`
	Division    string    `json:"division,omitempty"`
	Rank        string    `json:"rank,omitempty"`
	Status      StatusDTO `json:"status"`
}

func toDeputyDTO(d directory.Deputy, view directory.StatusView) DeputyDTO {
	return DeputyDTO{
		FullName:    d.FullName,
		Email:       d.Email,
		CapacityTag: d.CapacityTag,
		Division:    d.Division,
		Rank:        d.Rank,
		Status:      toStatusDTO(view),
	}
}

// UpsertDeputyRequest creates a deputy, or renames and updates the one
// named original_full_name when it is given.
type UpsertDeputyRequest struct {
	FullName         string `json:"full_name" validate:"required,max=200"`
	OriginalFullName string `json:"original_full_name" validate:"max=200"`
	Email            string `json:"email" validate:"max=320"`
	CapacityTag      string `json:"capacity_tag" validate:"max=100"`
	Division         string `json:"division" validate:"max=100"`
	Rank             string `json:"rank" validate:"max=100"`
}

type UpsertDeputyResponse struct {
	Status    string                 `json:"status"`
	Persisted directory.Capabilities `json:"persisted"`
	Dropped   []string               `json:"dropped"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Details   string            `json:"details,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
