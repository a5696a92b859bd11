package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound is returned by stores when no row matches an id.
var ErrNotFound = errors.New("record not found")

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports membership in the status set.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type RequestType string

const (
	RequestTypeRDParts   RequestType = "rd_parts"
	RequestTypeWorkOrder RequestType = "work_order"
)

type WorkOrderType string

const (
	WorkOrderAero WorkOrderType = "aero"
	WorkOrderMoto WorkOrderType = "moto"
)

// PrintRequest is a part/print/work-order submission tracked through its lifecycle.
type PrintRequest struct {
	Id             string          `json:"id" gorm:"primaryKey;size:36"`
	PartNumber     string          `json:"partNumber" gorm:"size:100;not null;index"`
	Description    *string         `json:"description"`
	Quantity       int             `json:"quantity" gorm:"not null"`
	Deadline       *datatypes.Date `json:"deadline"`
	RequestType    RequestType     `json:"requestType" gorm:"size:20;not null;default:rd_parts;index"`
	WorkOrderType  *WorkOrderType  `json:"workOrderType" gorm:"size:10"`
	RequesterName  string          `json:"requesterName" gorm:"size:200;not null"`
	RequesterEmail string          `json:"requesterEmail" gorm:"size:254;not null;index"`
	FileName       *string         `json:"fileName" gorm:"size:255"`
	FilePath       *string         `json:"filePath" gorm:"size:1024"`
	FileSize       *int64          `json:"fileSize"`
	Status         Status          `json:"status" gorm:"size:20;not null;default:pending;index"`
	Notes          *string         `json:"notes"`
	CreatedAt      time.Time       `json:"createdAt" gorm:"index"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	CompletedAt    *time.Time      `json:"completedAt"`
}

func (r *PrintRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if r.Id == "" {
		r.Id = uuid.NewString()
	}
	return
}

// HasAttachment reports whether the full attachment triple is present.
func (r *PrintRequest) HasAttachment() bool {
	return r.FileName != nil && r.FilePath != nil && r.FileSize != nil
}

// PublicPrintRequest is the redacted view served to unauthenticated callers.
// It carries no requester email, staff notes or storage locator.
type PublicPrintRequest struct {
	Id            string          `json:"id"`
	PartNumber    string          `json:"partNumber"`
	Description   *string         `json:"description"`
	Quantity      int             `json:"quantity"`
	Deadline      *datatypes.Date `json:"deadline"`
	RequestType   RequestType     `json:"requestType"`
	WorkOrderType *WorkOrderType  `json:"workOrderType"`
	RequesterName string          `json:"requesterName"`
	FileName      *string         `json:"fileName"`
	FileSize      *int64          `json:"fileSize"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	CompletedAt   *time.Time      `json:"completedAt"`
}

// Public returns the redacted view of r.
func (r *PrintRequest) Public() PublicPrintRequest {
	return PublicPrintRequest{
		Id:            r.Id,
		PartNumber:    r.PartNumber,
		Description:   r.Description,
		Quantity:      r.Quantity,
		Deadline:      r.Deadline,
		RequestType:   r.RequestType,
		WorkOrderType: r.WorkOrderType,
		RequesterName: r.RequesterName,
		FileName:      r.FileName,
		FileSize:      r.FileSize,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		CompletedAt:   r.CompletedAt,
	}
}

// RequestQuery is a validated list query. Column names are storage columns.
type RequestQuery struct {
	Status         Status
	RequesterEmail string
	RequestType    RequestType
	Search         string
	SortColumn     string
	SortDesc       bool
}
