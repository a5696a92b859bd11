package services

import (
	"context"
	"strings"

	"printportal-backend/apperr"
	"printportal-backend/models"
)

// sortColumns maps wire sort names to storage columns.
var sortColumns = map[string]string{
	"createdAt":      "created_at",
	"updatedAt":      "updated_at",
	"completedAt":    "completed_at",
	"partNumber":     "part_number",
	"quantity":       "quantity",
	"deadline":       "deadline",
	"status":         "status",
	"requestType":    "request_type",
	"requesterName":  "requester_name",
	"requesterEmail": "requester_email",
}

// ListParams are the raw list query parameters.
type ListParams struct {
	Status         string `query:"status"`
	RequesterEmail string `query:"requesterEmail"`
	RequestType    string `query:"requestType"`
	Search         string `query:"search"`
	SortColumn     string `query:"sortColumn"`
	SortDirection  string `query:"sortDirection"`
}

// ParseQuery validates params into a storage query. Default order is newest first.
func ParseQuery(p ListParams) (models.RequestQuery, error) {
	q := models.RequestQuery{
		RequesterEmail: strings.TrimSpace(p.RequesterEmail),
		Search:         strings.TrimSpace(p.Search),
		SortColumn:     "created_at",
		SortDesc:       true,
	}
	fields := map[string]string{}

	if v := strings.TrimSpace(p.Status); v != "" && v != "all" {
		st := models.Status(v)
		if !st.Valid() {
			fields["status"] = "must be one of: pending in_progress completed cancelled"
		}
		q.Status = st
	}
	if v := strings.TrimSpace(p.RequestType); v != "" && v != "all" {
		switch rt := models.RequestType(v); rt {
		case models.RequestTypeRDParts, models.RequestTypeWorkOrder:
			q.RequestType = rt
		default:
			fields["requestType"] = "must be one of: rd_parts work_order"
		}
	}
	if v := strings.TrimSpace(p.SortColumn); v != "" {
		col, ok := sortColumns[v]
		if !ok {
			fields["sortColumn"] = "is not sortable"
		}
		q.SortColumn = col
	}
	switch strings.ToLower(strings.TrimSpace(p.SortDirection)) {
	case "", "desc":
		q.SortDesc = true
	case "asc":
		q.SortDesc = false
	default:
		fields["sortDirection"] = "must be one of: asc desc"
	}

	if len(fields) > 0 {
		return models.RequestQuery{}, apperr.Validation(fields)
	}
	return q, nil
}

// List runs a validated query. There is no pagination.
func (s *RequestService) List(ctx context.Context, p ListParams) ([]models.PrintRequest, error) {
	q, err := ParseQuery(p)
	if err != nil {
		return nil, err
	}
	out, err := s.store.List(ctx, q)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// Redact returns the records as-is for authenticated callers and the
// public view otherwise.
func Redact(records []models.PrintRequest, authenticated bool) any {
	if authenticated {
		return records
	}
	out := make([]models.PublicPrintRequest, len(records))
	for i := range records {
		out[i] = records[i].Public()
	}
	return out
}
