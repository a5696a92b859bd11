package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"printportal-backend/apperr"
	"printportal-backend/metrics"
	"printportal-backend/models"
	"printportal-backend/uploads"
	"printportal-backend/utils"
	"printportal-backend/validation"
)

// RequestStore persists print requests.
type RequestStore interface {
	Create(ctx context.Context, req *models.PrintRequest) error
	Get(ctx context.Context, id string) (*models.PrintRequest, error)
	Update(ctx context.Context, id string, changes map[string]any) (*models.PrintRequest, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q models.RequestQuery) ([]models.PrintRequest, error)
}

// Notifier receives lifecycle events. Calls must not block on delivery.
type Notifier interface {
	RequestCreated(req models.PrintRequest)
	StatusChanged(req models.PrintRequest, old models.Status)
}

// locatorOwner is implemented by storage backends that accept pre-uploaded files.
type locatorOwner interface {
	OwnsLocator(locator string) bool
}

// CreateInput is the typed, trimmed submission command.
type CreateInput struct {
	PartNumber     string `json:"partNumber" validate:"required,max=100"`
	Description    string `json:"description" validate:"max=2000"`
	Quantity       int    `json:"quantity" validate:"gte=1,lte=100000"`
	Deadline       string `json:"deadline" validate:"deadline"`
	RequestType    string `json:"requestType" validate:"oneof=rd_parts work_order"`
	WorkOrderType  string `json:"workOrderType" validate:"omitempty,oneof=aero moto"`
	RequesterName  string `json:"requesterName" validate:"required,max=200"`
	RequesterEmail string `json:"requesterEmail" validate:"required,max=254,emailshape"`
}

// Attachment is either a direct upload (Body set) or a reference to a file
// the client already pushed to object storage (Locator set).
type Attachment struct {
	FileName string
	Size     int64
	Body     io.Reader
	Locator  string
}

// UpdateInput carries the staff-editable fields. Nil means "leave unchanged".
type UpdateInput struct {
	Status *models.Status `json:"status"`
	Notes  *string        `json:"notes" validate:"omitempty,max=5000"`
}

func init() {
	validation.Engine().RegisterStructValidation(createInputRules, CreateInput{})
}

// createInputRules enforces workOrderType iff requestType=work_order.
func createInputRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(CreateInput)
	isWorkOrder := in.RequestType == string(models.RequestTypeWorkOrder)
	switch {
	case isWorkOrder && in.WorkOrderType == "":
		sl.ReportError(in.WorkOrderType, "workOrderType", "WorkOrderType", "required_if", "")
	case !isWorkOrder && in.WorkOrderType != "":
		sl.ReportError(in.WorkOrderType, "workOrderType", "WorkOrderType", "excluded", "")
	}
}

// RequestService is the request lifecycle engine.
type RequestService struct {
	store    RequestStore
	storage  uploads.Storage
	gate     *uploads.Gate
	notifier Notifier
	logger   *logrus.Entry
	now      func() time.Time

	batchConcurrency int
	batchMaxItems    int
}

// Options wires a RequestService.
type Options struct {
	Store            RequestStore
	Storage          uploads.Storage
	Gate             *uploads.Gate
	Notifier         Notifier
	Logger           *logrus.Entry
	BatchConcurrency int
	BatchMaxItems    int
}

func NewRequestService(o Options) *RequestService {
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = 8
	}
	if o.BatchMaxItems <= 0 {
		o.BatchMaxItems = 200
	}
	return &RequestService{
		store:            o.Store,
		storage:          o.Storage,
		gate:             o.Gate,
		notifier:         o.Notifier,
		logger:           o.Logger.WithField("component", "request-service"),
		now:              func() time.Time { return time.Now().UTC() },
		batchConcurrency: o.BatchConcurrency,
		batchMaxItems:    o.BatchMaxItems,
	}
}

// WithClock overrides the time source.
func (s *RequestService) WithClock(now func() time.Time) *RequestService {
	s.now = now
	return s
}

// Create validates the command, admits and stores the attachment, then
// persists a pending record. Nothing is written when validation fails.
func (s *RequestService) Create(ctx context.Context, in CreateInput, att *Attachment) (*models.PrintRequest, error) {
	utils.NormalizeDTO(&in)
	if in.RequestType == "" {
		in.RequestType = string(models.RequestTypeRDParts)
	}
	if err := validation.Struct(in); err != nil {
		return nil, validation.ToAppError(err)
	}
	if att != nil {
		if err := s.checkAttachment(att); err != nil {
			return nil, err
		}
	}

	now := s.now()
	rec := &models.PrintRequest{
		PartNumber:     in.PartNumber,
		Quantity:       in.Quantity,
		RequestType:    models.RequestType(in.RequestType),
		RequesterName:  in.RequesterName,
		RequesterEmail: in.RequesterEmail,
		Status:         models.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.Description != "" {
		rec.Description = &in.Description
	}
	if in.Deadline != "" {
		t, _ := validation.ParseDeadline(in.Deadline)
		d := datatypes.Date(t)
		rec.Deadline = &d
	}
	if in.WorkOrderType != "" {
		wo := models.WorkOrderType(in.WorkOrderType)
		rec.WorkOrderType = &wo
	}

	var stored string
	if att != nil {
		locator := att.Locator
		if att.Body != nil {
			var err error
			locator, err = s.storage.Save(ctx, uploads.GenerateKey(att.FileName, now), att.Body, att.Size)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindInternal {
					return nil, apperr.Wrap(apperr.KindInternal, "Failed to store file", err)
				}
				return nil, err
			}
			stored = locator
		}
		name, size := att.FileName, att.Size
		rec.FileName, rec.FilePath, rec.FileSize = &name, &locator, &size
	}

	if err := s.store.Create(ctx, rec); err != nil {
		if stored != "" {
			if derr := s.storage.Delete(context.Background(), stored); derr != nil {
				s.logger.WithError(derr).WithField("locator", stored).Warn("failed to remove orphaned upload")
			}
		}
		return nil, apperr.Internal(err)
	}

	metrics.RequestsCreatedTotal.WithLabelValues(string(rec.RequestType)).Inc()
	s.logger.WithFields(logrus.Fields{"request_id": rec.Id, "request_type": rec.RequestType}).Info("print request created")
	if s.notifier != nil {
		s.notifier.RequestCreated(*rec)
	}
	return rec, nil
}

func (s *RequestService) checkAttachment(att *Attachment) error {
	if att.Body == nil {
		fields := map[string]string{}
		if att.Locator == "" {
			fields["fileUrl"] = "is required"
		}
		if att.FileName == "" {
			fields["fileName"] = "is required"
		}
		if att.Size <= 0 {
			fields["fileSize"] = "must be a positive integer"
		}
		if len(fields) > 0 {
			return apperr.Validation(fields)
		}
		owner, ok := s.storage.(locatorOwner)
		if !ok || !owner.OwnsLocator(att.Locator) {
			return apperr.Validation(map[string]string{"fileUrl": "is not a recognized upload location"})
		}
	}
	if err := s.gate.Admit(att.FileName, att.Size); err != nil {
		metrics.UploadRejectionsTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return err
	}
	return nil
}

// Update applies status and notes. A status change stamps completedAt when
// entering completed and notifies; notes-only edits never notify.
func (s *RequestService) Update(ctx context.Context, id string, in UpdateInput) (*models.PrintRequest, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperr.Validation(map[string]string{"status": "must be one of: pending in_progress completed cancelled"})
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	changes := utils.ColumnUpdates(&in)
	changed := in.Status != nil && *in.Status != existing.Status
	switch {
	case changed:
		changes["status"] = string(*in.Status)
	case in.Status != nil:
		delete(changes, "status")
	}
	if changed && *in.Status == models.StatusCompleted {
		changes["completed_at"] = now
	}
	changes["updated_at"] = now

	updated, err := s.store.Update(ctx, id, changes)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperr.NotFound("Request not found")
		}
		return nil, apperr.Internal(err)
	}

	if changed {
		metrics.StatusChangesTotal.WithLabelValues(string(existing.Status), string(updated.Status)).Inc()
		s.logger.WithFields(logrus.Fields{
			"request_id": id,
			"from":       existing.Status,
			"to":         updated.Status,
		}).Info("print request status changed")
		if s.notifier != nil {
			s.notifier.StatusChanged(*updated, existing.Status)
		}
	}
	return updated, nil
}

// Delete removes the record. File cleanup is best-effort and only logged.
func (s *RequestService) Delete(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.FilePath != nil && *existing.FilePath != "" {
		if err := s.storage.Delete(ctx, *existing.FilePath); err != nil && !errors.Is(err, uploads.ErrFileMissing) {
			s.logger.WithError(err).WithField("request_id", id).Warn("failed to delete attached file")
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return apperr.NotFound("Request not found")
		}
		return apperr.Internal(err)
	}
	s.logger.WithField("request_id", id).Info("print request deleted")
	return nil
}

func (s *RequestService) Get(ctx context.Context, id string) (*models.PrintRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperr.NotFound("Request not found")
		}
		return nil, apperr.Internal(err)
	}
	return req, nil
}
