package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"printportal-backend/metrics"
	"printportal-backend/models"
)

// Message is one rendered email.
type Message struct {
	Template string
	To       string
	Subject  string
	HTML     string
}

// Sender delivers a message. Implementations own their transport timeouts.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type EventKind int

const (
	EventCreated EventKind = iota
	EventStatusChanged
)

// Event is a lifecycle occurrence the router reacts to.
type Event struct {
	Kind      EventKind
	Request   models.PrintRequest
	OldStatus models.Status
}

// Recipients are the operator-configured internal mailboxes.
type Recipients struct {
	Builder  string
	AeroLead string
	MotoLead string
}

// Dispatch is one planned (template, recipient) pair.
type Dispatch struct {
	Template string
	To       string
	LeadName string
}

// Plan applies the routing table. It is pure and performs no I/O.
//
//	created        -> requester confirmation, builder
//	created + WO   -> + aero lead (Mike) or moto lead (Gunner)
//	status changed -> requester status update, builder status update
func Plan(ev Event, rc Recipients) []Dispatch {
	req := ev.Request
	switch ev.Kind {
	case EventCreated:
		out := []Dispatch{
			{Template: TplConfirmation, To: req.RequesterEmail},
			{Template: TplBuilderNew, To: rc.Builder},
		}
		if req.RequestType == models.RequestTypeWorkOrder && req.WorkOrderType != nil {
			switch *req.WorkOrderType {
			case models.WorkOrderAero:
				out = append(out, Dispatch{Template: TplWorkOrder, To: rc.AeroLead, LeadName: "Mike"})
			case models.WorkOrderMoto:
				out = append(out, Dispatch{Template: TplWorkOrder, To: rc.MotoLead, LeadName: "Gunner"})
			}
		}
		return out
	case EventStatusChanged:
		return []Dispatch{
			{Template: TplStatusUpdate, To: req.RequesterEmail},
			{Template: TplBuilderStatus, To: rc.Builder},
		}
	}
	return nil
}

// Router renders and dispatches notifications off the caller's path.
// Each dispatch is attempted independently; failures are logged and counted only.
type Router struct {
	sender     Sender
	renderer   *Renderer
	recipients Recipients
	appURL     string
	timeout    time.Duration
	logger     *logrus.Entry
	wg         sync.WaitGroup
}

func NewRouter(sender Sender, recipients Recipients, appURL string, logger *logrus.Entry) (*Router, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	return &Router{
		sender:     sender,
		renderer:   renderer,
		recipients: recipients,
		appURL:     appURL,
		timeout:    30 * time.Second,
		logger:     logger.WithField("component", "notification-router"),
	}, nil
}

// RequestCreated fires the creation notifications.
func (r *Router) RequestCreated(req models.PrintRequest) {
	r.Notify(Event{Kind: EventCreated, Request: req})
}

// StatusChanged fires the status-change notifications.
func (r *Router) StatusChanged(req models.PrintRequest, old models.Status) {
	r.Notify(Event{Kind: EventStatusChanged, Request: req, OldStatus: old})
}

// Notify launches every planned dispatch and returns without waiting.
func (r *Router) Notify(ev Event) []Dispatch {
	plan := Plan(ev, r.recipients)
	for _, d := range plan {
		r.wg.Add(1)
		go func(d Dispatch) {
			defer r.wg.Done()
			r.deliver(ev, d)
		}(d)
	}
	return plan
}

func (r *Router) deliver(ev Event, d Dispatch) {
	log := r.logger.WithFields(logrus.Fields{"template": d.Template, "request_id": ev.Request.Id})
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("notification panicked")
			metrics.NotificationsTotal.WithLabelValues(d.Template, "failed").Inc()
		}
	}()

	if d.To == "" {
		log.Warn("notification skipped: no recipient configured")
		metrics.NotificationsTotal.WithLabelValues(d.Template, "skipped").Inc()
		return
	}

	view := NewView(&ev.Request, r.appURL)
	if ev.Kind == EventStatusChanged {
		view.OldStatus = ev.OldStatus
	}
	if d.Template == TplWorkOrder {
		view.LeadName = d.LeadName
		view.Department = "Aero"
		if ev.Request.WorkOrderType != nil && *ev.Request.WorkOrderType == models.WorkOrderMoto {
			view.Department = "Moto"
		}
	}

	subject, html, err := r.renderer.Render(d.Template, view)
	if err != nil {
		log.WithError(err).Error("failed to render notification")
		metrics.NotificationsTotal.WithLabelValues(d.Template, "failed").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sender.Send(ctx, Message{Template: d.Template, To: d.To, Subject: subject, HTML: html}); err != nil {
		log.WithError(err).Error("failed to send notification")
		metrics.NotificationsTotal.WithLabelValues(d.Template, "failed").Inc()
		return
	}
	log.Debug("notification sent")
	metrics.NotificationsTotal.WithLabelValues(d.Template, "sent").Inc()
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
