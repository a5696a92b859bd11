package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"printportal-backend/models"
)

// Template names.
const (
	TplConfirmation  = "request_confirmation"
	TplBuilderNew    = "builder_new_request"
	TplWorkOrder     = "work_order_request"
	TplStatusUpdate  = "status_update"
	TplBuilderStatus = "builder_status_update"
)

const layoutHead = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`

const detailsBlock = `{{define "details"}}
<div style="background-color: #f5f5f5; padding: 20px; border-radius: 5px; margin: 20px 0;">
  <h3 style="margin-top: 0;">Request Details:</h3>
  <p><strong>Part Number:</strong> {{.PartNumber}}</p>
  <p><strong>Quantity:</strong> {{.Quantity}}</p>
  {{if .Description}}<p><strong>Description:</strong> {{.Description}}</p>{{end}}
  {{if .Deadline}}<p><strong>Deadline:</strong> {{.Deadline}}</p>{{end}}
  {{if .FileName}}<p><strong>File:</strong> {{.FileName}}</p>{{end}}
  {{if .OldStatus}}<p><strong>Previous Status:</strong> {{.OldStatus}}</p>
  <p><strong>New Status:</strong> {{.Status}}</p>{{else}}<p><strong>Status:</strong> {{.Status}}</p>{{end}}
</div>{{end}}
{{define "requester"}}
<div style="background-color: #e3f2fd; padding: 15px; border-radius: 5px; margin: 20px 0;">
  <h4 style="margin-top: 0;">Requester Information:</h4>
  <p style="margin: 5px 0;"><strong>Name:</strong> {{.RequesterName}}</p>
  <p style="margin: 5px 0;"><strong>Email:</strong> {{.RequesterEmail}}</p>
</div>{{end}}
{{define "link"}}<p><a href="{{.Link}}">View Request Details</a></p>{{end}}
{{define "footer"}}<hr style="border: none; border-top: 1px solid #ddd; margin: 30px 0;">
<p style="color: #666; font-size: 12px;">This is an automated message from the 3D Print Request Portal.</p>{{end}}`

var bodies = map[string]string{
	TplConfirmation: layoutHead + `
<h2 style="color: #333;">3D Print Request Confirmation</h2>
<p>Hi {{.RequesterName}},</p>
<p>Your 3D print request has been successfully submitted. Here are the details:</p>
{{template "details" .}}
<p>You can track the progress of your request at: {{template "link" .}}</p>
<p>Thank you for using our 3D printing service!</p>
</div>`,
	TplStatusUpdate: layoutHead + `
<h2 style="color: #333;">3D Print Request Status Update</h2>
<p>Hi {{.RequesterName}},</p>
<p>The status of your 3D print request has been updated:</p>
{{template "details" .}}
<p>You can track the progress of your request at: {{template "link" .}}</p>
<p>Best regards,<br>3D Print Team</p>
</div>`,
	TplBuilderNew: layoutHead + `
<h2 style="color: #333;">New 3D Print Request</h2>
<p>A new 3D print request has been submitted.</p>
{{template "details" .}}
{{template "requester" .}}
{{template "link" .}}
{{template "footer" .}}
</div>`,
	TplBuilderStatus: layoutHead + `
<h2 style="color: #333;">3D Print Request Status Update</h2>
<p>The status of a 3D print request has been updated.</p>
{{template "details" .}}
{{template "requester" .}}
{{template "link" .}}
{{template "footer" .}}
</div>`,
	TplWorkOrder: layoutHead + `
<h2 style="color: #d32f2f;">Work Order Request - {{.Department}}</h2>
<p>Hi {{.LeadName}}, a new {{.Department}} work order has been requested through the 3D Print Portal.</p>
{{template "details" .}}
{{template "requester" .}}
<p>Please create a work order for this {{.Department}} request.</p>
{{template "link" .}}
{{template "footer" .}}
</div>`,
}

// View is the data every template renders from.
type View struct {
	ID             string
	PartNumber     string
	Quantity       int
	Description    string
	Deadline       string
	FileName       string
	RequesterName  string
	RequesterEmail string
	Status         models.Status
	OldStatus      models.Status
	Department     string
	LeadName       string
	Link           string
}

// Renderer turns a (template, view) pair into a subject and HTML body.
type Renderer struct {
	templates map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(bodies))}
	for name, body := range bodies {
		t, err := template.New(name).Parse(detailsBlock)
		if err != nil {
			return nil, err
		}
		if _, err := t.Parse(body); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

func (r *Renderer) Render(name string, v View) (subject, html string, err error) {
	t, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", "", err
	}
	return Subject(name, v), buf.String(), nil
}

// Subject returns the mail subject line for a template.
func Subject(name string, v View) string {
	switch name {
	case TplConfirmation:
		return "3D Print Request Confirmation - " + v.PartNumber
	case TplBuilderNew:
		return "New 3D Print Request - " + v.PartNumber
	case TplWorkOrder:
		return fmt.Sprintf("Work Order Request - %s - Part #%s", v.Department, v.PartNumber)
	default:
		return "3D Print Request Status Update - " + v.PartNumber
	}
}

// NewView flattens a request into template data.
func NewView(req *models.PrintRequest, appURL string) View {
	v := View{
		ID:             req.Id,
		PartNumber:     req.PartNumber,
		Quantity:       req.Quantity,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		Status:         req.Status,
		Link:           fmt.Sprintf("%s/request/%s", appURL, req.Id),
	}
	if req.Description != nil {
		v.Description = *req.Description
	}
	if req.Deadline != nil {
		v.Deadline = time.Time(*req.Deadline).Format("Jan 2, 2006")
	}
	if req.FileName != nil {
		v.FileName = *req.FileName
	}
	return v
}
