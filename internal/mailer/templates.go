package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/seminar-hub/backend/internal/models"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:Georgia,serif;color:#1f2933;max-width:600px;margin:0 auto;padding:24px">
<h2 style="border-bottom:2px solid #7b2d26;padding-bottom:8px">{{.Site}}</h2>
{{template "content" .}}
<p style="color:#6b7280;font-size:12px;margin-top:32px">{{.Site}} &middot; <a href="{{.PublicURL}}">{{.PublicURL}}</a></p>
</body></html>{{end}}`

var bodies = map[string]string{
	models.EmailTypeSubmissionReceived: `{{define "content"}}
<p>Dear {{.Submission.AuthorName}},</p>
<p>Thank you for submitting <strong>{{.Submission.Title}}</strong>. We received it on {{fmtTime .Submission.SubmittedAt}}.</p>
<p>The organising committee reviews proposals on a rolling basis and will contact you once a decision is made.</p>
{{end}}`,

	models.EmailTypeSubmissionAlert: `{{define "content"}}
<p>A new paper was submitted.</p>
<table cellpadding="4">
<tr><td><strong>Title</strong></td><td>{{.Submission.Title}}</td></tr>
<tr><td><strong>Author</strong></td><td>{{.Submission.AuthorName}} &lt;{{.Submission.AuthorEmail}}&gt;</td></tr>
<tr><td><strong>Affiliation</strong></td><td>{{.Submission.AuthorAffiliation}}</td></tr>
<tr><td><strong>Field</strong></td><td>{{.Submission.ResearchField}}</td></tr>
<tr><td><strong>Keywords</strong></td><td>{{.Submission.Keywords}}</td></tr>
</table>
<p><a href="{{.Link}}">Review it in the dashboard</a></p>
{{end}}`,

	models.EmailTypeStatusUpdate: `{{define "content"}}
<p>Dear {{.Submission.AuthorName}},</p>
{{if eq .Status "SCHEDULED"}}
<p>Your paper <strong>{{.Submission.Title}}</strong> has been scheduled for presentation on <strong>{{fmtTime .Event.ScheduledAt}}</strong>.</p>
{{if .Event.ZoomJoinURL}}<p>Join link: <a href="{{.Event.ZoomJoinURL}}">{{.Event.ZoomJoinURL}}</a></p>
{{else}}<p>The Zoom link will be sent to you before the session.</p>{{end}}
{{else if eq .Status "ACCEPTED"}}
<p>We are pleased to let you know that <strong>{{.Submission.Title}}</strong> has been accepted. We will be in touch to schedule your session.</p>
{{else if eq .Status "REJECTED"}}
<p>Thank you for submitting <strong>{{.Submission.Title}}</strong>. After careful consideration the committee is unable to include it in the current series.</p>
{{else if eq .Status "PRESENTED"}}
<p>Thank you for presenting <strong>{{.Submission.Title}}</strong> at the seminar.</p>
{{else}}
<p>The status of <strong>{{.Submission.Title}}</strong> is now {{.Status}}.</p>
{{end}}
{{end}}`,

	models.EmailTypeSeminarAnnouncement: `{{define "content"}}
<p>Dear {{.Name}},</p>
<p>You are invited to our next seminar:</p>
<h3>{{.Event.Title}}</h3>
<p>Presented by {{.Event.PresenterName}} on <strong>{{fmtTime .Event.ScheduledAt}}</strong>.</p>
{{if .Event.Description}}<p>{{.Event.Description}}</p>{{end}}
{{if .Event.ZoomJoinURL}}<p><a href="{{.Event.ZoomJoinURL}}">Join on Zoom</a></p>{{end}}
<p><a href="{{.Link}}">Event details</a></p>
{{end}}`,

	models.EmailTypeMagicLink: `{{define "content"}}
<p>Use the link below to sign in to the dashboard. It expires in {{.Expires}} and works once.</p>
<p><a href="{{.Link}}">Sign in</a></p>
<p>If you did not request this, you can ignore this email.</p>
{{end}}`,
}

var subjects = map[string]string{
	models.EmailTypeSubmissionReceived:  "Submission received: %s",
	models.EmailTypeSubmissionAlert:     "New submission: %s",
	models.EmailTypeStatusUpdate:        "Status update: %s",
	models.EmailTypeSeminarAnnouncement: "Upcoming seminar: %s",
	models.EmailTypeMagicLink:           "Your sign-in link for %s",
}

var funcs = template.FuncMap{
	"fmtTime": func(t time.Time) string { return t.UTC().Format("Monday, 2 January 2006 15:04 MST") },
}

// Composer renders emails for one site.
type Composer struct {
	site      string
	publicURL string
	templates map[string]*template.Template
}

// NewComposer parses every template up front; a parse failure is a programming error.
func NewComposer(site, publicURL string) *Composer {
	c := &Composer{site: site, publicURL: publicURL, templates: make(map[string]*template.Template)}
	for kind, body := range bodies {
		t := template.Must(template.New(kind).Funcs(funcs).Parse(layout))
		c.templates[kind] = template.Must(t.Parse(body))
	}
	return c
}

type view struct {
	Site       string
	PublicURL  string
	Submission *models.Submission
	Event      *models.Event
	Status     string
	Name       string
	Link       string
	Expires    string
}

func (c *Composer) render(kind, to, subjectArg string, v view) (Message, error) {
	v.Site, v.PublicURL = c.site, c.publicURL
	var buf bytes.Buffer
	if err := c.templates[kind].ExecuteTemplate(&buf, "layout", v); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}
	return Message{
		Type:    kind,
		To:      to,
		Subject: fmt.Sprintf(subjects[kind], subjectArg),
		HTML:    buf.String(),
	}, nil
}

// SubmissionReceived is the author's confirmation.
func (c *Composer) SubmissionReceived(s *models.Submission) (Message, error) {
	msg, err := c.render(models.EmailTypeSubmissionReceived, s.AuthorEmail, s.Title, view{Submission: s})
	msg.SubmissionID = &s.ID
	return msg, err
}

// SubmissionAlert notifies one admin recipient of a new submission.
func (c *Composer) SubmissionAlert(s *models.Submission, to string) (Message, error) {
	link := fmt.Sprintf("%s/admin/submissions/%s", c.publicURL, s.ID)
	msg, err := c.render(models.EmailTypeSubmissionAlert, to, s.Title, view{Submission: s, Link: link})
	msg.SubmissionID = &s.ID
	return msg, err
}

// StatusUpdate tells the author about a review decision or schedule. ev may be nil.
func (c *Composer) StatusUpdate(s *models.Submission, ev *models.Event) (Message, error) {
	msg, err := c.render(models.EmailTypeStatusUpdate, s.AuthorEmail, s.Title, view{Submission: s, Event: ev, Status: string(s.Status)})
	msg.SubmissionID = &s.ID
	if ev != nil {
		msg.EventID = &ev.ID
	}
	return msg, err
}

// SeminarAnnouncement invites one registrant to an event.
func (c *Composer) SeminarAnnouncement(ev *models.Event, name, to string) (Message, error) {
	link := fmt.Sprintf("%s/events/%s", c.publicURL, ev.ID)
	msg, err := c.render(models.EmailTypeSeminarAnnouncement, to, ev.Title, view{Event: ev, Name: name, Link: link})
	msg.EventID = &ev.ID
	return msg, err
}

// MagicLink carries a one-time admin sign-in link.
func (c *Composer) MagicLink(to, link string, ttl time.Duration) (Message, error) {
	return c.render(models.EmailTypeMagicLink, to, c.site, view{Link: link, Expires: fmt.Sprintf("%d minutes", int(ttl.Minutes()))})
}
