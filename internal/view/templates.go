package view

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"

	"github.com/wayfarer-ops/wayfarer/web"
)

// ErrTemplateNotFound is returned when a named template is not part of the engine.
var ErrTemplateNotFound = errors.New("view: template not found")

// Template names shipped with the binary.
const (
	PDFItinerary       = "itinerary.html"
	PDFInvoice         = "invoice.html"
	EmailDMCShare      = "dmc_share.html"
	EmailCustomerQuote = "customer_quote.html"
	EmailPaymentNotice = "payment_notice.html"
)

// Engine renders HTML documents for PDFs and email bodies.
type Engine struct {
	templates *template.Template
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	tpl, err := template.New("root").ParseFS(web.Templates, "templates/pdf/*.html", "templates/email/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Has reports whether the named template exists.
func (e *Engine) Has(name string) bool {
	return e != nil && e.templates.Lookup(name) != nil
}

// RenderString executes a named template into a string.
func (e *Engine) RenderString(name string, data any) (string, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	if !e.Has(name) {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
