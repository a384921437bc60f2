package view

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
	for _, name := range []string{PDFItinerary, PDFInvoice, EmailDMCShare, EmailCustomerQuote, EmailPaymentNotice} {
		assert.True(t, engine.Has(name), name)
	}
}

func TestRenderStringEscapesInput(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	out, err := engine.RenderString(EmailCustomerQuote, map[string]any{
		"CustomerName": "<b>Asha</b>",
		"Destination":  "Bali",
		"Price":        "INR 1,200.00",
		"AgencyName":   "Wayfarer",
	})
	require.NoError(t, err)
	require.Contains(t, out, "&lt;b&gt;Asha&lt;/b&gt;")
	require.True(t, strings.Contains(out, "INR 1,200.00"))
}

func TestRenderStringMissingTemplate(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	_, err = engine.RenderString("missing.html", nil)
	require.True(t, errors.Is(err, ErrTemplateNotFound))
}
