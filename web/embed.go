package web

import "embed"

// Templates embeds the HTML templates used for PDFs and emails.
//
//go:embed templates/pdf/*.html templates/email/*.html
var Templates embed.FS

// DayPlans embeds the day-plan CSV library used by itinerary generation.
//
//go:embed dayplans/*.csv
var DayPlans embed.FS
