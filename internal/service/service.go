// Package service contains the business rules that sit between the HTTP
// handlers and the repositories.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses query strings and bodies, writes JSON
//	Service (Business layer) → validates, checks who may see what, notifies
//	Repository (Data layer)  → builds filtered SQL and maps rows
//
// Services accept repository interfaces, never *sqlstore.Store, so the tests
// in this package run against hand-written in-memory mocks.
//
// CLOCKS:
// Every service reads the time through its now field (time.Now in
// production). Tests replace it to make "older than 24 hours" and quiet
// hours deterministic.
package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/snippet-store/internal/apperror"
)

// Validation limits.
const (
	MaxReportDetailsLength = 1000
	MaxMessageLength       = 10000
	MaxSubjectLength       = 200
	MaxAttachments         = 10
	MaxAttachmentBytes     = 25 << 20
	MaxNotificationTitle   = 200
)

// text trims s and enforces a maximum length in characters.
func text(field, s string, limit int, required bool) (string, error) {
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(s) > limit {
		return "", apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", field, limit))
	}
	return s, nil
}

func utcNow() time.Time { return time.Now().UTC() }
