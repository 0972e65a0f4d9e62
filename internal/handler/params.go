package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippet-store/internal/apperror"
	"github.com/sakif/snippet-store/internal/query"
)

// QUERY STRINGS ARE A CLOSED SET:
// Each list endpoint declares the parameters it understands. Anything else
// fails with apperror.ErrUnknownFilterField before a query is built, so a
// misspelt filter ("stauts=pending") is a 400 instead of an unfiltered page.
//
// The getters record the first parse failure and return nil afterwards;
// handlers check Err once after reading every parameter.

// Parameters every list endpoint accepts.
const (
	paramPage     = "page"
	paramPageSize = "page_size"
	paramSort     = "sort"
	paramDir      = "dir"
)

type params struct {
	values url.Values
	err    error
}

func parseParams(r *http.Request, filters ...string) *params {
	p := &params{values: r.URL.Query()}
	known := map[string]bool{paramPage: true, paramPageSize: true, paramSort: true, paramDir: true}
	for _, f := range filters {
		known[f] = true
	}
	for key := range p.values {
		if !known[key] {
			p.err = apperror.UnknownFilterField(key)
			break
		}
	}
	return p
}

func (p *params) Err() error { return p.err }

// raw returns the trimmed value of name, or "" when absent or after a failure.
func (p *params) raw(name string) string {
	if p.err != nil {
		return ""
	}
	return strings.TrimSpace(p.values.Get(name))
}

func (p *params) fail(name, format string, args ...any) {
	if p.err == nil {
		p.err = apperror.ValidationFailed(name, fmt.Sprintf("%s: %s", name, fmt.Sprintf(format, args...)))
	}
}

func (p *params) str(name string) string { return p.raw(name) }

func (p *params) optString(name string) *string {
	if s := p.raw(name); s != "" {
		return &s
	}
	return nil
}

// strings splits a comma-separated value. An absent parameter is nil; a
// present but empty one is an empty, non-nil slice.
func (p *params) strings(name string) []string {
	if p.err != nil || !p.values.Has(name) {
		return nil
	}
	out := []string{}
	for _, s := range strings.Split(p.values.Get(name), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *params) uuid(name string) *uuid.UUID {
	s := p.raw(name)
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		p.fail(name, "not a valid id")
		return nil
	}
	return &id
}

func (p *params) bool(name string) *bool {
	s := p.raw(name)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(name, "expected true or false")
		return nil
	}
	return &b
}

func (p *params) int32(name string) *int32 {
	s := p.raw(name)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		p.fail(name, "expected an integer")
		return nil
	}
	v := int32(n)
	return &v
}

// time accepts RFC 3339 timestamps.
func (p *params) time(name string) *time.Time {
	s := p.raw(name)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		p.fail(name, "expected an RFC 3339 timestamp")
		return nil
	}
	return &t
}

// duration accepts Go duration syntax ("250ms", "1h30m").
func (p *params) duration(name string) *time.Duration {
	s := p.raw(name)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(name, "expected a duration such as 250ms")
		return nil
	}
	return &d
}

func (p *params) page() query.PageRequest {
	var req query.PageRequest
	for name, dst := range map[string]*int{paramPage: &req.Page, paramPageSize: &req.Size} {
		s := p.raw(name)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			p.fail(name, "expected a positive integer")
			continue
		}
		*dst = n
	}
	return req
}

// sort validates the sort token strictly against set.
func (p *params) sort(set query.SortSet) query.Sort {
	if p.err != nil {
		return query.Sort{}
	}
	s, err := set.Parse(p.values.Get(paramSort), p.values.Get(paramDir))
	switch {
	case errors.Is(err, apperror.ErrValidation):
		p.fail(paramDir, "expected asc or desc")
	case err != nil:
		p.err = err
	}
	return s
}

// viewerHeader names the caller. Authentication happens in front of this
// service; the gateway forwards the authenticated user's ID.
const viewerHeader = "X-User-ID"

func viewer(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(viewerHeader)))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperror.Forbidden("missing or invalid " + viewerHeader + " header")
	}
	return id, nil
}

// pathID parses the {name} path segment.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperror.ValidationFailed(name, name+" is not a valid id")
	}
	return id, nil
}
