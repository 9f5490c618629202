// Package http exposes a user's session as a JSON API.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, month filters, amounts and attached images.

package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finai/internal/core"
	"finai/internal/oracle"
	"finai/internal/session"
)

const (
	maxBodyBytes  = 10 << 20
	maxImageBytes = 7 << 20
)

var (
	ErrInvalidImage = errors.New("invalid image")
	ErrInvalidMonth = errors.New("invalid month")

	errEmptyBody = errors.New("request body is empty")
)

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams reads year and month from the query. Both are optional; a
// month without a year means the current year. An unparsable or out of
// range month is an error rather than a silent default.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	var p MonthParams
	mv := strings.TrimSpace(query.Get("month"))
	yv := strings.TrimSpace(query.Get("year"))
	if mv == "" && yv == "" {
		return p, nil
	}

	p.Year = now.Year()
	if yv != "" {
		y, err := strconv.Atoi(yv)
		if err != nil || y < 1 {
			return MonthParams{}, fmt.Errorf("%w: year %q", ErrInvalidMonth, yv)
		}
		p.Year = y
	}
	if mv == "" {
		p.Month = now.Month()
		return p, nil
	}
	m, err := strconv.Atoi(mv)
	if err != nil || m < 1 || m > 12 {
		return MonthParams{}, fmt.Errorf("%w: %q", ErrInvalidMonth, mv)
	}
	p.Month = time.Month(m)
	return p, nil
}

// ParseFilter builds a transaction filter from the query string.
func ParseFilter(query url.Values, now time.Time) (session.Filter, error) {
	mp, err := ParseMonthParams(query, now)
	if err != nil {
		return session.Filter{}, err
	}
	f := session.Filter{
		Year:  mp.Year,
		Month: mp.Month,
		Query: sanitizeInput(query.Get("q")),
	}
	if st := strings.TrimSpace(query.Get("status")); st != "" {
		f.Status = core.Status(st)
		if !f.Status.Valid() {
			return session.Filter{}, core.ErrInvalidStatus
		}
	}
	return f, nil
}

// decodeJSON reads a size-limited JSON body into v. Unknown fields are
// rejected so typos in edits surface instead of being dropped.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// ParseImage decodes a base64 image. The MIME type is sniffed when the
// client does not send one, and only image types are accepted.
func ParseImage(b64, mime string) (*oracle.Image, error) {
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return nil, nil
	}
	if i := strings.Index(b64, ";base64,"); i >= 0 && strings.HasPrefix(b64, "data:") {
		if mime == "" {
			mime = strings.TrimPrefix(b64[:i], "data:")
		}
		b64 = b64[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 || len(data) > maxImageBytes {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidImage, len(data))
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidImage, mime)
	}
	return &oracle.Image{MIMEType: mime, Data: data}, nil
}

// amountInput accepts either integer cents or a decimal string such as
// "1.234,56". The string wins when both are present.
type amountInput struct {
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

func (a amountInput) money() (core.Money, error) {
	if strings.TrimSpace(a.Amount) != "" {
		cents, err := core.ParseDecimalToCents(a.Amount)
		if err != nil {
			return core.Money{}, err
		}
		return core.Cents(cents), nil
	}
	m := core.Cents(a.AmountCents)
	return m, m.Validate()
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseMonths reads the projection horizon, defaulting to three months.
func parseMonths(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("months"))
	if v == "" {
		return 3, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid months %q", v)
	}
	return n, nil
}
