// Package classify turns raw server notifications into typed, prioritized,
// actionability-annotated domain notifications.
package classify

import (
	"context"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/dukerupert/healthnotify/internal/logging"
	"github.com/dukerupert/healthnotify/internal/model"
)

// Classifier is safe for concurrent use. Besides the raw record, its output
// depends only on the options it was built with.
type Classifier struct {
	now    func() time.Time
	locale string
	server *time.Location
	logger *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock sets the time source used to compute relative ages.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocale selects the relative-age language: "vi" (default) or "en".
func WithLocale(locale string) Option {
	return func(c *Classifier) {
		c.locale = locale
	}
}

// WithServerLocation sets the zone that zone-less server timestamps are
// stamped in. Without it they are read in the local zone.
func WithServerLocation(loc *time.Location) Option {
	return func(c *Classifier) {
		c.server = loc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		now:    time.Now,
		locale: "vi",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify derives a DomainNotification from raw. It never fails: records that
// match no rule resolve to TypeGeneral.
func (c *Classifier) Classify(raw model.RawNotification) model.DomainNotification {
	display := DisplayTitle(raw.Title)
	in := newInput(raw, display)

	typ, ruleName := model.TypeGeneral, "default"
	for _, r := range rules {
		if r.match(in) {
			typ, ruleName = r.typ, r.name
			break
		}
	}

	created := raw.CreatedAt.In(c.server)
	n := model.DomainNotification{
		ID:             raw.ID,
		Type:           typ,
		Priority:       priorityOf(in),
		ActionRequired: actionRequired(raw, typ),
		Title:          display,
		OriginalTitle:  raw.Title,
		Message:        raw.Message,
		CreatedAt:      created,
		Age:            c.age(created),
		Read:           raw.Read,
		References:     raw.References.Clone(),
	}

	if ruleName == ruleUnresolvedCompletion {
		n.Degraded = true
		c.logger.LogAttrs(context.Background(), slog.LevelWarn, "completion request without resolvable reference",
			logging.NotificationID(raw.ID),
			slog.String("rule", ruleName),
			slog.String("kind", raw.Kind),
			slog.String("title", raw.Title),
		)
	}
	return n
}

// DisplayTitle translates known server titles; other titles are returned as-is.
func DisplayTitle(title string) string {
	if t, ok := displayTitles[strings.TrimSpace(title)]; ok {
		return t
	}
	return title
}

// input is the pre-normalized view every rule predicate reads.
type input struct {
	raw                  model.RawNotification
	title                string // normalized server title + display title
	text                 string // title plus plain-text message
	completionMarker     bool
	resolvableCompletion bool
}

func newInput(raw model.RawNotification, display string) *input {
	title := normalize(raw.Title)
	if display != raw.Title {
		title += " " + normalize(display)
	}
	in := &input{
		raw:   raw,
		title: title,
		text:  strings.TrimSpace(title + " " + normalize(PlainText(raw.Message))),
	}

	kind := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(raw.Kind)))
	ref := raw.CampaignCompletionRequestID
	in.completionMarker = strings.Contains(kind, model.KindCompletionRequest) || ref != nil
	in.resolvableCompletion = ref != nil && *ref > 0
	return in
}

func priorityOf(in *input) model.Priority {
	switch {
	case containsAny(in.title, highPriorityWords):
		return model.PriorityHigh
	case containsAny(in.title, mediumPriorityWords):
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func actionRequired(raw model.RawNotification, typ model.Type) bool {
	refs := raw.References
	return refs.MedicationRequestID != nil ||
		refs.MedicationScheduleID != nil ||
		refs.VaccinationFormID != nil ||
		refs.HealthCheckFormID != nil ||
		typ == model.TypeCompletionRequest
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// PlainText strips markup from rich-text message bodies.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	s = tagPattern.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}

// normalize lower-cases in the Vietnamese locale, composes diacritics and
// collapses whitespace so keyword matching is insensitive to input encoding.
func normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = cases.Lower(language.Vietnamese).String(s)
	return strings.Join(strings.Fields(s), " ")
}

func normalizeAll(words ...string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = normalize(w)
	}
	return out
}

func containsAny(s string, words []string) bool {
	if s == "" {
		return false
	}
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
