package classify

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/healthnotify/internal/logging"
	"github.com/dukerupert/healthnotify/internal/model"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestClassifier(opts ...Option) *Classifier {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(logging.Discard()),
	}
	return New(append(base, opts...)...)
}

func id(v int64) *int64 { return &v }

func TestClassifyApprovedCampaignWithVaccinationForm(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify(model.RawNotification{
		ID:    1,
		Title: "Campaign Approved",
		References: model.References{
			VaccinationFormID: id(42),
		},
	})

	assert.Equal(t, model.TypeVaccination, got.Type)
	assert.Equal(t, model.PriorityMedium, got.Priority)
	assert.True(t, got.ActionRequired)
	assert.Equal(t, "Chiến dịch được phê duyệt", got.Title)
	assert.Equal(t, "Campaign Approved", got.OriginalTitle)
	require.NotNil(t, got.VaccinationFormID)
	assert.Equal(t, int64(42), *got.VaccinationFormID)
}

func TestClassifyCompletionRequestWithReference(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify(model.RawNotification{
		ID:    2,
		Title: "chiến dịch chờ duyệt",
		References: model.References{
			CampaignCompletionRequestID: id(7),
		},
	})

	assert.Equal(t, model.TypeCompletionRequest, got.Type)
	assert.True(t, got.ActionRequired)
	assert.False(t, got.Degraded)
}

func TestClassifyCompletedCampaignAsStatusUpdate(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify(model.RawNotification{ID: 3, Title: "Hoàn thành chiến dịch X"})

	assert.Equal(t, model.TypeStatusUpdate, got.Type)
	assert.False(t, got.ActionRequired)
}

func TestClassifyRuleOrder(t *testing.T) {
	tests := []struct {
		name string
		raw  model.RawNotification
		want model.Type
	}{
		{
			name: "medication request reference wins over vaccination form",
			raw: model.RawNotification{Title: "Tiêm chủng", References: model.References{
				MedicationRequestID: id(1), VaccinationFormID: id(2),
			}},
			want: model.TypeMedication,
		},
		{
			name: "medication schedule reference",
			raw:  model.RawNotification{Title: "Reminder", References: model.References{MedicationScheduleID: id(5)}},
			want: model.TypeMedication,
		},
		{
			name: "vaccination reference wins over health check reference",
			raw: model.RawNotification{Title: "x", References: model.References{
				VaccinationFormID: id(2), HealthCheckFormID: id(3),
			}},
			want: model.TypeVaccination,
		},
		{
			name: "health check reference",
			raw:  model.RawNotification{Title: "Thuốc", References: model.References{HealthCheckFormID: id(3)}},
			want: model.TypeHealth,
		},
		{
			name: "explicit marker with completion phrase",
			raw:  model.RawNotification{Title: "Yêu cầu hoàn thành chiến dịch", Kind: "COMPLETION_REQUEST"},
			want: model.TypeCompletionRequest,
		},
		{
			name: "explicit marker without reference or phrase",
			raw:  model.RawNotification{Title: "Thông báo", Kind: "completion-request"},
			want: model.TypeCompletionRequest,
		},
		{
			name: "campaign status phrase",
			raw:  model.RawNotification{Title: "Campaign completed", Message: "All students vaccinated"},
			want: model.TypeStatusUpdate,
		},
		{
			name: "completion phrase without marker falls through",
			raw:  model.RawNotification{Title: "Chờ duyệt thuốc"},
			want: model.TypeMedication,
		},
		{
			name: "medication keyword in message",
			raw:  model.RawNotification{Title: "Thông báo", Message: "Học sinh cần uống <b>thuốc</b> lúc 10h"},
			want: model.TypeMedication,
		},
		{
			name: "vaccination keyword",
			raw:  model.RawNotification{Title: "Lịch tiêm vắc xin sởi"},
			want: model.TypeVaccination,
		},
		{
			name: "campaign keyword",
			raw:  model.RawNotification{Title: "New campaign created"},
			want: model.TypeVaccination,
		},
		{
			name: "health check result",
			raw:  model.RawNotification{Title: "Kết quả khám sức khỏe định kỳ"},
			want: model.TypeHealthCheckResult,
		},
		{
			name: "health check without result",
			raw:  model.RawNotification{Title: "Lịch kiểm tra sức khoẻ tháng 9"},
			want: model.TypeHealth,
		},
		{
			name: "translated title feeds keyword rules",
			raw:  model.RawNotification{Title: "Health Check Result"},
			want: model.TypeHealthCheckResult,
		},
		{
			name: "default",
			raw:  model.RawNotification{Title: "Họp phụ huynh", Message: "Phòng 101"},
			want: model.TypeGeneral,
		},
		{
			name: "empty record",
			raw:  model.RawNotification{},
			want: model.TypeGeneral,
		},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.raw)
			assert.Equal(t, tt.want, got.Type)
		})
	}
}

func TestClassifyCaseAndEncodingInsensitive(t *testing.T) {
	c := newTestClassifier()
	// Decomposed form: "thuốc" with combining marks.
	decomposed := "THUO\u0302\u0301C"
	got := c.Classify(model.RawNotification{Title: decomposed})
	assert.Equal(t, model.TypeMedication, got.Type)
}

func TestPriority(t *testing.T) {
	tests := []struct {
		title string
		want  model.Priority
	}{
		{"Campaign Rejected", model.PriorityHigh},
		{"Yêu cầu bị từ chối", model.PriorityHigh},
		{"Tiêm chủng thất bại", model.PriorityHigh},
		{"Campaign Approved", model.PriorityMedium},
		{"Cập nhật lịch khám", model.PriorityMedium},
		{"Medication schedule changed", model.PriorityMedium},
		{"Hoàn thành chiến dịch", model.PriorityMedium},
		{"Họp phụ huynh", model.PriorityLow},
		{"", model.PriorityLow},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		got := c.Classify(model.RawNotification{Title: tt.title})
		if got.Priority != tt.want {
			t.Errorf("priority(%q) = %q, want %q", tt.title, got.Priority, tt.want)
		}
	}
}

func TestPriorityIgnoresMessageBody(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify(model.RawNotification{Title: "Thông báo", Message: "Yêu cầu bị từ chối"})
	assert.Equal(t, model.PriorityLow, got.Priority)
}

func TestActionRequired(t *testing.T) {
	tests := []struct {
		name string
		raw  model.RawNotification
		want bool
	}{
		{"medication request", model.RawNotification{References: model.References{MedicationRequestID: id(1)}}, true},
		{"medication schedule", model.RawNotification{References: model.References{MedicationScheduleID: id(1)}}, true},
		{"vaccination form", model.RawNotification{References: model.References{VaccinationFormID: id(1)}}, true},
		{"health check form", model.RawNotification{References: model.References{HealthCheckFormID: id(1)}}, true},
		{"completion request", model.RawNotification{References: model.References{CampaignCompletionRequestID: id(9)}}, true},
		{"status update", model.RawNotification{Title: "Chiến dịch đã hoàn thành"}, false},
		{"keyword only", model.RawNotification{Title: "Nhắc uống thuốc"}, false},
		{"general", model.RawNotification{Title: "Xin chào"}, false},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.raw).ActionRequired)
		})
	}
}

func TestDegradedCompletionRequestIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := newTestClassifier(WithLogger(logger))

	got := c.Classify(model.RawNotification{ID: 77, Title: "Thông báo", Kind: "COMPLETION_REQUEST"})

	assert.Equal(t, model.TypeCompletionRequest, got.Type)
	assert.True(t, got.ActionRequired)
	assert.True(t, got.Degraded)
	assert.Contains(t, buf.String(), "completion request without resolvable reference")
	assert.Contains(t, buf.String(), "notification_id=77")
	assert.Contains(t, buf.String(), "rule=completion-request-unresolved")
}

func TestZeroCompletionReferenceIsDegraded(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify(model.RawNotification{
		Title:      "Thông báo",
		References: model.References{CampaignCompletionRequestID: id(0)},
	})

	assert.Equal(t, model.TypeCompletionRequest, got.Type)
	assert.True(t, got.Degraded)
}

func TestCompletionPhraseWithoutReferenceIsNotDegraded(t *testing.T) {
	var buf bytes.Buffer
	c := newTestClassifier(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	for _, raw := range []model.RawNotification{
		{ID: 1, Title: "Yêu cầu hoàn thành chiến dịch", Kind: "COMPLETION_REQUEST"},
		{ID: 2, Title: "Campaign Completion Request", References: model.References{CampaignCompletionRequestID: id(0)}},
	} {
		got := c.Classify(raw)
		assert.Equal(t, model.TypeCompletionRequest, got.Type, "id %d", raw.ID)
		assert.True(t, got.ActionRequired, "id %d", raw.ID)
		assert.False(t, got.Degraded, "id %d", raw.ID)
	}
	assert.Empty(t, buf.String())
}

func TestDisplayTitle(t *testing.T) {
	assert.Equal(t, "Chiến dịch bị từ chối", DisplayTitle("Campaign Rejected"))
	assert.Equal(t, "Chiến dịch bị từ chối", DisplayTitle("  Campaign Rejected "))
	assert.Equal(t, "campaign rejected", DisplayTitle("campaign rejected"))
	assert.Equal(t, "Tiêu đề riêng", DisplayTitle("Tiêu đề riêng"))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "plain", PlainText("plain"))
	assert.Equal(t, " Uống  thuốc  & nghỉ ", PlainText("<p>Uống <b>thuốc</b> &amp; nghỉ</p>"))
}

func TestAge(t *testing.T) {
	created := model.Timestamp{Time: fixedNow.Add(-3 * time.Minute)}

	vi := newTestClassifier().Classify(model.RawNotification{CreatedAt: created})
	assert.Equal(t, "3 phút trước", vi.Age)

	en := newTestClassifier(WithLocale("en")).Classify(model.RawNotification{CreatedAt: created})
	assert.Equal(t, "3 minutes ago", en.Age)

	none := newTestClassifier().Classify(model.RawNotification{})
	assert.Empty(t, none.Age)
}

func TestAgeOfZonelessTimestampInServerZone(t *testing.T) {
	ict := time.FixedZone("ICT", 7*60*60)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, ict)

	var created model.Timestamp
	require.NoError(t, created.UnmarshalJSON([]byte(`"2026-03-10T09:59:00"`)))

	c := newTestClassifier(
		WithClock(func() time.Time { return now }),
		WithServerLocation(ict),
	)
	got := c.Classify(model.RawNotification{ID: 1, CreatedAt: created})

	assert.Equal(t, "1 phút trước", got.Age)
	assert.True(t, got.CreatedAt.Equal(time.Date(2026, 3, 10, 2, 59, 0, 0, time.UTC)))
}

func TestClassifyDoesNotAliasReferences(t *testing.T) {
	raw := model.RawNotification{References: model.References{VaccinationFormID: id(1)}}
	got := newTestClassifier().Classify(raw)

	*raw.VaccinationFormID = 99
	assert.Equal(t, int64(1), *got.VaccinationFormID)
}

func TestRuleNamesCoverTaxonomy(t *testing.T) {
	seen := map[model.Type]bool{model.TypeGeneral: true}
	for _, r := range rules {
		seen[r.typ] = true
	}
	for _, typ := range model.Types {
		assert.True(t, seen[typ], "no rule produces %q", typ)
	}
	assert.Len(t, RuleNames(), len(rules))
}

var fragments = []string{
	"", " ", "Campaign Approved", "Campaign Rejected", "chiến dịch", "chờ duyệt", "thuốc", "tiêm",
	"kết quả", "khám sức khỏe", "hoàn thành chiến dịch", "<b>", "</b>", "&amp;", "&", "<", ">",
	"́", "Z̤͔ͧ̑̓", "💉", "\x00", "SELECT *", "từ chối", "approved", "result", "🙂🙂🙂",
}

func randomText(r *rand.Rand) string {
	var b strings.Builder
	for i := r.IntN(5); i > 0; i-- {
		b.WriteString(fragments[r.IntN(len(fragments))])
		if r.IntN(3) == 0 {
			b.WriteByte(byte(r.IntN(256)))
		}
	}
	return b.String()
}

func randomRef(r *rand.Rand) *int64 {
	switch r.IntN(4) {
	case 0:
		return nil
	case 1:
		return id(0)
	case 2:
		return id(-r.Int64N(100))
	default:
		return id(r.Int64N(1 << 40))
	}
}

func randomRaw(r *rand.Rand) model.RawNotification {
	kinds := []string{"", "COMPLETION_REQUEST", "completion-request", "GENERAL", "campaign completion request"}
	raw := model.RawNotification{
		ID:      r.Int64(),
		Title:   randomText(r),
		Message: randomText(r),
		Read:    r.IntN(2) == 0,
		Kind:    kinds[r.IntN(len(kinds))],
		References: model.References{
			MedicationRequestID:         randomRef(r),
			MedicationScheduleID:        randomRef(r),
			VaccinationFormID:           randomRef(r),
			HealthCheckFormID:           randomRef(r),
			CampaignCompletionRequestID: randomRef(r),
		},
	}
	if r.IntN(2) == 0 {
		raw.CreatedAt = model.Timestamp{Time: fixedNow.Add(time.Duration(r.Int64N(1<<50) - 1<<49))}
	}
	return raw
}

func TestClassifyTotalAndDeterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(20260310, 42))
	c := newTestClassifier()

	for i := 0; i < 10000; i++ {
		raw := randomRaw(r)

		first := c.Classify(raw)
		second := c.Classify(raw)

		if !first.Type.Valid() {
			t.Fatalf("record %d: type %q outside taxonomy", i, first.Type)
		}
		switch first.Priority {
		case model.PriorityHigh, model.PriorityMedium, model.PriorityLow:
		default:
			t.Fatalf("record %d: unknown priority %q", i, first.Priority)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("record %d: classification not deterministic\nfirst:  %+v\nsecond: %+v", i, first, second)
		}
	}
}

func ExampleClassifier_Classify() {
	c := New(
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(logging.Discard()),
	)
	n := c.Classify(model.RawNotification{
		ID:         1,
		Title:      "Campaign Approved",
		References: model.References{VaccinationFormID: id(42)},
	})
	fmt.Println(n.Type, n.Priority, n.ActionRequired, n.Title)
	// Output: vaccination medium true Chiến dịch được phê duyệt
}
