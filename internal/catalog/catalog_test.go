package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhouzirui/mamacare/backend/internal/analysis/intent"
	"github.com/zhouzirui/mamacare/backend/internal/catalog"
	"github.com/zhouzirui/mamacare/backend/internal/model/chat"
)

func mustDefault(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default err: %v", err)
	}
	return cat
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func TestDefaultCatalogClassifiesScenarios(t *testing.T) {
	cat := mustDefault(t)
	classifier, err := cat.Classifier()
	if err != nil {
		t.Fatalf("Classifier err: %v", err)
	}

	cases := map[string]intent.Category{
		"How tall should my 3 month old be?":                  intent.Growth,
		"is the baby sleeping enough":                         intent.Sleep,
		"is my baby's weight normal during sleep regression":  intent.Growth,
		"how many ounces of formula per bottle":               intent.Feeding,
		"when will she roll over":                             intent.Milestones,
		"he has a rash on his cheeks":                         intent.Symptoms,
		"I need to book a pediatrician appointment":           intent.Appointment,
		"my baby is choking":                                  intent.Emergency,
		"good morning":                                        intent.Default,
	}
	for input, want := range cases {
		if got := classifier.Classify(input); got != want {
			t.Errorf("Classify(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestRespondIsDeterministicForSeed(t *testing.T) {
	cat := mustDefault(t)

	for _, category := range intent.Categories() {
		a := catalog.NewSeededPicker(42)
		b := catalog.NewSeededPicker(42)
		for i := 0; i < 10; i++ {
			if x, y := cat.Respond(category, a), cat.Respond(category, b); x != y {
				t.Fatalf("%s: seeded pickers diverged at %d: %q vs %q", category, i, x, y)
			}
		}
	}
}

func TestRespondReachesEveryEntry(t *testing.T) {
	cat := mustDefault(t)

	for _, category := range intent.Categories() {
		seen := make(map[string]bool)
		for seed := uint64(0); seed < 200; seed++ {
			seen[cat.Respond(category, catalog.NewSeededPicker(seed))] = true
		}
		for _, text := range cat.Responses[category] {
			if !seen[text] {
				t.Errorf("%s: response never selected: %q", category, text)
			}
		}
	}
}

func TestRespondUnknownCategoryUsesDefault(t *testing.T) {
	cat := mustDefault(t)
	got := cat.Respond(intent.Category("weather"), catalog.NewSeededPicker(1))
	if !contains(cat.Responses[intent.Default], got) {
		t.Fatalf("expected default response, got %q", got)
	}
}

func TestRespondWithAttachmentsVideo(t *testing.T) {
	cat := mustDefault(t)

	reply := cat.RespondWithAttachments("show me a video about feeding")
	if len(reply.Attachments) != 1 {
		t.Fatalf("expected one attachment, got %d", len(reply.Attachments))
	}
	att := reply.Attachments[0]
	if att.Type != chat.AttachmentVideo {
		t.Fatalf("expected video attachment, got %s", att.Type)
	}
	if videos := att.Data.(chat.VideoList); len(videos) == 0 {
		t.Fatal("expected non-empty video list")
	}
	if reply.EnablesAIInfo {
		t.Fatal("video rule must not enable ai info")
	}
}

func TestRespondWithAttachmentsGrowthSeriesIsParallel(t *testing.T) {
	cat := mustDefault(t)

	reply := cat.RespondWithAttachments("can I see the growth chart")
	if len(reply.Attachments) != 1 || reply.Attachments[0].Type != chat.AttachmentGrowthSeries {
		t.Fatalf("expected growth series attachment, got %+v", reply.Attachments)
	}
	series := reply.Attachments[0].Data.(chat.GrowthSeries)
	if len(series.Months) == 0 || len(series.Months) != len(series.Weights) || len(series.Months) != len(series.Heights) {
		t.Fatalf("growth series not parallel: %+v", series)
	}
}

func TestRespondWithAttachmentsAIRule(t *testing.T) {
	cat := mustDefault(t)

	reply := cat.RespondWithAttachments("How do you work?")
	if !reply.EnablesAIInfo {
		t.Fatal("expected ai rule to enable ai info")
	}
	if len(reply.Attachments) != 1 || reply.Attachments[0].Type != chat.AttachmentAIInfo {
		t.Fatalf("expected aiInfo attachment, got %+v", reply.Attachments)
	}
}

func TestRespondWithAttachmentsFallback(t *testing.T) {
	cat := mustDefault(t)

	reply := cat.RespondWithAttachments("hello")
	if reply.Text != cat.Fallback {
		t.Fatalf("expected fallback text, got %q", reply.Text)
	}
	if len(reply.Attachments) != 0 || reply.EnablesAIInfo {
		t.Fatalf("fallback must carry nothing: %+v", reply)
	}
}

func TestRespondWithAttachmentsFirstRuleWins(t *testing.T) {
	cat := mustDefault(t)

	reply := cat.RespondWithAttachments("is there a video on growth percentile charts")
	if reply.Rule != "video" {
		t.Fatalf("expected the earlier video rule to win, got %s", reply.Rule)
	}
}

const minimalCatalog = `
greeting: "hi"
categories:
  growth: {keywords: [weight], responses: ["g"]}
  feeding: {keywords: [milk], responses: ["f"]}
  sleep: {keywords: [nap], responses: ["s"]}
  milestones: {keywords: [crawl], responses: ["m"]}
  symptoms: {keywords: [fever], responses: ["y"]}
  appointment: {keywords: [doctor], responses: ["a"]}
  emergency: {keywords: [urgent], responses: ["e"]}
  default: {responses: ["d"]}
rich:
  fallback: "fallback"
  rules:
    - name: chart
      keywords: [chart]
      text: "chart"
      attachment:
        type: growthSeries
        growth: {months: [0, 1], weights: [3.2, 4.0], heights: [50, 54], percentile: 50}
`

func TestParseMinimalCatalog(t *testing.T) {
	cat, err := catalog.Parse([]byte(minimalCatalog))
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if cat.Greeting != "hi" || len(cat.Rules) != 1 {
		t.Fatalf("unexpected catalog: %+v", cat)
	}
}

func TestParseRejectsEmptyResponses(t *testing.T) {
	broken := strings.Replace(minimalCatalog, `sleep: {keywords: [nap], responses: ["s"]}`, `sleep: {keywords: [nap], responses: []}`, 1)

	_, err := catalog.Parse([]byte(broken))
	if !errors.Is(err, catalog.ErrEmptyResponses) {
		t.Fatalf("expected ErrEmptyResponses, got %v", err)
	}
}

func TestParseRejectsMissingDefault(t *testing.T) {
	broken := strings.Replace(minimalCatalog, `  default: {responses: ["d"]}`+"\n", "", 1)

	_, err := catalog.Parse([]byte(broken))
	if !errors.Is(err, catalog.ErrEmptyResponses) {
		t.Fatalf("expected ErrEmptyResponses, got %v", err)
	}
}

func TestParseRejectsMismatchedGrowthSeries(t *testing.T) {
	broken := strings.Replace(minimalCatalog, "weights: [3.2, 4.0]", "weights: [3.2]", 1)

	_, err := catalog.Parse([]byte(broken))
	if !errors.Is(err, chat.ErrMismatchedSeries) {
		t.Fatalf("expected ErrMismatchedSeries, got %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	broken := minimalCatalog + "\nunexpected: true\n"
	if _, err := catalog.Parse([]byte(broken)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(minimalCatalog), 0o600); err != nil {
		t.Fatalf("WriteFile err: %v", err)
	}

	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if got := cat.Respond(intent.Sleep, catalog.NewSeededPicker(7)); got != "s" {
		t.Fatalf("expected sleep reply, got %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := catalog.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}
