package domain

import "testing"

const childMortalitySentence = "A 2024 clinical trial found that community health worker home visits reduced child mortality by 22% at low cost"

func TestClassifyChildMortalitySentence(t *testing.T) {
	tables := Default()
	d, ok := tables.Classify(childMortalitySentence)
	if !ok || d != Health {
		t.Fatalf("expected health, got %q ok=%v", d, ok)
	}
	if m := tables.ClassifyMetric(childMortalitySentence, d); m != MetricDALYs {
		t.Fatalf("expected dalys, got %s", m)
	}
	if it := tables.ClassifyIdeaType(childMortalitySentence); it != NewlyViable {
		t.Fatalf("expected newly_viable, got %s", it)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	tables := Default()
	text := "Microfinance and job training improved household income while therapy reduced anxiety"
	first, ok1 := tables.Classify(text)
	for i := 0; i < 20; i++ {
		got, ok := tables.Classify(text)
		if got != first || ok != ok1 {
			t.Fatalf("run %d: got %s/%v, first %s/%v", i, got, ok, first, ok1)
		}
	}
}

func TestClassifyTieGoesToFirstDomain(t *testing.T) {
	d, ok := Default().Classify("an intervention")
	if !ok || d != Health {
		t.Fatalf("expected tie to resolve to health, got %q ok=%v", d, ok)
	}
}

func TestClassifyStrictlyHighestWins(t *testing.T) {
	d, ok := Default().Classify("Renewable energy adaptation cuts carbon emissions")
	if !ok || d != Climate {
		t.Fatalf("expected climate, got %q ok=%v", d, ok)
	}
}

func TestClassifyUnclassifiable(t *testing.T) {
	if d, ok := Default().Classify("the quick brown fox"); ok {
		t.Fatalf("expected no domain, got %s", d)
	}
}

func TestClassifyMetricOverrides(t *testing.T) {
	tables := Default()
	for _, tc := range []struct {
		text   string
		domain Domain
		want   Metric
	}{
		{text: "cost per DALY averted", domain: Education, want: MetricDALYs},
		{text: "welfare-adjusted life years for hens", domain: Health, want: MetricWALYs},
		{text: "measured in WELBYs", domain: Climate, want: MetricWELBYs},
		{text: "reduces carbon output", domain: Health, want: MetricCO2},
		{text: "household income gains", domain: Health, want: MetricLogIncome},
		{text: "plain text", domain: AnimalWelfare, want: MetricWALYs},
		{text: "plain text", domain: EconomicDevelopment, want: MetricLogIncome},
		{text: "daly and carbon both mentioned", domain: Climate, want: MetricDALYs},
	} {
		if got := tables.ClassifyMetric(tc.text, tc.domain); got != tc.want {
			t.Fatalf("ClassifyMetric(%q, %s) = %s, want %s", tc.text, tc.domain, got, tc.want)
		}
	}
}

func TestClassifyIdeaType(t *testing.T) {
	tables := Default()
	for _, tc := range []struct {
		text string
		want IdeaType
	}{
		{text: "a neglected and persistent problem", want: Evergreen},
		{text: "a recent breakthrough in a neglected area", want: NewlyViable},
		{text: "nothing of note", want: NewlyViable},
		{text: "an emerging novel approach", want: NewlyViable},
	} {
		if got := tables.ClassifyIdeaType(tc.text); got != tc.want {
			t.Fatalf("ClassifyIdeaType(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestHitCounters(t *testing.T) {
	tables := Default()
	if got := tables.KeywordHits("vaccine prevention and vaccine therapy", Health); got != 3 {
		t.Fatalf("expected 3 distinct health keywords, got %d", got)
	}
	if got := tables.IndicatorHits("a program and a strategy for prevention"); got != 3 {
		t.Fatalf("expected 3 indicator hits, got %d", got)
	}
}

func TestTagConcept(t *testing.T) {
	tables := Default()
	if got := tables.TagConcept("carbon pricing"); len(got) != 1 || got[0] != Climate {
		t.Fatalf("expected [climate], got %v", got)
	}
	got := tables.TagConcept("community clinic mortality")
	if len(got) != 2 || got[0] != Health || got[1] != Wellbeing {
		t.Fatalf("expected [health wellbeing], got %v", got)
	}
	if got := tables.TagConcept("intervention program"); len(got) != 0 {
		t.Fatalf("generic keywords should not tag, got %v", got)
	}
}

func TestConceptKeywordMatches(t *testing.T) {
	got := Default().ConceptKeywordMatches("Wildlife habitat protection", AnimalWelfare)
	want := []string{"protection", "wildlife", "habitat"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
