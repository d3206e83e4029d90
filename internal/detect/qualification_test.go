package detect

import "testing"

func TestNormalizeMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"$500K", "$500,000", true},
		{"500k", "$500,000", true},
		{"$1.2M", "$1,200,000", true},
		{"1.5 million", "$1,500,000", true},
		{"450 thousand", "$450,000", true},
		{"$350,000", "$350,000", true},
		{"$2,500.", "$2,500", true},
		{"999", "$999", true},
		{"K", "", false},
		{"$", "", false},
		{"about a lot", "", false},
		{"0", "", false},
		{"$ 500 k.", "$500,000", true},
		{"1,234,567", "$1,234,567", true},
		{"1.2.3K", "", false},
		{"12..5k", "", false},
		{"1,2,3", "", false},
		{"12,34", "", false},
		{"1.2kk", "", false},
		{"5x", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeMoney(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("NormalizeMoney(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func findMatch(ms []Match, cat Category) *Match {
	for i := range ms {
		if ms[i].Category == cat {
			return &ms[i]
		}
	}
	return nil
}

func TestQualification_Money(t *testing.T) {
	d := newTestDetector()

	tests := []struct {
		name string
		text string
		want string
		conf float64
	}{
		{"budget around", "My budget is around $500K", "$500,000", 0.9},
		{"afford", "We can afford 400k", "$400,000", 0.9},
		{"price range words", "price range about 1.2 million", "$1,200,000", 0.9},
		{"pre-approved", "We're pre-approved already", "pre-approved", 0.8},
		{"mortgage mention", "Still talking to a mortgage broker", "mortgage", 0.8},
		{"down payment", "We saved for a down payment", "down payment", 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := findMatch(d.Qualification(tt.text), CategoryMoney)
			if m == nil {
				t.Fatalf("expected money match in %q", tt.text)
			}
			if m.Value != tt.want || m.Confidence != tt.conf {
				t.Errorf("got %q (%.1f), want %q (%.1f)", m.Value, m.Confidence, tt.want, tt.conf)
			}
		})
	}
}

func TestQualification_AmountBeatsMention(t *testing.T) {
	d := newTestDetector()
	m := findMatch(d.Qualification("We're pre-approved and our budget is $600k"), CategoryMoney)
	if m == nil || m.Value != "$600,000" || m.Confidence != 0.9 {
		t.Errorf("expected normalized amount to win, got %+v", m)
	}
}

func TestQualification_MalformedAmountDropped(t *testing.T) {
	d := newTestDetector()
	for _, text := range []string{"My budget is 1.2.3K", "price around 12..5k", "we can spend 1,2,3"} {
		if m := findMatch(d.Qualification(text), CategoryMoney); m != nil {
			t.Errorf("expected no money match for %q, got %+v", text, m)
		}
	}
}

func TestQualification_AreaAndNeeds(t *testing.T) {
	d := newTestDetector()

	ms := d.Qualification("We're looking in the Oak Park area, close to work, somewhere quiet")

	area := findMatch(ms, CategoryArea)
	if area == nil || area.Value != "Oak Park area" {
		t.Errorf("expected Oak Park area, got %+v", area)
	}
	needs := findMatch(ms, CategoryLocationNeeds)
	if needs == nil || needs.Value != "work" {
		t.Errorf("expected location need 'work', got %+v", needs)
	}
	if findMatch(ms, CategoryMoney) != nil {
		t.Error("unexpected money match")
	}
}

func TestQualification_Downtown(t *testing.T) {
	d := newTestDetector()
	area := findMatch(d.Qualification("Something downtown would be ideal"), CategoryArea)
	if area == nil || area.Value != "downtown" {
		t.Errorf("expected downtown, got %+v", area)
	}
}

func TestQualification_None(t *testing.T) {
	d := newTestDetector()
	if ms := d.Qualification("Hello, how are you?"); len(ms) != 0 {
		t.Errorf("expected no matches, got %+v", ms)
	}
}
