package normalize

import "testing"

func TestQuestionCollapsesWhitespaceAndCase(t *testing.T) {
	t.Parallel()

	a := Question("  What  IS  2+2?")
	b := Question("what is 2+2?")
	if a != b {
		t.Fatalf("expected equal keys, got %q and %q", a, b)
	}
	if a != "what is 2+2?" {
		t.Fatalf("unexpected key: %q", a)
	}
	if got := Question("Kolik obyvatel\n\tmá   Praha?"); got != "kolik obyvatel má praha?" {
		t.Fatalf("unexpected key for unicode spaces: %q", got)
	}
}

func TestAnswer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"1,234.50", "1234.50"},
		{"1234.50", "1234.50"},
		{"1 234,50", "1234.50"},
		{"1.234", "1234"},
		{"10.2", "10.2"},
		{"  Paris. ", "paris"},
		{"New York", "newyork"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Answer(tt.in); got != tt.want {
			t.Errorf("Answer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnswerIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"1,234.50", "1 234,50", "Paris.", "1.5.5", ",5", "x. 5", "ÉCOLE  Normale", "1.,50", "-12,5", "3.14159",
	}
	for _, in := range inputs {
		once := Answer(in)
		if twice := Answer(once); twice != once {
			t.Errorf("Answer not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	if got := CacheKey("Capital of  France?", ""); got != "capital of france?" {
		t.Fatalf("unexpected key: %q", got)
	}
	key := CacheKey("Whose flag?", "ABCDEF0123456789")
	if key != "whose flag?|||IMG:abcdef0123456789" {
		t.Fatalf("unexpected image key: %q", key)
	}
	if QuestionFromKey(key) != "whose flag?" {
		t.Fatalf("unexpected question part: %q", QuestionFromKey(key))
	}
}

func TestExtractNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Answer: 1 300 000", "1300000", true},
		{"10.200", "10200", true},
		{"10.2", "10.2", true},
		{"<think>maybe 7 or 8</think> 8", "8", true},
		{"<b>42</b>", "42", true},
		{"-15", "-15", true},
		{"1,234,567 people", "1234567", true},
		{"5.", "5", true},
		{"no idea", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractNumber(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractNumber(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCleanOracleText(t *testing.T) {
	t.Parallel()

	if got := CleanOracleText("<think>\nhmm\n</think>\nParis"); got != "Paris" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
	if got := CleanOracleText("<p>Tom &amp; Jerry</p>"); got != "Tom & Jerry" {
		t.Fatalf("unexpected cleaned markup: %q", got)
	}
}
