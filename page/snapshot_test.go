package page

import (
	"reflect"
	"testing"

	"github.com/rotisserie/eris"

	"github.com/korjavin/quizpilot/models"
)

const choiceFixture = `<html><head><title>Hra | Vyzyvatel.com</title></head><body>
<a href="/dashboard/sets/42">Hlavní města</a>
<div class="card">
  <p class="text-lg select-none break-words">Capital of France?</p>
  <img src="https://cdn.example.com/q/eiffel.jpg">
</div>
<button data-slot="button"><p class="select-none">Paris</p></button>
<button data-slot="button"><p class="select-none">Rome</p></button>
<button data-slot="button"><p class="font-semibold">Berlin</p></button>
<button data-slot="button">Opustit hru</button>
</body></html>`

func mustParse(t *testing.T, src string) *Snapshot {
	t.Helper()
	snap, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return snap
}

func TestStateMultipleChoice(t *testing.T) {
	t.Parallel()

	st := mustParse(t, choiceFixture).State()
	want := models.PageState{
		QuestionText: "Capital of France?",
		Options:      []string{"Paris", "Rome", "Berlin"},
		ImageURL:     "https://cdn.example.com/q/eiffel.jpg",
		TopicHint:    "Hlavní města",
		TurnActive:   true,
	}
	if !reflect.DeepEqual(st, want) {
		t.Fatalf("unexpected state\n got %+v\nwant %+v", st, want)
	}
}

func TestStateNumeric(t *testing.T) {
	t.Parallel()

	src := `<html><body><h2>Zeměpis</h2>
<div><p class="text-lg select-none break-words">Kolik obyvatel má Praha?</p></div>
<input id="calculator-input" inputmode="decimal">
<button data-slot="button">1</button><button data-slot="button">2</button>
<button data-slot="button"><svg class="lucide-play"></svg></button>
</body></html>`

	st := mustParse(t, src).State()
	if !st.Numeric || !st.TurnActive || st.AlreadyAnswered {
		t.Fatalf("expected active numeric question, got %+v", st)
	}
	if len(st.Options) != 0 {
		t.Fatalf("numeric questions have no options, got %v", st.Options)
	}
	if st.TopicHint != "Zeměpis" {
		t.Fatalf("expected heading topic, got %q", st.TopicHint)
	}
}

func TestStateNotYourTurn(t *testing.T) {
	t.Parallel()

	src := `<html><body>
<div><p class="text-lg select-none break-words">Capital of Italy?</p></div>
<button data-slot="button" disabled><p class="select-none">Ro</p></button>
<button data-slot="button">Opustit hru</button>
<input id="calculator-input" disabled>
</body></html>`

	st := mustParse(t, src).State()
	if st.TurnActive {
		t.Fatalf("expected no turn, got %+v", st)
	}
}

func TestStateAlreadyAnswered(t *testing.T) {
	t.Parallel()

	src := `<html><body>
<div><p class="text-lg select-none break-words">Capital of Italy?</p></div>
<button data-slot="button" disabled><p class="select-none">Rome</p></button>
<button data-slot="button"><p class="select-none">Milan</p></button>
</body></html>`

	st := mustParse(t, src).State()
	if !st.AlreadyAnswered {
		t.Fatalf("expected answered, got %+v", st)
	}
}

func TestStateNoQuestion(t *testing.T) {
	t.Parallel()

	st := mustParse(t, `<html><body><p class="text-lg">Lobby</p></body></html>`).State()
	if st.QuestionText != "" || st.TurnActive {
		t.Fatalf("expected empty state, got %+v", st)
	}
}

func TestTopicStrategies(t *testing.T) {
	t.Parallel()

	question := `<div><p class="text-lg select-none break-words">Q?</p></div>`
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "class name",
			body: `<span class="topic-badge">Dějiny umění</span>` + question,
			want: "Dějiny umění",
		},
		{
			name: "question-like class text skipped",
			body: `<span class="category">Jaké?</span><h3>Sport a hry</h3>` + question,
			want: "Sport a hry",
		},
		{
			name: "label",
			body: `<span>Téma: Literatura</span>` + question,
			want: "Literatura",
		},
		{
			name: "hidden set link skipped",
			body: `<a href="/dashboard/sets/1" data-qp-hidden="1">Skrytá</a><h4>Filmy</h4>` + question,
			want: "Filmy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := mustParse(t, "<html><body>"+tt.body+"</body></html>").State()
			if st.TopicHint != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, st.TopicHint)
			}
		})
	}
}

func TestTopicFromTitle(t *testing.T) {
	t.Parallel()

	src := `<html><head><title>Vyzyvatel.com | Dashboard | Chemie</title></head><body>
<div><p class="text-lg select-none break-words">Q?</p></div></body></html>`
	if got := mustParse(t, src).State().TopicHint; got != "Chemie" {
		t.Fatalf("expected title topic, got %q", got)
	}
}

func TestImageFromDataSrc(t *testing.T) {
	t.Parallel()

	src := `<html><body><div><p class="text-lg select-none break-words">Who is this?</p>
<img data-src="/img/portrait.png"></div></body></html>`
	if got := mustParse(t, src).State().ImageURL; got != "/img/portrait.png" {
		t.Fatalf("expected data-src image, got %q", got)
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want models.Outcome
		ok   bool
	}{
		{
			name: "green box without arrow",
			body: `<div class="bg-green-600 rounded">1 300 000<div class="absolute">▲</div></div>`,
			want: models.Outcome{Kind: models.OutcomeCorrect, RevealedText: "1 300 000"},
			ok:   true,
		},
		{
			name: "amber bordered option after wrong pick",
			body: `<button data-slot="button" class="bg-red-500"><p class="select-none">Rome</p></button>
<button data-slot="button" data-qp-border="3px solid rgb(251, 191, 36)"><p class="select-none">Paris</p></button>`,
			want: models.Outcome{Kind: models.OutcomeCorrect, RevealedText: "Paris"},
			ok:   true,
		},
		{
			name: "inline style border",
			body: `<button data-slot="button" style="border: 3px solid rgb(251, 191, 36)"><p>Paris</p></button>`,
			want: models.Outcome{Kind: models.OutcomeCorrect, RevealedText: "Paris"},
			ok:   true,
		},
		{
			name: "red box only",
			body: `<div class="bg-red-600">Špatně</div>`,
			want: models.Outcome{Kind: models.OutcomeIncorrect},
			ok:   true,
		},
		{
			name: "nothing yet",
			body: `<button data-slot="button"><p class="select-none">Paris</p></button>`,
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mustParse(t, "<html><body>"+tt.body+"</body></html>").Outcome()
			if ok != tt.ok || got != tt.want {
				t.Fatalf("expected %+v/%v, got %+v/%v", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestChoiceIndex(t *testing.T) {
	t.Parallel()

	snap := mustParse(t, choiceFixture)
	idx, err := snap.ChoiceIndex("Berlin")
	if err != nil || idx != 2 {
		t.Fatalf("expected index 2, got %d (%v)", idx, err)
	}
	if _, err := snap.ChoiceIndex("Madrid"); !eris.Is(err, ErrNoButton) {
		t.Fatalf("expected ErrNoButton, got %v", err)
	}
}

func TestNumericSubmitHelpers(t *testing.T) {
	t.Parallel()

	snap := mustParse(t, `<html><body><input inputmode="decimal">
<button data-slot="button">7</button>
<button data-slot="button" class="bg-green-600">Odeslat</button></body></html>`)
	if !snap.HasNumberInput() {
		t.Fatalf("expected number input")
	}
	if idx, ok := snap.SubmitIndex(); !ok || idx != 1 {
		t.Fatalf("expected submit at 1, got %d/%v", idx, ok)
	}

	dialog := mustParse(t, `<html><body>
<button data-slot="button" disabled>7</button>
<button data-slot="button"><svg></svg></button>
<button data-slot="button"> </button></body></html>`)
	if idx, ok := dialog.ConfirmDialogIndex(); !ok || idx != 1 {
		t.Fatalf("expected dialog button at 1, got %d/%v", idx, ok)
	}
}
