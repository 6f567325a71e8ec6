// Package page reads quiz state out of the game page and drives answers back into it.
package page

import (
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/korjavin/quizpilot/models"
)

// Attributes the browser adapter stamps on elements from their computed style
// before taking a snapshot, since a static parse cannot see stylesheets.
const (
	attrBorder = "data-qp-border"
	attrHidden = "data-qp-hidden"
)

// The 3px amber border the game draws around the correct option after a wrong pick
const (
	revealBorderWidth = "3px"
	revealBorderColor = "rgb(251, 191, 36)"
)

var (
	selQuestion    = cascadia.MustCompile("p.text-lg.select-none.break-words")
	selButtons     = cascadia.MustCompile(`button[data-slot="button"]`)
	selOptionText  = cascadia.MustCompile("p.select-none, p.font-semibold")
	selButtonText  = cascadia.MustCompile("p.select-none, p.font-semibold, p")
	selCalculator  = cascadia.MustCompile(`input#calculator-input, input[inputmode="decimal"]`)
	selNumberInput = cascadia.MustCompile(`input#calculator-input, input[inputmode="decimal"], input.font-mono, input[type="text"]`)
	selSetLinks    = cascadia.MustCompile(`a[href*="/dashboard/sets/"]`)
	selHeadings    = cascadia.MustCompile("h1, h2, h3, h4")
	selLabelled    = cascadia.MustCompile("p, div, span")
	selCorrectBox  = cascadia.MustCompile("div.bg-green-600")
	selWrongBox    = cascadia.MustCompile("div.bg-red-600, div.bg-red-500")
	selArrow       = cascadia.MustCompile("div.absolute")
	selPlayIcon    = cascadia.MustCompile("svg.lucide-play")

	topicClassSelectors = []cascadia.Selector{
		cascadia.MustCompile(`[class*="topic"]`),
		cascadia.MustCompile(`[class*="category"]`),
		cascadia.MustCompile(`[class*="quiz"]`),
		cascadia.MustCompile(`[class*="set"]`),
		cascadia.MustCompile(`[class*="theme"]`),
	}
	topicLabels = []string{"Téma:", "Kategorie:", "Sada:", "Topic:"}

	keyboardTexts = map[string]bool{
		"0": true, "1": true, "2": true, "3": true, "4": true,
		"5": true, "6": true, "7": true, "8": true, "9": true,
		".": true, "-": true,
	}
	uiButtonTexts = map[string]bool{
		"Opustit hru":     true,
		"Připojit do hry": true,
		"OK":              true,
		"Zrušit":          true,
	}
)

// ErrNoButton is returned when no enabled button carries the requested option text
var ErrNoButton = eris.New("no matching answer button")

// Snapshot is a parsed copy of the game page
type Snapshot struct {
	doc *html.Node
}

// Parse parses an HTML snapshot of the game page
func Parse(src string) (*Snapshot, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, eris.Wrap(err, "parse page snapshot")
	}
	return &Snapshot{doc: doc}, nil
}

// State extracts everything the state machine needs from the snapshot
func (s *Snapshot) State() models.PageState {
	var st models.PageState

	q := selQuestion.MatchFirst(s.doc)
	if q == nil {
		return st
	}
	st.QuestionText = strings.TrimSpace(dom.TextContent(q))
	if st.QuestionText == "" {
		return st
	}

	st.TurnActive = s.turnActive()
	st.AlreadyAnswered = s.alreadyAnswered()
	st.Numeric = s.numeric()
	st.TopicHint = s.topic()
	st.ImageURL = questionImage(q)
	if !st.Numeric {
		st.Options = s.options()
	}
	return st
}

// turnActive reports whether the player may answer now: an enabled answer button
// with real text, or an enabled numeric input.
func (s *Snapshot) turnActive() bool {
	for _, btn := range selButtons.MatchAll(s.doc) {
		if disabled(btn) {
			continue
		}
		text := strings.TrimSpace(dom.TextContent(btn))
		if utf8.RuneCountInString(text) > 2 && !keyboardTexts[text] && !uiButtonTexts[text] {
			return true
		}
	}
	calc := selCalculator.MatchFirst(s.doc)
	return calc != nil && !disabled(calc)
}

func (s *Snapshot) alreadyAnswered() bool {
	for _, btn := range selButtons.MatchAll(s.doc) {
		text := strings.TrimSpace(dom.TextContent(btn))
		if disabled(btn) && !keyboardTexts[text] && utf8.RuneCountInString(text) > 2 {
			return true
		}
	}
	return false
}

func (s *Snapshot) numeric() bool {
	if selCalculator.MatchFirst(s.doc) != nil {
		return true
	}
	for _, btn := range selButtons.MatchAll(s.doc) {
		if keyboardTexts[strings.TrimSpace(dom.TextContent(btn))] {
			return true
		}
	}
	return false
}

func (s *Snapshot) options() []string {
	var opts []string
	for _, btn := range selButtons.MatchAll(s.doc) {
		if disabled(btn) {
			continue
		}
		p := selOptionText.MatchFirst(btn)
		if p == nil {
			continue
		}
		text := strings.TrimSpace(dom.TextContent(p))
		if text == "" || keyboardTexts[text] {
			continue
		}
		opts = append(opts, text)
	}
	return opts
}

// topic tries the set link, topic-ish class names, headings, labels and finally the title
func (s *Snapshot) topic() string {
	for _, link := range selSetLinks.MatchAll(s.doc) {
		text := strings.TrimSpace(dom.TextContent(link))
		n := utf8.RuneCountInString(text)
		if n > 2 && n < 100 && visible(link) {
			return text
		}
	}

	for _, sel := range topicClassSelectors {
		el := sel.MatchFirst(s.doc)
		if el == nil {
			continue
		}
		if text := strings.TrimSpace(dom.TextContent(el)); topicLike(text) {
			return text
		}
	}

	for _, h := range selHeadings.MatchAll(s.doc) {
		if text := strings.TrimSpace(dom.TextContent(h)); topicLike(text) {
			return text
		}
	}

	for _, el := range selLabelled.MatchAll(s.doc) {
		text := strings.TrimSpace(dom.TextContent(el))
		for _, label := range topicLabels {
			if !strings.Contains(text, label) {
				continue
			}
			parts := strings.SplitN(text, ":", 3)
			if len(parts) < 2 {
				continue
			}
			if name := strings.TrimSpace(parts[1]); utf8.RuneCountInString(name) > 3 {
				return name
			}
		}
	}

	for _, part := range strings.Split(s.title(), "|") {
		part = strings.TrimSpace(part)
		n := utf8.RuneCountInString(part)
		if n > 3 && n < 150 && part != "Vyzyvatel.com" && !strings.Contains(part, "Dashboard") {
			return part
		}
	}
	return ""
}

func (s *Snapshot) title() string {
	titles := dom.GetElementsByTagName(s.doc, "title")
	if len(titles) == 0 {
		return ""
	}
	return dom.TextContent(titles[0])
}

func topicLike(text string) bool {
	n := utf8.RuneCountInString(text)
	return n > 3 && n < 150 && !strings.Contains(text, "?")
}

// questionImage looks for an image inside the closest div around the question
func questionImage(q *html.Node) string {
	container := q.Parent
	for container != nil && !(container.Type == html.ElementNode && container.Data == "div") {
		container = container.Parent
	}
	if container == nil {
		return ""
	}
	img := dom.QuerySelector(container, "img")
	if img == nil {
		return ""
	}
	if src := dom.GetAttribute(img, "src"); src != "" {
		return src
	}
	return dom.GetAttribute(img, "data-src")
}

// Outcome reports the answer feedback currently shown, if any. The green box and the
// amber-bordered option both reveal the correct answer; a bare red box only says the
// pick was wrong.
func (s *Snapshot) Outcome() (models.Outcome, bool) {
	if box := selCorrectBox.MatchFirst(s.doc); box != nil {
		return models.Outcome{Kind: models.OutcomeCorrect, RevealedText: boxText(box)}, true
	}

	if text, ok := s.revealedOption(); ok {
		return models.Outcome{Kind: models.OutcomeCorrect, RevealedText: text}, true
	}

	if selWrongBox.MatchFirst(s.doc) != nil {
		return models.Outcome{Kind: models.OutcomeIncorrect}, true
	}
	return models.Outcome{}, false
}

// boxText is the green box text without its arrow decoration
func boxText(box *html.Node) string {
	text := dom.TextContent(box)
	for _, arrow := range selArrow.MatchAll(box) {
		if a := dom.TextContent(arrow); a != "" {
			text = strings.Replace(text, a, "", 1)
		}
	}
	return strings.TrimSpace(text)
}

func (s *Snapshot) revealedOption() (string, bool) {
	for _, btn := range selButtons.MatchAll(s.doc) {
		if hasClass(btn, "bg-red-500") || hasClass(btn, "bg-blue-500") || !visible(btn) {
			continue
		}
		if strings.TrimSpace(dom.TextContent(btn)) == "" {
			continue
		}
		if !revealBorder(btn) {
			continue
		}
		return ButtonText(btn), true
	}
	return "", false
}

func revealBorder(n *html.Node) bool {
	border := dom.GetAttribute(n, attrBorder)
	if border == "" {
		border = dom.GetAttribute(n, "style")
	}
	return strings.Contains(border, revealBorderWidth) && strings.Contains(border, revealBorderColor)
}

// ButtonText returns the visible label of an answer button
func ButtonText(btn *html.Node) string {
	if p := selButtonText.MatchFirst(btn); p != nil {
		return strings.TrimSpace(dom.TextContent(p))
	}
	return strings.TrimSpace(dom.TextContent(btn))
}

// ChoiceIndex returns the position among all buttons of the enabled button labelled
// option. The browser adapter clicks by that index.
func (s *Snapshot) ChoiceIndex(option string) (int, error) {
	for i, btn := range selButtons.MatchAll(s.doc) {
		if !disabled(btn) && ButtonText(btn) == option {
			return i, nil
		}
	}
	return -1, eris.Wrapf(ErrNoButton, "option %q", option)
}

// HasNumberInput reports whether any input a numeric answer can be typed into exists
func (s *Snapshot) HasNumberInput() bool {
	return selNumberInput.MatchFirst(s.doc) != nil
}

// SubmitIndex returns the button index of the numeric submit button
func (s *Snapshot) SubmitIndex() (int, bool) {
	for i, btn := range selButtons.MatchAll(s.doc) {
		if disabled(btn) {
			continue
		}
		if selPlayIcon.MatchFirst(btn) != nil || hasClass(btn, "bg-green-600") || hasClass(btn, "bg-green-500") {
			return i, true
		}
	}
	return -1, false
}

// ConfirmDialogIndex finds the confirmation dialog shown after a numeric submit:
// exactly two enabled buttons, both without text. It returns the first one.
func (s *Snapshot) ConfirmDialogIndex() (int, bool) {
	var enabled []int
	empty := 0
	for i, btn := range selButtons.MatchAll(s.doc) {
		if disabled(btn) {
			continue
		}
		enabled = append(enabled, i)
		if strings.TrimSpace(dom.TextContent(btn)) == "" {
			empty++
		}
	}
	if len(enabled) == 2 && empty == 2 {
		return enabled[0], true
	}
	return -1, false
}

func disabled(n *html.Node) bool {
	return dom.HasAttribute(n, "disabled")
}

func visible(n *html.Node) bool {
	if dom.HasAttribute(n, attrHidden) {
		return false
	}
	style := strings.ReplaceAll(dom.GetAttribute(n, "style"), " ", "")
	return !strings.Contains(style, "display:none") && !strings.Contains(style, "visibility:hidden")
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(dom.ClassName(n)) {
		if c == class {
			return true
		}
	}
	return false
}
