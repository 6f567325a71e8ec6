package page

import (
	"context"
	"crypto/sha256"
	"log"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"

	"github.com/korjavin/quizpilot/models"
)

const (
	buttonSelector    = `button[data-slot="button"]`
	numberInputSelect = `input#calculator-input, input[inputmode="decimal"], input.font-mono, input[type="text"]`

	navigationTimeout = 30 * time.Second
	outcomePoll       = 250 * time.Millisecond
	submitPause       = 300 * time.Millisecond
	dialogPause       = 800 * time.Millisecond
)

// snapshotJS stamps computed border and visibility onto buttons and set links,
// then returns the whole document.
const snapshotJS = `() => {
	for (const el of document.querySelectorAll('button[data-slot="button"], a[href*="/dashboard/sets/"]')) {
		const cs = window.getComputedStyle(el);
		el.setAttribute('data-qp-border', cs.border);
		if (cs.display === 'none' || cs.visibility === 'hidden') {
			el.setAttribute('data-qp-hidden', '1');
		} else {
			el.removeAttribute('data-qp-hidden');
		}
	}
	return document.documentElement.outerHTML;
}`

// ErrNoInput is returned when a numeric answer has nowhere to go
var ErrNoInput = eris.New("numeric input field not found")

// BrowserConfig selects how Chrome is reached and which page is played
type BrowserConfig struct {
	URL          string
	Bin          string
	DebuggerURL  string
	Headless     bool
	PollInterval time.Duration
}

// Browser drives the quiz page in Chrome over the DevTools protocol
type Browser struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	poll     time.Duration
}

// Launch connects to a running Chrome when DebuggerURL is set, otherwise starts one,
// and opens the quiz page.
func Launch(ctx context.Context, cfg BrowserConfig) (*Browser, error) {
	b := &Browser{poll: cfg.PollInterval}
	if b.poll <= 0 {
		b.poll = time.Second
	}

	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "launch chrome")
		}
		controlURL = u
		b.launcher = l
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, eris.Wrap(err, "connect to chrome")
	}
	b.browser = browser

	page, err := b.findPage(cfg.URL)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.page = page
	log.Printf("Browser attached to %s", cfg.URL)
	return b, nil
}

// findPage reuses an open tab on the quiz site, which keeps an existing login, or opens one
func (b *Browser) findPage(url string) (*rod.Page, error) {
	if url == "" {
		return nil, eris.New("quiz page URL not configured")
	}
	pages, err := b.browser.Pages()
	if err != nil {
		return nil, eris.Wrap(err, "list tabs")
	}
	for _, p := range pages {
		info, err := p.Info()
		if err == nil && strings.HasPrefix(info.URL, url) {
			log.Printf("Reusing open tab %s", info.URL)
			return p, nil
		}
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", url)
	}
	if err := page.Timeout(navigationTimeout).WaitLoad(); err != nil {
		log.Printf("Page load did not finish: %v", err)
	}
	return page, nil
}

// Close releases the browser; a Chrome started by Launch is shut down
func (b *Browser) Close() error {
	var err error
	if b.launcher != nil {
		err = b.browser.Close()
		b.launcher.Cleanup()
	}
	return err
}

// Snapshot captures and parses the current document
func (b *Browser) Snapshot(ctx context.Context) (*Snapshot, error) {
	src, err := b.html(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(src)
}

func (b *Browser) html(ctx context.Context) (string, error) {
	res, err := b.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      snapshotJS,
		ByValue: true,
	})
	if err != nil {
		return "", eris.Wrap(err, "snapshot page")
	}
	return res.Value.Str(), nil
}

// State reads the current question state
func (b *Browser) State(ctx context.Context) (models.PageState, error) {
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return models.PageState{}, err
	}
	return snap.State(), nil
}

// SubmitChoice clicks the enabled answer button labelled option
func (b *Browser) SubmitChoice(ctx context.Context, option string) error {
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return err
	}
	idx, err := snap.ChoiceIndex(option)
	if err != nil {
		return err
	}
	return b.clickButton(ctx, idx, option)
}

// SubmitNumeric types value into the calculator input, presses submit and
// dismisses the confirmation dialog when it appears.
func (b *Browser) SubmitNumeric(ctx context.Context, value string) error {
	page := b.page.Context(ctx)
	has, input, err := page.Has(numberInputSelect)
	if err != nil {
		return eris.Wrap(err, "find numeric input")
	}
	if !has {
		return ErrNoInput
	}
	if err := input.SelectAllText(); err != nil {
		log.Printf("Could not select input text: %v", err)
	}
	if err := input.Input(value); err != nil {
		return eris.Wrap(err, "type numeric answer")
	}

	if err := sleep(ctx, submitPause); err != nil {
		return err
	}
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return err
	}
	idx, ok := snap.SubmitIndex()
	if !ok {
		return eris.New("submit button not found")
	}
	if err := b.clickButton(ctx, idx, ""); err != nil {
		return err
	}

	if err := sleep(ctx, dialogPause); err != nil {
		return err
	}
	snap, err = b.Snapshot(ctx)
	if err != nil {
		return err
	}
	if idx, ok := snap.ConfirmDialogIndex(); ok {
		log.Printf("Dismissing confirmation dialog")
		return b.clickButton(ctx, idx, "")
	}
	return nil
}

// clickButton clicks the idx-th answer button; a non-empty label is checked first
// so a page that re-rendered in between is not clicked blindly.
func (b *Browser) clickButton(ctx context.Context, idx int, label string) error {
	els, err := b.page.Context(ctx).Elements(buttonSelector)
	if err != nil {
		return eris.Wrap(err, "list buttons")
	}
	if idx < 0 || idx >= len(els) {
		return eris.Wrapf(ErrNoButton, "button %d of %d", idx, len(els))
	}
	el := els[idx]
	if label != "" {
		text, err := el.Text()
		if err != nil {
			return eris.Wrap(err, "read button text")
		}
		if !strings.Contains(text, label) {
			return eris.Wrapf(ErrNoButton, "button %d now reads %q", idx, text)
		}
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return eris.Wrap(err, "click button")
	}
	return nil
}

// CheckOutcome looks once for answer feedback
func (b *Browser) CheckOutcome(ctx context.Context) (models.Outcome, bool, error) {
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return models.Outcome{}, false, err
	}
	out, ok := snap.Outcome()
	return out, ok, nil
}

// ObserveOutcome watches the page and delivers the first feedback it sees.
// The channel is closed after delivery or when ctx ends.
func (b *Browser) ObserveOutcome(ctx context.Context) <-chan models.Outcome {
	ch := make(chan models.Outcome, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(outcomePoll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				out, ok, err := b.CheckOutcome(ctx)
				if err != nil || !ok {
					continue
				}
				ch <- out
				return
			}
		}
	}()
	return ch
}

// Changes signals whenever the document differs from the previous poll
func (b *Browser) Changes(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(b.poll)
		defer ticker.Stop()
		var last [sha256.Size]byte
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				src, err := b.html(ctx)
				if err != nil {
					continue
				}
				sum := sha256.Sum256([]byte(src))
				if sum == last {
					continue
				}
				last = sum
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "interrupted")
	case <-t.C:
		return nil
	}
}
