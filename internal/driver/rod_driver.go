package driver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/placescout/scoutengine/internal/domain"
	"go.uber.org/zap"
)

// resultListSelector is the CSS selector the driver waits for before
// considering a search page loaded, and the container ParseResults reads
// list items from.
const (
	resultListSelector = "[role=feed]"
	resultItemSelector = "[role=article]"
	queryBoxSelector   = "#searchboxinput"
)

// RodDriver is the production Driver implementation, backed by a headless
// Chromium instance via go-rod and HTML parsing via goquery — the same
// split the teacher's crawler workers use across browser_worker.go (rod
// navigation) and html_worker.go (goquery extraction).
type RodDriver struct {
	log      *zap.Logger
	headless bool
	baseURL  string
}

// NewRodDriver constructs a RodDriver. baseURL is the map search service's
// search endpoint, e.g. "https://maps.example.com/search".
func NewRodDriver(log *zap.Logger, headless bool, baseURL string) *RodDriver {
	return &RodDriver{log: log, headless: headless, baseURL: baseURL}
}

type rodSession struct {
	userDir string
	browser *rod.Browser
	page    *rod.Page
}

func (*rodSession) sessionMarker() {}

func (d *RodDriver) Open(ctx context.Context) (Session, error) {
	userDir, err := os.MkdirTemp("", "scoutengine-bot-")
	if err != nil {
		return nil, domain.NewFatalError("create browser profile dir", err)
	}

	launch := launcher.New().
		Headless(d.headless).
		UserDataDir(userDir).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	controlURL, err := launch.Launch()
	if err != nil {
		os.RemoveAll(userDir)
		return nil, domain.NewTransientError("launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		os.RemoveAll(userDir)
		return nil, domain.NewTransientError("connect to browser", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		os.RemoveAll(userDir)
		return nil, domain.NewTransientError("open page", err)
	}

	router := page.HijackRequests()
	router.MustAdd("*.{png,jpg,jpeg,gif,webp,woff,woff2,ttf,css}", blockResource)
	router.MustAdd("*ads*", blockResource)
	router.MustAdd("*track*", blockResource)
	go router.Run()

	return &rodSession{userDir: userDir, browser: browser, page: page}, nil
}

func blockResource(h *rod.Hijack) {
	h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
}

func (d *RodDriver) Navigate(ctx context.Context, s Session, spec SearchSpec) error {
	rs := s.(*rodSession)
	searchURL := d.buildSearchURL(spec)
	err := rs.page.Context(ctx).Navigate(searchURL)
	if err != nil {
		return classifyRodErr("navigate", err)
	}
	return nil
}

func (d *RodDriver) buildSearchURL(spec SearchSpec) string {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("%s %s", spec.Activity, spec.GeonameName))
	if spec.ISOLanguage != "" {
		q.Set("hl", spec.ISOLanguage)
	}
	if spec.Locale != "" {
		q.Set("gl", spec.Locale)
	}
	return d.baseURL + "?" + q.Encode()
}

func (d *RodDriver) WaitFor(ctx context.Context, s Session) error {
	rs := s.(*rodSession)
	el, err := rs.page.Context(ctx).Element(resultListSelector)
	if err != nil {
		return classifyRodErr("wait_for result list", err)
	}
	if err := el.WaitVisible(); err != nil {
		return classifyRodErr("wait_for visible", err)
	}
	return nil
}

func (d *RodDriver) FillQuery(ctx context.Context, s Session, text string) error {
	rs := s.(*rodSession)
	box, err := rs.page.Context(ctx).Element(queryBoxSelector)
	if err != nil {
		return classifyRodErr("find query box", err)
	}
	if err := box.SelectAllText(); err != nil {
		return classifyRodErr("select query box", err)
	}
	if err := box.Input(text); err != nil {
		return classifyRodErr("fill query", err)
	}
	return box.Type('\n')
}

func (d *RodDriver) ScrollResultList(ctx context.Context, s Session, maxScrolls int) error {
	rs := s.(*rodSession)
	list, err := rs.page.Context(ctx).Element(resultListSelector)
	if err != nil {
		return classifyRodErr("find result list for scroll", err)
	}
	for i := 0; i < maxScrolls; i++ {
		if ctx.Err() != nil {
			return domain.NewTransientError("scroll cancelled", ctx.Err())
		}
		if _, err := list.Eval(`() => { this.scrollTop = this.scrollHeight }`); err != nil {
			return classifyRodErr("scroll result list", err)
		}
	}
	return nil
}

func (d *RodDriver) ParseResults(ctx context.Context, s Session, maxResults int) ([]PlaceRecord, error) {
	rs := s.(*rodSession)
	html, err := rs.page.Context(ctx).HTML()
	if err != nil {
		return nil, classifyRodErr("read page html", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, domain.NewPermanentError("parse page html", err)
	}

	var records []PlaceRecord
	doc.Find(resultItemSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(records) >= maxResults {
			return false
		}
		rec := parseResultItem(sel)
		if rec.Name == "" {
			return true
		}
		records = append(records, rec)
		return true
	})

	if len(records) == 0 {
		return nil, domain.NewPermanentError("no result items found in page", nil)
	}
	return records, nil
}

func parseResultItem(sel *goquery.Selection) PlaceRecord {
	var rec PlaceRecord
	rec.Name = strings.TrimSpace(sel.Find("[data-field=name]").First().Text())
	rec.Address = strings.TrimSpace(sel.Find("[data-field=address]").First().Text())
	rec.Category = strings.TrimSpace(sel.Find("[data-field=category]").First().Text())
	rec.Phone = strings.TrimSpace(sel.Find("[data-field=phone]").First().Text())
	if href, ok := sel.Find("[data-field=website]").First().Attr("href"); ok {
		rec.Website = href
	}
	if ratingText := strings.TrimSpace(sel.Find("[data-field=rating]").First().Text()); ratingText != "" {
		if v, err := strconv.ParseFloat(ratingText, 64); err == nil {
			rec.Rating = &v
		}
	}
	if countText := strings.TrimSpace(sel.Find("[data-field=review-count]").First().Text()); countText != "" {
		if v, err := strconv.Atoi(strings.Trim(countText, "()")); err == nil {
			rec.ReviewCount = &v
		}
	}
	return rec
}

func (d *RodDriver) CaptureImage(ctx context.Context, s Session) ([]byte, error) {
	rs := s.(*rodSession)
	img, err := rs.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, classifyRodErr("capture screenshot", err)
	}
	return img, nil
}

func (d *RodDriver) CurrentURL(ctx context.Context, s Session) (string, error) {
	rs := s.(*rodSession)
	info, err := rs.page.Context(ctx).Info()
	if err != nil {
		return "", classifyRodErr("read page info", err)
	}
	return info.URL, nil
}

func (d *RodDriver) Close(ctx context.Context, s Session) error {
	rs := s.(*rodSession)
	_ = rs.page.Context(ctx).Close()
	err := rs.browser.Close()
	_ = os.RemoveAll(rs.userDir)
	if err != nil {
		d.log.Warn("error closing browser session", zap.Error(err), zap.String("dir", filepath.Base(rs.userDir)))
	}
	return nil
}

// classifyRodErr maps a go-rod/context error into the engine's closed
// error taxonomy, per spec.md §4.3: the port must classify failures
// itself, never leak driver-specific error types to callers.
func classifyRodErr(action string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.NewTransientError(action+" timed out", err)
	default:
		return domain.NewTransientError(action+" failed", err)
	}
}
