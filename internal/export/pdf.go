package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// pdfRenderTimeout bounds a single headless-chrome print run.
const pdfRenderTimeout = 30 * time.Second

// Letter paper with uniform margins. The template may still override the
// page size through CSS @page rules (PreferCSSPageSize).
const (
	paperWidthInches  = 8.5
	paperHeightInches = 11.0
	paperMarginInches = 0.75
)

// chromiumBinaries lists the executable names probed, in order.
var chromiumBinaries = []string{"chromium", "chromium-browser", "google-chrome"}

func locateChromium() (string, error) {
	for _, name := range chromiumBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no chromium binary on PATH", ErrPDFDependencyMissing)
}

// htmlDataURL wraps rendered HTML in a base64 data URL so the browser can
// load it without a temp file or a local server.
func htmlDataURL(html string) string {
	return "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(html))
}

// exportPDF prints rendered HTML to PDF with headless chrome.
func exportPDF(ctx context.Context, html string, title string) (*Result, error) {
	browser, err := locateChromium()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pdfRenderTimeout)
	defer cancel()

	// Flags for running inside a container with no display and a tiny /dev/shm.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browser),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(htmlDataURL(html)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var printErr error
			pdf, _, printErr = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithPaperWidth(paperWidthInches).
				WithPaperHeight(paperHeightInches).
				WithMarginTop(paperMarginInches).
				WithMarginBottom(paperMarginInches).
				WithMarginLeft(paperMarginInches).
				WithMarginRight(paperMarginInches).
				Do(ctx)
			return printErr
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}

	return &Result{
		Data:     pdf,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

// sanitizeFilename reduces a module title to a safe download name: letters,
// digits, hyphens and underscores survive, spaces become hyphens, everything
// else is dropped and runs of hyphens collapse.
func sanitizeFilename(title string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, title)

	for strings.Contains(mapped, "--") {
		mapped = strings.ReplaceAll(mapped, "--", "-")
	}
	mapped = strings.Trim(mapped, "-")

	if len(mapped) > 60 {
		mapped = strings.Trim(mapped[:60], "-")
	}
	if mapped == "" {
		return "module-summary"
	}
	return mapped
}
