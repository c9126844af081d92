//go:build e2e

package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var (
	testRunTimestamp string
	onceTimestamp    sync.Once
)

// runTimestamp is shared by all tests of one run so their artifacts land
// in one directory.
func runTimestamp() string {
	onceTimestamp.Do(func() {
		testRunTimestamp = time.Now().Format("20060102150405")
	})
	return testRunTimestamp
}

// ArtifactManager owns one browser page and writes screenshots, HTML and
// console output for the test under artifacts/<run>/<test>.
type ArtifactManager struct {
	Logger      *zap.Logger
	ArtifactDir string
	T           *testing.T
	Browser     playwright.Browser
	Context     playwright.BrowserContext
	Page        playwright.Page

	consoleMu sync.Mutex
}

// isDebugMode reports whether the test binary runs under delve, in which
// case the browser is headed.
func isDebugMode() bool {
	parent, err := process.NewProcess(int32(os.Getppid()))
	if err != nil {
		return false
	}
	if name, err := parent.Name(); err == nil && (name == "dlv" || name == "debug") {
		return true
	}
	cmdline, err := parent.CmdlineSlice()
	if err != nil {
		return false
	}
	for _, arg := range cmdline {
		if arg == "debug" || strings.Contains(arg, "dlv") {
			return true
		}
	}
	return false
}

func NewArtifactManager(t *testing.T, baseURL string) *ArtifactManager {
	t.Helper()
	if pw == nil {
		t.Skip("playwright is not running; ui tests need remote mode and web_url")
	}

	artifactDir := filepath.Join("artifacts", runTimestamp(), strings.ReplaceAll(t.Name(), "/", "_"))
	if err := os.MkdirAll(artifactDir, 0755); err != nil {
		t.Fatalf("Failed to create artifact directory: %v", err)
	}
	logger := zaptest.NewLogger(t)

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.UI.Headless && !isDebugMode()),
	})
	if err != nil {
		t.Fatalf("could not launch browser: %v", err)
	}
	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		BaseURL: playwright.String(baseURL),
	})
	if err != nil {
		browser.Close()
		t.Fatalf("could not create browser context: %v", err)
	}
	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		t.Fatalf("could not create page: %v", err)
	}
	page.SetDefaultNavigationTimeout(30000)
	page.SetDefaultTimeout(30000)

	am := &ArtifactManager{
		Logger:      logger,
		ArtifactDir: artifactDir,
		T:           t,
		Browser:     browser,
		Context:     context,
		Page:        page,
	}
	am.setupConsoleLogging()
	t.Cleanup(am.Close)
	return am
}

// Close saves a final screenshot and HTML when the test failed.
func (am *ArtifactManager) Close() {
	if am.T.Failed() {
		am.SaveScreenshot("failure")
		am.SaveHTML("failure")
	}
	if err := am.Context.Close(); err != nil {
		am.T.Logf("Error closing playwright context: %v", err)
	}
	if err := am.Browser.Close(); err != nil {
		am.T.Logf("Error closing browser: %v", err)
	}
	_ = am.Logger.Sync()
}

func (am *ArtifactManager) SaveScreenshot(name string) string {
	filename := filepath.Join(am.ArtifactDir, name+".png")
	if _, err := am.Page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(filename),
		FullPage: playwright.Bool(true),
	}); err != nil {
		am.Logger.Warn("Failed to save screenshot", zap.Error(err))
		return ""
	}
	am.Logger.Info("Screenshot saved", zap.String("path", filename))
	return filename
}

func (am *ArtifactManager) SaveHTML(name string) string {
	filename := filepath.Join(am.ArtifactDir, name+".html")
	content, err := am.Page.Content()
	if err != nil {
		am.Logger.Warn("Failed to get page content", zap.Error(err))
		return ""
	}
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		am.Logger.Warn("Failed to save HTML", zap.Error(err))
		return ""
	}
	return filename
}

func (am *ArtifactManager) setupConsoleLogging() {
	logFile := filepath.Join(am.ArtifactDir, "console.log")
	file, err := os.Create(logFile)
	if err != nil {
		am.Logger.Warn("Failed to create console log file", zap.Error(err))
		return
	}

	am.Page.On("console", func(msg playwright.ConsoleMessage) {
		am.consoleMu.Lock()
		defer am.consoleMu.Unlock()
		fmt.Fprintf(file, "[%s] [%s] %s\n", time.Now().Format(time.RFC3339), msg.Type(), msg.Text())
	})
	am.Context.On("close", func() {
		am.consoleMu.Lock()
		defer am.consoleMu.Unlock()
		file.Close()
	})
}

// Goto navigates and fails the test on navigation errors or 4xx/5xx.
func (am *ArtifactManager) Goto(path string) {
	am.T.Helper()
	response, err := am.Page.Goto(path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(30000),
	})
	if err != nil {
		am.T.Fatalf("could not navigate to %s: %v", path, err)
	}
	if response != nil && response.Status() >= 400 {
		am.T.Errorf("page %s loaded with status %d", path, response.Status())
	}
}
