package web

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// BrowserInstance wraps a single Playwright browsing session.
type BrowserInstance struct {
	Browser playwright.Browser
	Context playwright.BrowserContext
	Page    playwright.Page
	ID      string
}

// BrowserPool manages a reusable pool of browser instances for web_browser.
type BrowserPool struct {
	config    BrowserPoolConfig
	instances chan *BrowserInstance
	mu        sync.Mutex
	closed    bool
	pw        *playwright.Playwright
	userAgent int
	created   int
}

// BrowserPoolConfig configures pool sizing and launch behavior.
type BrowserPoolConfig struct {
	MaxInstances   int
	Timeout        time.Duration
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	RemoteURL      string
}

// NewBrowserPool installs Playwright (if needed) and returns a pool ready
// to serve Acquire calls.
func NewBrowserPool(config BrowserPoolConfig) (*BrowserPool, error) {
	if config.MaxInstances == 0 {
		config.MaxInstances = 5
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ViewportWidth == 0 {
		config.ViewportWidth = 1920
	}
	if config.ViewportHeight == 0 {
		config.ViewportHeight = 1080
	}

	if strings.TrimSpace(config.RemoteURL) == "" {
		if err := playwright.Install(&playwright.RunOptions{Verbose: false}); err != nil {
			return &BrowserPool{config: config, instances: make(chan *BrowserInstance, config.MaxInstances)}, nil
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	return &BrowserPool{
		config:    config,
		instances: make(chan *BrowserInstance, config.MaxInstances),
		pw:        pw,
	}, nil
}

// Acquire returns an idle instance or creates one, blocking at capacity
// until either an instance frees up or ctx is cancelled.
func (p *BrowserPool) Acquire(ctx context.Context) (*BrowserInstance, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool is closed")
		}
		select {
		case instance := <-p.instances:
			p.mu.Unlock()
			return instance, nil
		default:
		}
		if p.created < p.config.MaxInstances {
			p.created++
			p.mu.Unlock()
			instance, err := p.createInstance()
			if err != nil {
				p.mu.Lock()
				p.created--
				p.mu.Unlock()
				return nil, err
			}
			return instance, nil
		}
		p.mu.Unlock()

		select {
		case instance := <-p.instances:
			return instance, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns instance to the pool, or closes it if the pool is full
// or closed.
func (p *BrowserPool) Release(instance *BrowserInstance) {
	if instance == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		instance.cleanup()
		p.created--
		return
	}
	select {
	case p.instances <- instance:
	default:
		instance.cleanup()
		p.created--
	}
}

// Close tears down every pooled instance and stops the Playwright runtime.
func (p *BrowserPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.instances)
	for instance := range p.instances {
		instance.cleanup()
	}
	p.created = 0
	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			return fmt.Errorf("stop playwright: %w", err)
		}
	}
	return nil
}

func (p *BrowserPool) createInstance() (*BrowserInstance, error) {
	if p.pw == nil {
		return nil, fmt.Errorf("playwright not initialized")
	}

	var browser playwright.Browser
	if remoteURL := normalizeRemoteURL(p.config.RemoteURL); remoteURL != "" {
		var err error
		browser, err = p.pw.Chromium.Connect(remoteURL)
		if err != nil {
			return nil, fmt.Errorf("connect to browser: %w", err)
		}
	} else {
		var err error
		browser, err = p.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(p.config.Headless),
			Timeout:  playwright.Float(float64(p.config.Timeout.Milliseconds())),
		})
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(p.nextUserAgent()),
		Viewport: &playwright.Size{
			Width:  p.config.ViewportWidth,
			Height: p.config.ViewportHeight,
		},
		AcceptDownloads:   playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(float64(p.config.Timeout.Milliseconds()))

	return &BrowserInstance{
		Browser: browser,
		Context: browserCtx,
		Page:    page,
		ID:      fmt.Sprintf("browser-%d", time.Now().UnixNano()),
	}, nil
}

func normalizeRemoteURL(raw string) string {
	value := strings.TrimSpace(raw)
	switch {
	case value == "":
		return ""
	case strings.HasPrefix(value, "http://"):
		return "ws://" + strings.TrimPrefix(value, "http://")
	case strings.HasPrefix(value, "https://"):
		return "wss://" + strings.TrimPrefix(value, "https://")
	default:
		return value
	}
}

var browserUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2.1 Safari/605.1.15",
}

func (p *BrowserPool) nextUserAgent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ua := browserUserAgents[p.userAgent%len(browserUserAgents)]
	p.userAgent++
	return ua
}

func (instance *BrowserInstance) cleanup() {
	if instance.Page != nil {
		instance.Page.Close()
	}
	if instance.Context != nil {
		instance.Context.Close()
	}
	if instance.Browser != nil {
		instance.Browser.Close()
	}
}
