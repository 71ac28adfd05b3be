package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/threadscrape/internal/auth"
	"github.com/ibeckermayer/threadscrape/internal/timeline"
)

// ProfileURL is the page the browser strategy opens for a handle.
func ProfileURL(handle string) string {
	return "https://x.com/" + strings.TrimPrefix(handle, "@")
}

// AllocatorOptions returns chromedp allocator options with the flags that keep
// x.com from flagging the session as automated.
func AllocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),

		// navigator.webdriver must stay false
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(auth.UserAgent),
		chromedp.WindowSize(1920, 1080),

		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	if headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}

	return opts
}

// Browser loads the profile page in Chrome with the session cookies and
// captures the UserTweets response the page requests. It only serves the
// first page.
type Browser struct {
	sessions Sessions
	headless bool
	timeout  time.Duration
}

// NewBrowser creates the browser strategy.
func NewBrowser(sessions Sessions, headless bool, timeout time.Duration) *Browser {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Browser{sessions: sessions, headless: headless, timeout: timeout}
}

func (b *Browser) Name() string { return BrowserName }

// isTimelineResponse matches the GraphQL timeline query the profile page issues.
func isTimelineResponse(u string) bool {
	return strings.Contains(u, "/graphql/") && strings.Contains(u, "/UserTweets")
}

type captured struct {
	body []byte
	err  error
}

func (b *Browser) FetchPage(ctx context.Context, target Target, cursor string, count int) (timeline.Page, error) {
	if cursor != "" {
		return timeline.Page{}, ErrCursorUnsupported
	}
	session, err := b.sessions.Session()
	if err != nil {
		return timeline.Page{}, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(b.headless)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, b.timeout)
	defer timeoutCancel()

	result := make(chan captured, 1)
	var requestID network.RequestID
	chromedp.ListenTarget(browserCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if requestID == "" && isTimelineResponse(e.Response.URL) {
				requestID = e.RequestID
			}
		case *network.EventLoadingFinished:
			if requestID == "" || e.RequestID != requestID {
				return
			}
			id := requestID
			// Listeners must not block, so the body is read on its own goroutine.
			go func() {
				var c captured
				c.err = chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
					var err error
					c.body, err = network.GetResponseBody(id).Do(ctx)
					return err
				}))
				select {
				case result <- c:
				default:
				}
			}()
		}
	})

	if err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetCookies(session.BrowserCookies()),
		chromedp.Navigate(ProfileURL(target.Handle)),
	); err != nil {
		return timeline.Page{}, fmt.Errorf("load profile %s: %w", target.Handle, err)
	}

	select {
	case c := <-result:
		if c.err != nil {
			return timeline.Page{}, fmt.Errorf("read timeline response: %w", c.err)
		}
		page, err := timeline.Parse(c.body)
		if err != nil {
			return timeline.Page{}, err
		}
		page.Endpoint = BrowserName
		return page, nil
	case <-browserCtx.Done():
		return timeline.Page{}, fmt.Errorf("wait for timeline response: %w", browserCtx.Err())
	}
}
