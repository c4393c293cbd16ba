// Package browseraction translates the closed Action tagged variant into
// chromedp calls against a remote-browser session's control URL, captures
// screenshots, and installs ad/analytics request interception. Grounded on
// agent/browser/chromedp_driver.go, adapted to attach to a remote session
// via chromedp.NewRemoteAllocator instead of launching a local browser.
package browseraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/types"
)

// transientSubstrings names page states that are expected during an
// in-flight navigation; probes hitting them should return empty data
// rather than raising.
var transientSubstrings = []string{
	"context canceled",
	"context deadline exceeded",
	"target closed",
	"could not find node",
	"cannot find context",
	"execution context was destroyed",
	"navigation",
}

// IsTransient reports whether err reflects an in-flight navigation racing a
// DOM probe, per spec §4.C's edge case.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Adapter drives one remote-browser page.
type Adapter struct {
	ctx    context.Context
	cancel context.CancelFunc

	viewportWidth  int
	viewportHeight int
	logger         *zap.Logger
}

// Attach connects to an already-running remote browser at controlURL (the
// control_url returned by sessionprovider.Client.CreateSession).
func Attach(ctx context.Context, controlURL string, viewportWidth, viewportHeight int, logger *zap.Logger) (*Adapter, error) {
	if viewportWidth == 0 {
		viewportWidth = DefaultViewportWidth
	}
	if viewportHeight == 0 {
		viewportHeight = DefaultViewportHeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, controlURL)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		allocCancel()
		cancel()
		return nil, fmt.Errorf("attach to remote browser: %w", err)
	}

	return &Adapter{
		ctx:            browserCtx,
		cancel:         func() { cancel(); allocCancel() },
		viewportWidth:  viewportWidth,
		viewportHeight: viewportHeight,
		logger:         logger.With(zap.String("component", "browseraction")),
	}, nil
}

// Close releases the chromedp context. It does not close the remote
// session itself — that is the session provider's responsibility.
func (a *Adapter) Close() {
	a.cancel()
}

// Viewport returns the adapter's configured viewport dimensions.
func (a *Adapter) Viewport() (width, height int) {
	return a.viewportWidth, a.viewportHeight
}

// Screenshot captures the current page as JPEG and returns it with the
// current URL.
func (a *Adapter) Screenshot(ctx context.Context) ([]byte, string, error) {
	var buf []byte
	var url string
	err := chromedp.Run(a.ctx,
		chromedp.Location(&url),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		if IsTransient(err) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return buf, url, nil
}

// Navigate opens url with a navigation deadline; timeouts are tolerated by
// the caller (the worker always proceeds to probing regardless).
func (a *Adapter) Navigate(ctx context.Context, url string, deadline time.Duration) error {
	navCtx, cancel := context.WithTimeout(a.ctx, deadline)
	defer cancel()
	err := chromedp.Run(navCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(url),
	)
	if err != nil {
		return types.NewError(types.ErrNavigationTimeout, "navigation did not complete within deadline").WithCause(err)
	}
	return nil
}

// ActionResult is the outcome of executing one Action.
type ActionResult struct {
	OK    bool
	Error string
	URL   string
}

// Execute dispatches a single Action. Unknown variants return
// {ok:false, error:"unimplemented"} rather than an error, per spec §9.
// After any action it waits for best-effort network settle.
func (a *Adapter) Execute(ctx context.Context, act types.Action) ActionResult {
	var err error

	switch act.Kind {
	case types.ActionClick:
		err = a.click(act)
	case types.ActionType:
		err = a.typeText(act)
	case types.ActionDrag:
		err = a.drag(act)
	case types.ActionScroll:
		err = a.scroll(act)
	case types.ActionKey:
		err = a.key(act)
	case types.ActionNavigate:
		err = a.Navigate(ctx, act.URL, 5*time.Minute)
	case types.ActionWait:
		time.Sleep(time.Duration(act.Seconds * float64(time.Second)))
	case types.ActionHover:
		err = a.move(act.X, act.Y)
	case types.ActionMove:
		err = a.move(act.X, act.Y)
	default:
		return ActionResult{OK: false, Error: "unimplemented"}
	}

	a.settle()

	_, url, _ := a.Screenshot(ctx)
	if err != nil {
		if IsTransient(err) {
			return ActionResult{OK: true, URL: url}
		}
		return ActionResult{OK: false, Error: err.Error(), URL: url}
	}
	return ActionResult{OK: true, URL: url}
}

func (a *Adapter) px(x, y float64) (int, int) {
	return Denormalize(x, a.viewportWidth), Denormalize(y, a.viewportHeight)
}

func (a *Adapter) click(act types.Action) error {
	px, py := a.px(act.X, act.Y)
	return chromedp.Run(a.ctx, chromedp.MouseClickXY(float64(px), float64(py)))
}

func (a *Adapter) move(x, y float64) error {
	px, py := a.px(x, y)
	return chromedp.Run(a.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, float64(px), float64(py)).Do(ctx)
	}))
}

func (a *Adapter) drag(act types.Action) error {
	sx, sy := a.px(act.X0, act.Y0)
	ex, ey := a.px(act.X1, act.Y1)
	return chromedp.Run(a.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MousePressed, float64(sx), float64(sy)).WithButton(input.Left).Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MouseMoved, float64(ex), float64(ey)).Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, float64(ex), float64(ey)).WithButton(input.Left).Do(ctx)
	}))
}

func (a *Adapter) scroll(act types.Action) error {
	px, py := a.px(act.X, act.Y)
	dx, dy := 0.0, act.Magnitude
	switch act.Direction {
	case "up":
		dy = -act.Magnitude
	case "down":
		dy = act.Magnitude
	case "left":
		dx, dy = -act.Magnitude, 0
	case "right":
		dx, dy = act.Magnitude, 0
	}
	if act.Magnitude == 0 {
		dx, dy = 0, 400
	}
	return chromedp.Run(a.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, float64(px), float64(py)).
			WithDeltaX(dx).WithDeltaY(dy).Do(ctx)
	}))
}

func (a *Adapter) key(act types.Action) error {
	return chromedp.Run(a.ctx, chromedp.KeyEvent(act.Chord))
}

// typeText clicks the target, optionally clears it with a "\x01" (Ctrl+A
// character) key event followed by backspace, the same key sequence on every
// platform, types each character as a key event with a 50ms inter-key delay,
// then optionally presses Enter.
func (a *Adapter) typeText(act types.Action) error {
	px, py := a.px(act.X, act.Y)
	actions := []chromedp.Action{
		chromedp.MouseClickXY(float64(px), float64(py)),
	}
	if act.ClearFirst {
		actions = append(actions,
			chromedp.KeyEvent("\x01"),
			chromedp.KeyEvent("\b"),
		)
	}
	for _, r := range act.Text {
		actions = append(actions, chromedp.KeyEvent(string(r)), chromedp.Sleep(50*time.Millisecond))
	}
	if act.PressEnter {
		actions = append(actions, chromedp.KeyEvent("\r"))
	}
	return chromedp.Run(a.ctx, actions...)
}

// settle waits a fixed 5s window (cut short only if the adapter context
// ends) and then a further 700ms buffer. Network activity is not observed,
// so it does not return early when the page goes network-idle.
func (a *Adapter) settle() {
	idleCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		chromedp.Run(idleCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	time.Sleep(700 * time.Millisecond)
}

// InterceptionOptions configures request interception.
type InterceptionOptions struct {
	BlockAds       bool
	BlockAnalytics bool
	BlockImages    bool
}

var blockedDomains = []string{
	"*doubleclick.net*",
	"*googlesyndication.com*",
	"*googletagmanager.com*",
	"*google-analytics.com*",
	"*hotjar.com*",
	"*mouseflow.com*",
}

// InstallRequestInterception installs a route filter aborting requests to
// the fixed ad/analytics block list and, if configured, image resources.
func (a *Adapter) InstallRequestInterception(opts InterceptionOptions) error {
	var patterns []string
	if opts.BlockAds || opts.BlockAnalytics {
		patterns = append(patterns, blockedDomains...)
	}
	if len(patterns) > 0 {
		if err := chromedp.Run(a.ctx, network.SetBlockedURLS(patterns)); err != nil {
			return err
		}
	}
	if opts.BlockImages {
		if err := chromedp.Run(a.ctx,
			network.Enable(),
			network.SetBlockedURLS(append(patterns, "*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp")),
		); err != nil {
			return err
		}
	}
	return nil
}
