// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scroll keeps a transcript view pinned to the bottom while a reply
// streams in, unless the user has scrolled away.
package scroll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
)

const (
	// DefaultThreshold is the distance from the bottom, in view units,
	// inside which growth keeps the view pinned.
	DefaultThreshold = 150

	// DefaultInterval bounds how often the controller re-evaluates.
	DefaultInterval = 75 * time.Millisecond
)

// =============================================================================
// POLICY
// =============================================================================

// Metrics describes a scrollable view.
type Metrics struct {
	ScrollHeight int // total content height
	ScrollTop    int // offset of the first visible unit
	ClientHeight int // visible height
}

// DistanceFromBottom is how far the bottom edge of the view is from the end
// of the content.
func (m Metrics) DistanceFromBottom() int {
	return m.ScrollHeight - m.ScrollTop - m.ClientHeight
}

// Decision is the outcome of Decide.
type Decision struct {
	Scroll bool
	Top    int // new ScrollTop when Scroll is set
}

// Decide looks at the view as it was before the content grew. If it was
// within threshold of the bottom, the view follows the new bottom;
// otherwise it stays where the user left it.
func Decide(prev Metrics, newScrollHeight, threshold int) Decision {
	if prev.DistanceFromBottom() >= threshold {
		return Decision{}
	}
	return Decision{Scroll: true, Top: max(0, newScrollHeight-prev.ClientHeight)}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Viewport is what the controller reads and moves.
type Viewport interface {
	Metrics() Metrics
	ScrollTo(top int)
}

// Options configures a Controller.
type Options struct {
	Threshold int
	Interval  time.Duration
}

// Controller applies Decide to a Viewport when content grows, at most once
// per interval.
//
// Notify may be called from any goroutine. Tick and Run touch the viewport,
// so use one or the other from the goroutine that owns it.
type Controller struct {
	vp        Viewport
	threshold int
	interval  time.Duration

	grew       atomic.Bool
	lastHeight int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewController starts from the viewport's current height.
func NewController(vp Viewport, opts Options) *Controller {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Controller{
		vp:         vp,
		threshold:  opts.Threshold,
		interval:   opts.Interval,
		lastHeight: vp.Metrics().ScrollHeight,
		stop:       make(chan struct{}),
	}
}

// Interval returns the polling interval.
func (c *Controller) Interval() time.Duration { return c.interval }

// Notify records that content grew. Repeated calls before the next tick
// collapse into one.
func (c *Controller) Notify() {
	c.grew.Store(true)
}

// Tick applies the policy if growth was recorded since the last tick.
// The distance from the bottom is measured against the height seen at the
// previous tick, with the scroll position the user has now.
func (c *Controller) Tick() (Decision, bool) {
	if !c.grew.Swap(false) {
		return Decision{}, false
	}

	cur := c.vp.Metrics()
	prev := Metrics{
		ScrollHeight: c.lastHeight,
		ScrollTop:    cur.ScrollTop,
		ClientHeight: cur.ClientHeight,
	}
	c.lastHeight = cur.ScrollHeight

	d := Decide(prev, cur.ScrollHeight, c.threshold)
	if d.Scroll && d.Top != cur.ScrollTop {
		c.vp.ScrollTo(d.Top)
	}
	return d, true
}

// Reset forgets pending growth and takes the viewport's current height as
// the baseline. Call it after replacing the content wholesale.
func (c *Controller) Reset() {
	c.grew.Store(false)
	c.lastHeight = c.vp.Metrics().ScrollHeight
}

// Run ticks every interval until ctx is done or Stop is called.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// =============================================================================
// BUBBLES ADAPTER
// =============================================================================

// BubbleViewport adapts a bubbles viewport, measured in lines.
type BubbleViewport struct {
	VP *viewport.Model
}

// Metrics reports the viewport's lines.
func (b BubbleViewport) Metrics() Metrics {
	return Metrics{
		ScrollHeight: b.VP.TotalLineCount(),
		ScrollTop:    b.VP.YOffset,
		ClientHeight: b.VP.Height,
	}
}

// ScrollTo moves the first visible line.
func (b BubbleViewport) ScrollTo(top int) {
	b.VP.SetYOffset(top)
}
