package viewer

// DefaultPageSize is both the initial window and the "load more" step.
const DefaultPageSize = 5

// Pager tracks how many of the already fetched rows are on screen. It never
// asks for more rows; the window only grows up to Total.
type Pager struct {
	step    int
	total   int
	visible int
}

// NewPager starts a window of step rows over total rows.
func NewPager(total, step int) Pager {
	if step <= 0 {
		step = DefaultPageSize
	}
	p := Pager{step: step}
	p.Reset(total)
	return p
}

// Reset starts over for a freshly fetched result set.
func (p *Pager) Reset(total int) {
	if total < 0 {
		total = 0
	}
	p.total = total
	p.visible = min(p.step, total)
}

// More grows the window by one step and reports whether it changed.
func (p *Pager) More() bool {
	if !p.HasMore() {
		return false
	}
	p.visible = min(p.visible+p.step, p.total)
	return true
}

// HasMore reports whether rows remain hidden.
func (p Pager) HasMore() bool {
	return p.visible < p.total
}

// Visible is the number of rows to show.
func (p Pager) Visible() int {
	return p.visible
}

// Total is the number of rows the bounded query returned.
func (p Pager) Total() int {
	return p.total
}
