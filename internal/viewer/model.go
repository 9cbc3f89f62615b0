// Package viewer is the terminal front end over the post store: a channel
// filter, a bounded post count, an expandable paged list and a keyword
// explainer.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

// Explainer renders an explanation; explain.Explainer satisfies it.
type Explainer interface {
	Explain(ctx context.Context, keyword string) string
}

// Config wires a Model.
type Config struct {
	Posts        scraper.PostReader
	Explainer    Explainer
	Subreddits   []string
	PageSize     int
	DefaultLimit int
	MinLimit     int
	MaxLimit     int
	Logger       *zap.Logger
}

type focus int

const (
	focusList focus = iota
	focusInput
)

type postsLoadedMsg struct {
	seq   int
	posts []scraper.Post
	err   error
}

type explainedMsg struct {
	keyword string
	text    string
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	detailStyle   = lipgloss.NewStyle().PaddingLeft(4).Foreground(lipgloss.Color("252"))
	linkStyle     = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model is the Bubble Tea model of the viewer.
type Model struct {
	ctx    context.Context
	cfg    Config
	logger *zap.Logger

	filters   []string
	filterIdx int
	limit     int

	seq      int
	loading  bool
	err      error
	posts    []scraper.Post
	pager    Pager
	cursor   int
	expanded map[string]bool

	focus       focus
	input       textinput.Model
	explaining  bool
	explanation string

	spinner spinner.Model
	width   int
}

// New builds a Model. Limits fall back to 5..50 with a default of 10.
func New(ctx context.Context, cfg Config) (Model, error) {
	if cfg.Posts == nil {
		return Model{}, errors.New("viewer: post reader is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MinLimit <= 0 {
		cfg.MinLimit = 5
	}
	if cfg.MaxLimit < cfg.MinLimit {
		cfg.MaxLimit = 50
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "keyword to explain"
	ti.CharLimit = 120

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		cfg:      cfg,
		logger:   cfg.Logger.Named("viewer"),
		filters:  append([]string{scraper.AllSubreddits}, cfg.Subreddits...),
		limit:    clamp(cfg.DefaultLimit, cfg.MinLimit, cfg.MaxLimit),
		pager:    NewPager(0, cfg.PageSize),
		expanded: map[string]bool{},
		input:    ti,
		spinner:  sp,
		seq:      1,
		loading:  true,
	}, nil
}

// Run shows the viewer until the user quits or ctx ends.
func Run(ctx context.Context, cfg Config) error {
	m, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init loads the first result set.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.spinner.Tick)
}

// Filter is the selected channel, or "All".
func (m Model) Filter() string { return m.filters[m.filterIdx] }

// Limit is the bounded query size.
func (m Model) Limit() int { return m.limit }

// Pager exposes the display window.
func (m Model) Pager() Pager { return m.pager }

// VisiblePosts returns the rows currently on screen.
func (m Model) VisiblePosts() []scraper.Post {
	return m.posts[:m.pager.Visible()]
}

// Explanation is the last rendered explanation block.
func (m Model) Explanation() string { return m.explanation }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-20, 20)
		return m, nil

	case postsLoadedMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.loading = false
		m.err = msg.err
		if msg.err != nil {
			m.logger.Warn("load posts failed", zap.String("subreddit", m.Filter()), zap.Error(msg.err))
			m.posts = nil
		} else {
			m.posts = msg.posts
		}
		m.pager.Reset(len(m.posts))
		m.cursor = 0
		m.expanded = map[string]bool{}
		return m, nil

	case explainedMsg:
		m.explaining = false
		m.explanation = FormatExplanation(msg.keyword, msg.text)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.focus == focusInput {
			return m.updateInput(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < m.pager.Visible()-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Toggle):
		if m.pager.Visible() > 0 {
			id := m.posts[m.cursor].ID
			m.expanded[id] = !m.expanded[id]
		}
	case key.Matches(msg, keys.More):
		m.pager.More()
	case key.Matches(msg, keys.NextFilter):
		m.filterIdx = (m.filterIdx + 1) % len(m.filters)
		cmd := m.reload()
		return m, cmd
	case key.Matches(msg, keys.PrevFilter):
		m.filterIdx = (m.filterIdx - 1 + len(m.filters)) % len(m.filters)
		cmd := m.reload()
		return m, cmd
	case key.Matches(msg, keys.MoreLimit):
		return m.setLimit(m.limit + 1)
	case key.Matches(msg, keys.LessLimit):
		return m.setLimit(m.limit - 1)
	case key.Matches(msg, keys.Refresh):
		cmd := m.reload()
		return m, cmd
	case key.Matches(msg, keys.Explain):
		if m.cfg.Explainer == nil {
			return m, nil
		}
		m.focus = focusInput
		return m, m.input.Focus()
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, keys.Escape):
		m.focus = focusList
		m.input.Blur()
		return m, nil
	case key.Matches(msg, keys.Submit):
		keyword := strings.TrimSpace(m.input.Value())
		if keyword == "" || m.explaining {
			return m, nil
		}
		m.explaining = true
		m.input.Reset()
		m.input.Blur()
		m.focus = focusList
		return m, m.explain(keyword)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) setLimit(n int) (tea.Model, tea.Cmd) {
	n = clamp(n, m.cfg.MinLimit, m.cfg.MaxLimit)
	if n == m.limit {
		return m, nil
	}
	m.limit = n
	cmd := m.reload()
	return m, cmd
}

// reload bumps the sequence so that results of superseded queries are dropped.
func (m *Model) reload() tea.Cmd {
	m.seq++
	m.loading = true
	return m.load()
}

func (m Model) load() tea.Cmd {
	seq, query, reader, ctx := m.seq, scraper.PostQuery{Subreddit: m.Filter(), Limit: m.limit}, m.cfg.Posts, m.ctx
	return func() tea.Msg {
		posts, err := reader.ListPosts(ctx, query)
		return postsLoadedMsg{seq: seq, posts: posts, err: err}
	}
}

func (m Model) explain(keyword string) tea.Cmd {
	explainer, ctx := m.cfg.Explainer, m.ctx
	return func() tea.Msg {
		return explainedMsg{keyword: keyword, text: explainer.Explain(ctx, keyword)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Reddit News"))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("subreddit: %s   posts: %d (%d-%d)",
		m.Filter(), m.limit, m.cfg.MinLimit, m.cfg.MaxLimit)))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(m.spinner.View() + " loading posts...\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
	case m.pager.Total() == 0:
		b.WriteString("No posts found.\n")
	default:
		for i, post := range m.VisiblePosts() {
			b.WriteString(m.renderPost(i, post))
		}
		b.WriteString(headerStyle.Render(fmt.Sprintf("\nshowing %d of %d", m.pager.Visible(), m.pager.Total())))
		if m.pager.HasMore() {
			b.WriteString(headerStyle.Render("  (m: load more)"))
		}
		b.WriteString("\n")
	}

	if m.cfg.Explainer != nil {
		b.WriteString("\n")
		if m.focus == focusInput {
			b.WriteString("Explain: " + m.input.View() + "\n")
		}
		if m.explaining {
			b.WriteString(m.spinner.View() + " asking for an explanation...\n")
		} else if m.explanation != "" {
			style := boxStyle
			if m.width > 4 {
				style = style.Width(m.width - 4)
			}
			b.WriteString(style.Render(m.explanation) + "\n")
		}
	}

	b.WriteString("\n" + helpStyle.Render(helpLine()))
	return b.String()
}

func (m Model) renderPost(i int, post scraper.Post) string {
	line := fmt.Sprintf("%s (score %d)", post.Title, post.Score)
	prefix := "  "
	if i == m.cursor {
		prefix = "> "
		line = selectedStyle.Render(line)
	}
	out := prefix + line + "\n"
	if !m.expanded[post.ID] {
		return out
	}
	details := []string{
		"Subreddit: " + post.Subreddit,
		"Published: " + FormatDate(post.PublishedAt),
		"",
		Truncate(post.FullText, MaxBodyRunes),
	}
	if link := DiscussURL(post.Permalink); link != "" {
		details = append(details, "", "Discuss: "+linkStyle.Render(link))
	}
	return out + detailStyle.Render(strings.Join(details, "\n")) + "\n"
}

func helpLine() string {
	parts := make([]string, 0, len(keys.help()))
	for _, b := range keys.help() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
