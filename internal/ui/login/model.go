// Package login collects the dashboard URL and API token, checks them
// against the API and persists them: the URL in the config file, the token
// in the system keyring.
package login

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/memberdesk/internal/api"
	"github.com/nhle/memberdesk/internal/credential"
	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/theme"
)

// verifyTimeout bounds the connection check.
const verifyTimeout = 15 * time.Second

// Fields holds the form values; huh binds to them by pointer.
type Fields struct {
	BaseURL  string
	Username string
	Token    string
}

// DoneMsg is sent once the credentials were verified and saved.
type DoneMsg struct {
	Config *model.AppConfig
	Token  string

	// Notifications is the number of notifications visible to the account.
	Notifications int
}

// CancelledMsg is sent when the user aborts the form.
type CancelledMsg struct{}

type verifiedMsg struct {
	done DoneMsg
	err  error
}

// Saver persists what the form collected.
type Saver struct {
	// ConfigPath is the YAML file receiving the base URL and username.
	ConfigPath string

	// SetToken stores the token. Defaults to credential.SetToken.
	SetToken func(account, token string) error

	// Dial builds the API client used for the check. Defaults to
	// api.NewClient with no options.
	Dial func(baseURL, token string) (*api.Client, error)
}

// Verify checks f against the API and, when the token is accepted, writes
// the token to the keyring and the rest to cfg's file. cfg is not modified;
// the updated copy is returned.
func (s Saver) Verify(ctx context.Context, cfg *model.AppConfig, f Fields) (DoneMsg, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(f.BaseURL), "/")
	username := strings.TrimSpace(f.Username)
	token := strings.TrimSpace(f.Token)

	dial := s.Dial
	if dial == nil {
		dial = func(baseURL, token string) (*api.Client, error) {
			return api.NewClient(baseURL, token)
		}
	}
	client, err := dial(baseURL, token)
	if err != nil {
		return DoneMsg{}, err
	}
	n, err := client.Ping(ctx)
	if err != nil {
		if api.IsAuthError(err) {
			return DoneMsg{}, errors.New("the dashboard rejected this token")
		}
		return DoneMsg{}, fmt.Errorf("connecting to %s: %w", baseURL, err)
	}

	setToken := s.SetToken
	if setToken == nil {
		setToken = credential.SetToken
	}
	if err := setToken(username, token); err != nil {
		return DoneMsg{}, err
	}

	updated := *cfg
	updated.API.BaseURL = baseURL
	updated.API.Username = username
	if s.ConfigPath != "" {
		if err := model.SaveConfig(s.ConfigPath, &updated); err != nil {
			return DoneMsg{}, fmt.Errorf("token saved but config was not: %w", err)
		}
	}
	return DoneMsg{Config: &updated, Token: token, Notifications: n}, nil
}

// NewForm builds the login form bound to f.
func NewForm(f *Fields, width int) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Dashboard URL").
				Description("Root URL of the membership dashboard API").
				Placeholder("https://members.example.org").
				Value(&f.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Username").
				Description("The account the token belongs to").
				Value(&f.Username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("API Token").
				Description("Personal token from your dashboard profile").
				EchoMode(huh.EchoModePassword).
				Value(&f.Token).
				Validate(validateRequired("Token")),
		),
	).WithWidth(formWidth(width))
}

// Model is the in-app login view, shown at startup without a token and
// whenever the API rejects the stored one.
type Model struct {
	form   *huh.Form
	fields *Fields
	cfg    *model.AppConfig
	saver  Saver

	verifying bool
	err       error
	spinner   spinner.Model

	width, height int
}

// New creates a login view prefilled from cfg. The token is never
// prefilled.
func New(cfg *model.AppConfig, saver Saver, width, height int) Model {
	fields := &Fields{
		BaseURL:  cfg.API.BaseURL,
		Username: cfg.API.Username,
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		form:    NewForm(fields, width),
		fields:  fields,
		cfg:     cfg,
		saver:   saver,
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Init focuses the first field.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the login view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case verifiedMsg:
		m.verifying = false
		if msg.err != nil {
			m.err = msg.err
			// Rebuild so the user can correct the values.
			m.fields.Token = ""
			m.form = NewForm(m.fields, m.width)
			return m, m.form.Init()
		}
		return m, func() tea.Msg { return msg.done }

	case spinner.TickMsg:
		if m.verifying {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.verifying {
			return m, nil
		}
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.verifying = true
		m.err = nil
		return m, tea.Batch(m.spinner.Tick, m.verify())
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelledMsg{} }
	}
	return m, cmd
}

func (m Model) verify() tea.Cmd {
	saver, cfg, fields := m.saver, m.cfg, *m.fields
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
		defer cancel()
		done, err := saver.Verify(ctx, cfg, fields)
		return verifiedMsg{done: done, err: err}
	}
}

// View renders the login view.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	if m.verifying {
		return style.Render(fmt.Sprintf("%s Checking token...", m.spinner.View()))
	}

	content := theme.HeaderStyle.Render("Sign in") + "\n\n"
	if m.err != nil {
		content += theme.ErrorStyle.Bold(true).Render("Login failed") + "\n" +
			m.err.Error() + "\n\n"
	}
	return style.Render(content + m.form.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func formWidth(width int) int {
	w := width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host (e.g., https://example.org)")
	}
	return nil
}
