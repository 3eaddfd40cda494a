package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	// DefaultAPIBaseURL is the v10 REST API.
	DefaultAPIBaseURL = "https://discord.com/api/v10"

	userAgent = "DiscordBot (https://github.com/nicebartender/starinfo, 1.0.0)"
)

// APIError is returned for REST responses with status 400 or above.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string

	err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.err }

// REST is the subset of the Discord HTTP API the bot uses. Requests go through
// a discordgo session that never opens its own gateway.
type REST struct {
	httpClient *http.Client
	baseURL    string
	session    *discordgo.Session
}

// RESTOption configures a REST client.
type RESTOption func(*REST)

// WithAPIBaseURL overrides the API base URL (for testing).
func WithAPIBaseURL(url string) RESTOption {
	return func(r *REST) {
		r.baseURL = url
	}
}

// WithRESTHTTPClient sets a custom HTTP client.
func WithRESTHTTPClient(hc *http.Client) RESTOption {
	return func(r *REST) {
		r.httpClient = hc
	}
}

func NewREST(token string, opts ...RESTOption) (*REST, error) {
	r := &REST{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultAPIBaseURL,
	}
	for _, opt := range opts {
		opt(r)
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	next := r.httpClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	client := *r.httpClient
	client.Transport = &apiRewrite{
		from: strings.TrimSuffix(discordgo.EndpointAPI, "/"),
		to:   strings.TrimSuffix(r.baseURL, "/"),
		next: next,
	}
	session.Client = &client
	session.UserAgent = userAgent
	session.StateEnabled = false
	// Every reply is attempted once.
	session.MaxRestRetries = 0
	session.ShouldRetryOnRateLimit = false

	r.session = session
	return r, nil
}

// Reply posts content to a channel as a reply to messageID and returns the
// created message.
func (r *REST) Reply(ctx context.Context, channelID, messageID, content string) (*Message, error) {
	failIfNotExists := false
	send := &discordgo.MessageSend{
		Content: content,
		Reference: &discordgo.MessageReference{
			MessageID:       messageID,
			FailIfNotExists: &failIfNotExists,
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse:       []discordgo.AllowedMentionType{},
			RepliedUser: true,
		},
	}
	msg, err := r.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return nil, apiError(http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), err)
	}
	return fromSession(msg), nil
}

// EditMessage replaces the content of a message the bot posted. Names echoed
// from game data (e.g. "@everyone") stay inert.
func (r *REST) EditMessage(ctx context.Context, channelID, messageID, content string) (*Message, error) {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetContent(content)
	edit.AllowedMentions = &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}

	msg, err := r.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, apiError(http.MethodPatch, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), err)
	}
	return fromSession(msg), nil
}

func apiError(method, path string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: restErr.Response.StatusCode,
			Body:       string(restErr.ResponseBody),
			err:        err,
		}
	}
	return fmt.Errorf("%s %s: %w", method, path, err)
}

func fromSession(m *discordgo.Message) *Message {
	if m == nil {
		return &Message{}
	}
	msg := &Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.Author = User{ID: m.Author.ID, Username: m.Author.Username, Bot: m.Author.Bot}
	}
	return msg
}

// apiRewrite maps discordgo's fixed endpoint prefix onto the configured base
// URL, so the API version and host follow the bot's configuration.
type apiRewrite struct {
	from string
	to   string
	next http.RoundTripper
}

func (t *apiRewrite) RoundTrip(req *http.Request) (*http.Response, error) {
	raw := req.URL.String()
	if !strings.HasPrefix(raw, t.from) || t.from == t.to {
		return t.next.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	target, err := out.URL.Parse(t.to + strings.TrimPrefix(raw, t.from))
	if err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", raw, err)
	}
	out.URL = target
	out.Host = target.Host
	return t.next.RoundTrip(out)
}
