package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

const (
	DefaultRoomSlug     = "epi-place"
	DefaultCallbackAddr = "127.0.0.1:8765"
	CallbackPath        = "/complete/epita/"
)

type Options struct {
	BaseURL       string        `long:"base-url" env:"PLACE_URL" description:"Place server origin (e.g. https://place.example.com)"`
	AuthURL       string        `long:"auth-url" env:"PLACE_AUTH_URL" description:"OpenID provider base URL"`
	ClientID      string        `long:"client-id" env:"PLACE_CLIENT_ID" description:"OpenID client identifier"`
	CallbackAddr  string        `long:"callback-addr" env:"PLACE_CALLBACK_ADDR" default:"127.0.0.1:8765" description:"Listen address of the login callback page"`
	Room          string        `long:"room" env:"PLACE_ROOM" description:"Room path or URL; the first path segment is the room slug"`
	TokenFile     string        `long:"token-file" env:"PLACE_TOKEN_FILE" description:"Token file path (defaults to the user config dir)"`
	AckTimeout    time.Duration `long:"ack-timeout" env:"PLACE_ACK_TIMEOUT" default:"15s" description:"How long to wait for a stream subscription to start"`
	RedirectDelay time.Duration `long:"redirect-delay" default:"3s" description:"Delay before redirecting to login after an authentication failure"`
	Headless      bool          `long:"headless" env:"PLACE_HEADLESS" description:"Log canvas activity instead of drawing it"`
	NoBrowser     bool          `long:"no-browser" description:"Print the login URL instead of opening a browser"`
	Debug         bool          `long:"debug" env:"PLACE_DEBUG" description:"Enable verbose debug output"`
}

type APIEndpoints struct {
	Origin       string
	APIBaseURL   string
	SocketURL    string
	TokenURL     string
	AuthorizeURL string
	RedirectURI  string
}

// Command names accepted on the command line. Run is the default.
const (
	CommandRun    = "run"
	CommandLogin  = "login"
	CommandLogout = "logout"
)

type runCommand struct{}
type loginCommand struct{}
type logoutCommand struct{}

func (runCommand) Execute([]string) error    { return nil }
func (loginCommand) Execute([]string) error  { return nil }
func (logoutCommand) Execute([]string) error { return nil }

// ParseOptions loads .env (when present) and parses args, returning the
// options and the selected command.
func ParseOptions(args []string) (Options, string, error) {
	_ = godotenv.Load()
	opts := Options{}
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true
	if _, err := parser.AddCommand(CommandRun, "Join a room and render its canvas", "", &runCommand{}); err != nil {
		return Options{}, "", err
	}
	if _, err := parser.AddCommand(CommandLogin, "Serve the login callback page and store tokens", "", &loginCommand{}); err != nil {
		return Options{}, "", err
	}
	if _, err := parser.AddCommand(CommandLogout, "Clear stored tokens", "", &logoutCommand{}); err != nil {
		return Options{}, "", err
	}
	if _, err := parser.ParseArgs(args); err != nil {
		return Options{}, "", err
	}
	command := CommandRun
	if active := parser.Active; active != nil {
		command = active.Name
	}
	return opts, command, nil
}

func ValidateRequired(opts Options) error {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return errors.New("base URL is required")
	}
	if strings.TrimSpace(opts.AuthURL) == "" {
		return errors.New("auth URL is required")
	}
	if strings.TrimSpace(opts.ClientID) == "" {
		return errors.New("client id is required")
	}
	if opts.AckTimeout < 0 {
		return errors.New("ack timeout must not be negative")
	}
	return nil
}

func BuildEndpoints(opts Options) (APIEndpoints, error) {
	origin, err := parseOrigin(opts.BaseURL, "base URL")
	if err != nil {
		return APIEndpoints{}, err
	}
	authBase, err := parseHTTPURL(opts.AuthURL, "auth URL")
	if err != nil {
		return APIEndpoints{}, err
	}

	socket := *origin
	if strings.EqualFold(origin.Scheme, "https") {
		socket.Scheme = "wss"
	} else {
		socket.Scheme = "ws"
	}
	socket.Path = "/socket.io/"
	socket.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()

	callbackAddr := strings.TrimSpace(opts.CallbackAddr)
	if callbackAddr == "" {
		callbackAddr = DefaultCallbackAddr
	}
	authRoot := strings.TrimRight(authBase.String(), "/")
	originText := origin.String()
	return APIEndpoints{
		Origin:       originText,
		APIBaseURL:   originText + "/api",
		SocketURL:    socket.String(),
		TokenURL:     authRoot + "/token",
		AuthorizeURL: authRoot + "/authorize",
		RedirectURI:  "http://" + callbackAddr + CallbackPath,
	}, nil
}

func parseOrigin(raw, label string) (*url.URL, error) {
	parsed, err := parseHTTPURL(raw, label)
	if err != nil {
		return nil, err
	}
	// Any pasted page or endpoint path is dropped.
	parsed.Path = ""
	parsed.RawPath = ""
	return parsed, nil
}

func parseHTTPURL(raw, label string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New(label + ": expected absolute URL like https://example.com")
	}
	if !strings.EqualFold(parsed.Scheme, "http") && !strings.EqualFold(parsed.Scheme, "https") {
		return nil, errors.New(label + " scheme must be http or https")
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.User = nil
	return parsed, nil
}

// RoomSlugFromPath returns the first path segment of a location path or URL,
// falling back to DefaultRoomSlug.
func RoomSlugFromPath(location string) string {
	location = strings.TrimSpace(location)
	if parsed, err := url.Parse(location); err == nil {
		location = parsed.Path
	}
	for _, segment := range strings.Split(location, "/") {
		if segment = strings.TrimSpace(segment); segment != "" {
			return segment
		}
	}
	return DefaultRoomSlug
}
