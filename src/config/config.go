package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/linecrypto/clearnode/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the wallet's
	// private key
	DefaultKeyfile = "wallet_key"

	// DefaultConfigName is the base name of the optional config file.
	DefaultConfigName = "clearnode"
)

// Challenge signer modes.
const (
	SignerAuto    = "auto"
	SignerEIP712  = "eip712"
	SignerSession = "session"
)

// Default configuration values.
const (
	DefaultLogLevel             = "info"
	DefaultWSURL                = "wss://clearnet.yellow.com/ws"
	DefaultAppName              = "Line Crypto"
	DefaultScope                = "line-crypto.app"
	DefaultSessionDuration      = time.Hour
	DefaultStore                = "file"
	DefaultChallengeSigner      = SignerAuto
	DefaultDialTimeout          = 10 * time.Second
	DefaultRequestTimeout       = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 3 * time.Second
	DefaultReconnectMaxJitter   = 500 * time.Millisecond
	DefaultHeartbeat            = 30 * time.Second
	DefaultMaxAuthRetries       = 3
	DefaultFetchChannelsOnAuth  = true
	DefaultServiceAddr          = "127.0.0.1:8000"
	DefaultNoService            = false
)

// Config contains all the configuration properties of a ClearNode client.
type Config struct {
	// DataDir is the top-level directory containing configuration and data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, additionally writes log entries to this file.
	LogFile string `mapstructure:"log-file"`

	// WSURL is the broker's WebSocket endpoint.
	WSURL string `mapstructure:"ws-url"`

	// AppName is sent in auth requests and names the EIP-712 domain.
	AppName string `mapstructure:"app-name"`

	// Scope is the authorization scope requested for the session key.
	Scope string `mapstructure:"scope"`

	// Application is the application (or channel) address the session key is
	// authorized for.
	Application string `mapstructure:"application"`

	// WalletAddress is used as the auth identity when no wallet key is held.
	// It is ignored when a wallet key is loaded.
	WalletAddress string `mapstructure:"wallet-address"`

	// SessionDuration is the lifetime requested for the session key.
	SessionDuration time.Duration `mapstructure:"session-duration"`

	// Store selects the storage backend: inmem, file, encrypted or badger.
	Store string `mapstructure:"store"`

	// Passphrase unlocks the encrypted storage backend.
	Passphrase string `mapstructure:"passphrase"`

	// ChallengeSigner selects who signs the auth challenge: eip712, session
	// or auto.
	ChallengeSigner string `mapstructure:"challenge-signer"`

	// DialTimeout bounds each WebSocket dial.
	DialTimeout time.Duration `mapstructure:"dial-timeout"`

	// RequestTimeout is how long a signed request waits for its response.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// MaxReconnectAttempts bounds automatic reconnection.
	MaxReconnectAttempts int `mapstructure:"max-reconnect-attempts"`

	// ReconnectBaseDelay is the first reconnect delay; it doubles on each
	// attempt.
	ReconnectBaseDelay time.Duration `mapstructure:"reconnect-base-delay"`

	// ReconnectMaxJitter bounds the random delay added to each reconnect.
	ReconnectMaxJitter time.Duration `mapstructure:"reconnect-max-jitter"`

	// Heartbeat is the interval between WebSocket pings. Zero disables them.
	Heartbeat time.Duration `mapstructure:"heartbeat"`

	// MaxAuthRetries is the number of consecutive failed authentications
	// after which the client gives up.
	MaxAuthRetries int `mapstructure:"max-auth-retries"`

	// FetchChannelsOnAuth requests the channel list right after
	// authentication.
	FetchChannelsOnAuth bool `mapstructure:"fetch-channels-on-auth"`

	// NoService disables the HTTP status service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP status service.
	ServiceAddr string `mapstructure:"service-listen"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:              DefaultDataDir(),
		LogLevel:             DefaultLogLevel,
		WSURL:                DefaultWSURL,
		AppName:              DefaultAppName,
		Scope:                DefaultScope,
		SessionDuration:      DefaultSessionDuration,
		Store:                DefaultStore,
		ChallengeSigner:      DefaultChallengeSigner,
		DialTimeout:          DefaultDialTimeout,
		RequestTimeout:       DefaultRequestTimeout,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectBaseDelay:   DefaultReconnectBaseDelay,
		ReconnectMaxJitter:   DefaultReconnectMaxJitter,
		Heartbeat:            DefaultHeartbeat,
		MaxAuthRetries:       DefaultMaxAuthRetries,
		FetchChannelsOnAuth:  DefaultFetchChannelsOnAuth,
		ServiceAddr:          DefaultServiceAddr,
		NoService:            DefaultNoService,
	}

	return config
}

// NewTestConfig returns a config object with default values, in-memory
// storage, and a special logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.DataDir = t.TempDir()
	config.Store = "inmem"
	config.NoService = true
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Keyfile returns the full path of the file containing the wallet key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// SetLogger replaces the logger returned by Logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// Logger returns a formatted logrus Entry, with prefix set to "clearnode".
// When LogFile is set, entries are also written there.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.DebugLevel: c.LogFile,
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
				},
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "clearnode")
}

// DefaultDataDir return the default directory name for top-level config based
// on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".ClearNode")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "ClearNode")
		} else {
			return filepath.Join(home, ".clearnode")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
