package commands

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/linecrypto/clearnode/src/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override flags, as in
// CLEARNODE_WS_URL.
const EnvPrefix = "CLEARNODE"

// AddGlobalFlags adds the flags shared by every subcommand.
func AddGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()

	f.String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	f.String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	f.String("log-file", _config.LogFile, "Also write JSON log entries to this file")

	// Broker
	f.String("ws-url", _config.WSURL, "WebSocket endpoint of the ClearNode")
	f.Duration("dial-timeout", _config.DialTimeout, "Timeout of each WebSocket dial")
	f.Int("max-reconnect-attempts", _config.MaxReconnectAttempts, "Reconnect attempts before giving up")
	f.Duration("reconnect-base-delay", _config.ReconnectBaseDelay, "First reconnect delay, doubled on each attempt")
	f.Duration("reconnect-max-jitter", _config.ReconnectMaxJitter, "Maximum random delay added to reconnects")
	f.Duration("heartbeat", _config.Heartbeat, "Interval between WebSocket pings, 0 to disable")
	f.Duration("request-timeout", _config.RequestTimeout, "How long a request waits for its response")

	// Authentication
	f.String("app-name", _config.AppName, "Application name sent with auth requests")
	f.String("scope", _config.Scope, "Scope requested for the session key")
	f.String("application", _config.Application, "Application address the session key is authorized for")
	f.String("wallet-address", _config.WalletAddress, "Identity to authenticate as when no wallet key is present")
	f.Duration("session-duration", _config.SessionDuration, "Requested lifetime of the session key")
	f.String("challenge-signer", _config.ChallengeSigner, "Who signs the auth challenge: auto, eip712 or session")
	f.Int("max-auth-retries", _config.MaxAuthRetries, "Failed authentications before giving up")
	f.Bool("fetch-channels-on-auth", _config.FetchChannelsOnAuth, "Request the channel list after authenticating")

	// Store
	f.String("store", _config.Store, "Storage backend: inmem, file, encrypted or badger")
	f.String("passphrase", _config.Passphrase, "Passphrase of the encrypted store")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	used, err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	logger := _config.Logger()

	if used != "" {
		logger.Debugf("Using config file: %s", used)
	}

	logger.WithFields(logrus.Fields{
		"DataDir":          _config.DataDir,
		"WSURL":            _config.WSURL,
		"AppName":          _config.AppName,
		"Scope":            _config.Scope,
		"Application":      _config.Application,
		"Store":            _config.Store,
		"ChallengeSigner":  _config.ChallengeSigner,
		"SessionDuration":  _config.SessionDuration,
		"RequestTimeout":   _config.RequestTimeout,
		"MaxAuthRetries":   _config.MaxAuthRetries,
		"MaxReconnects":    _config.MaxReconnectAttempts,
		"ReconnectBase":    _config.ReconnectBaseDelay,
		"Heartbeat":        _config.Heartbeat,
		"NoService":        _config.NoService,
		"ServiceAddr":      _config.ServiceAddr,
		"FetchChannels":    _config.FetchChannelsOnAuth,
		"HasPassphrase":    _config.Passphrase != "",
		"WalletAddressSet": _config.WalletAddress != "",
	}).Debug(strings.ToUpper(cmd.Name()))

	return nil
}

// bindFlagsLoadViper binds the flags into viper and reads the optional
// config file and .env files. It returns the config file used, if any.
// Precedence is flags, then environment, then config file, then defaults.
func bindFlagsLoadViper(cmd *cobra.Command) (string, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return "", err
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// first unmarshal to learn the datadir
	if err := viper.Unmarshal(_config); err != nil {
		return "", err
	}

	if err := loadDotEnv(".env", filepath.Join(_config.DataDir, ".env")); err != nil {
		return "", err
	}

	// look for config file in [datadir]/clearnode.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigName)
	viper.AddConfigPath(_config.DataDir)

	used := ""
	if err := viper.ReadInConfig(); err == nil {
		used = viper.ConfigFileUsed()
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return "", err
	}

	// second unmarshal to pick up the config file and .env values
	if err := viper.Unmarshal(_config); err != nil {
		return "", err
	}

	return used, nil
}

// loadDotEnv loads the files that exist. Variables already set in the
// environment win.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}
