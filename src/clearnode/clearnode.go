// Package clearnode assembles a complete client from a config.Config: storage,
// credentials, wallet key, transport, protocol client and HTTP service.
package clearnode

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/linecrypto/clearnode/src/client"
	"github.com/linecrypto/clearnode/src/config"
	"github.com/linecrypto/clearnode/src/credentials"
	"github.com/linecrypto/clearnode/src/crypto/keys"
	"github.com/linecrypto/clearnode/src/metrics"
	"github.com/linecrypto/clearnode/src/net"
	"github.com/linecrypto/clearnode/src/service"
	"github.com/linecrypto/clearnode/src/storage"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// ClearNode is the top-level object. Fields are populated by Init.
type ClearNode struct {
	Config      *config.Config
	Storage     storage.Storage
	Credentials *credentials.Store
	// Wallet is nil when no wallet key lives in the data directory.
	Wallet    keys.Signer
	Metrics   *metrics.Metrics
	Transport *net.WebSocketTransport
	Sessions  *client.SessionRegistry
	Client    *client.Client
	Service   *service.Service

	// Dialer replaces the default WebSocket dialer when set before Init.
	Dialer net.Dialer

	logger       *logrus.Entry
	shutdownOnce sync.Once
}

// NewClearNode ...
func NewClearNode(config *config.Config) *ClearNode {
	return &ClearNode{
		Config: config,
	}
}

func (c *ClearNode) initStore() error {
	c.logger.WithFields(logrus.Fields{
		"backend": c.Config.Store,
		"dir":     c.Config.DataDir,
	}).Debug("Opening storage")

	s, err := storage.New(storage.Options{
		Backend:    c.Config.Store,
		Dir:        c.Config.DataDir,
		Passphrase: c.Config.Passphrase,
	})
	if err != nil {
		return err
	}

	c.Storage = s
	c.Credentials = credentials.NewStore(s, c.logger.WithField("prefix", "credentials"))

	return nil
}

func (c *ClearNode) initKey() error {
	keyfile := keys.NewSimpleKeyfile(c.Config.Keyfile())

	key, err := keyfile.ReadKey()
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.WithField("path", keyfile.Path()).Debug("No wallet key, session key will sign challenges")
			return nil
		}
		return fmt.Errorf("reading wallet key: %v", err)
	}

	c.Wallet = keys.NewECDSASigner(key)

	c.logger.WithField("address", c.Wallet.Address()).Info("Loaded wallet key")

	return nil
}

func (c *ClearNode) initMetrics() error {
	c.Metrics = metrics.New()
	return nil
}

func (c *ClearNode) initTransport() error {
	c.Transport = net.NewWebSocketTransport(
		net.Config{
			URL:                  c.Config.WSURL,
			DialTimeout:          c.Config.DialTimeout,
			MaxReconnectAttempts: c.Config.MaxReconnectAttempts,
			ReconnectBaseDelay:   c.Config.ReconnectBaseDelay,
			ReconnectMaxJitter:   c.Config.ReconnectMaxJitter,
			Heartbeat:            c.Config.Heartbeat,
		},
		c.Dialer,
		c.Metrics,
		c.logger.WithField("prefix", "transport"),
	)

	return nil
}

func (c *ClearNode) initClient() error {
	logger := c.logger.WithField("prefix", "client")

	c.Sessions = client.NewSessionRegistry(c.Storage, logger)

	cl, err := client.New(
		client.Config{
			AppName:             c.Config.AppName,
			Scope:               c.Config.Scope,
			Application:         c.Config.Application,
			SessionDuration:     c.Config.SessionDuration,
			WalletAddress:       c.Config.WalletAddress,
			ChallengeSigner:     c.Config.ChallengeSigner,
			RequestTimeout:      c.Config.RequestTimeout,
			MaxAuthRetries:      c.Config.MaxAuthRetries,
			FetchChannelsOnAuth: c.Config.FetchChannelsOnAuth,
		},
		c.Transport,
		c.Credentials,
		c.Wallet,
		c.Sessions,
		c.Metrics,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %v", err)
	}

	c.Client = cl

	return nil
}

func (c *ClearNode) initService() error {
	if !c.Config.NoService {
		c.Service = service.NewService(
			c.Config.ServiceAddr,
			c.Client,
			c.Metrics,
			c.logger.WithField("prefix", "service"),
		)
	}
	return nil
}

// Init wires every component. Storage is closed again if a later step fails.
func (c *ClearNode) Init() error {
	c.logger = c.Config.Logger()

	if err := c.initStore(); err != nil {
		return err
	}

	steps := []func() error{
		c.initKey,
		c.initMetrics,
		c.initTransport,
		c.initClient,
		c.initService,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			c.Storage.Close()
			return err
		}
	}

	return nil
}

// Authenticate connects and blocks until the handshake succeeds, fails for
// good, or ctx is done.
func (c *ClearNode) Authenticate(ctx context.Context) error {
	if err := c.Client.Start(ctx); err != nil {
		c.logger.WithError(err).Warn("Initial connection failed")
	}
	return c.Client.WaitAuthenticated(ctx)
}

// Run starts the service and the client and blocks until ctx is done. Dial
// failures are retried by the transport, so they do not end Run.
func (c *ClearNode) Run(ctx context.Context) error {
	if c.Service != nil {
		go c.Service.Serve()
	}

	if err := c.Client.Start(ctx); err != nil {
		c.logger.WithError(err).Warn("Initial connection failed")
	}

	<-ctx.Done()

	c.Shutdown()

	return nil
}

// Shutdown stops the service, closes the client and releases the storage. It
// is safe to call more than once.
func (c *ClearNode) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Debug("Shutting down")

		if c.Service != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := c.Service.Shutdown(ctx); err != nil {
				c.logger.WithError(err).Warn("Service shutdown")
			}
			cancel()
		}

		if c.Client != nil {
			c.Client.Close()
		}

		if c.Storage != nil {
			if err := c.Storage.Close(); err != nil {
				c.logger.WithError(err).Warn("Closing storage")
			}
		}
	})
}

// Keygen creates a wallet key in datadir. It refuses to overwrite an existing
// one.
func Keygen(datadir string) (*ecdsa.PrivateKey, error) {
	path := filepath.Join(datadir, config.DefaultKeyfile)

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", datadir)
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keys.NewSimpleKeyfile(path).WriteKey(key); err != nil {
		return nil, err
	}

	return key, nil
}
