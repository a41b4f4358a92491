// Package config defines the configuration for a ClearNode client.
//
// Regardless of how the client is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, the client relies on a data directory, defined by Config.DataDir,
// where it expects to find:
//
//	wallet_key // (optional) a plain text file containing the hex wallet key (cf. clearnode keygen).
//	clearnode.toml // (optional) a config file; .json and .yaml also work.
//	.env // (optional) environment overrides, CLEARNODE_ prefixed.
//
// and where file based storage backends keep their data.
package config
