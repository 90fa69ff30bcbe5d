package framework

import (
	"errors"
	"time"
)

const (
	DefaultNetwork        = "localhost"
	DefaultRPCURL         = "http://127.0.0.1:8545"
	DefaultArtifactsDir   = "artifacts"
	DefaultDeploymentsDir = "deployments"
	DefaultConfirmTimeout = 2 * time.Minute

	// DefaultPrivKeyHex is the first prefunded account of a local hardhat or
	// anvil node, address 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266
	DefaultPrivKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var errMissingPrivKey = errors.New("missing deployer private key")

type Config struct {
	Network        string
	RPCURL         string
	PrivKeyHex     string
	ArtifactsDir   string
	DeploymentsDir string
	ConfirmTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Network:        DefaultNetwork,
		RPCURL:         DefaultRPCURL,
		PrivKeyHex:     DefaultPrivKeyHex,
		ArtifactsDir:   DefaultArtifactsDir,
		DeploymentsDir: DefaultDeploymentsDir,
		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

func (c *Config) Validate() error {
	if c.PrivKeyHex == "" {
		return errMissingPrivKey
	}
	if c.Network == "" {
		return errors.New("missing network name")
	}
	if c.ConfirmTimeout <= 0 {
		return errors.New("confirm timeout must be positive")
	}
	return nil
}
