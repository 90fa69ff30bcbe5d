// Package testchain runs deployments against an in-process simulated chain.
package testchain

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/metafi/lending-deploy/framework"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// LendingABI matches the MetaFiLendingPlatform constructor. The test contract
// exposes a single getter, slot(uint256), returning raw storage.
const LendingABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"_token","type":"address","internalType":"address"},
		{"name":"_interestRate","type":"uint256","internalType":"uint256"},
		{"name":"_minCollateralRatio","type":"uint256","internalType":"uint256"}]},
	{"type":"function","name":"slot","stateMutability":"view",
		"inputs":[{"name":"index","type":"uint256","internalType":"uint256"}],
		"outputs":[{"name":"","type":"uint256","internalType":"uint256"}]}
]`

// LendingBytecode copies the three 32 byte constructor arguments into storage
// slots 0, 1 and 2 and installs LendingDeployedBytecode, which returns
// sload(calldataload(4)) for any call.
const (
	LendingBytecode = "0x" +
		"6060803803600039" + // codecopy(0, codesize-96, 96)
		"600051600055" + // sstore(0, mload(0))
		"602051600155" + // sstore(1, mload(32))
		"604051600255" + // sstore(2, mload(64))
		"600c6026600039" + // codecopy(0, 38, 12)
		"600c6000f3" + // return(0, 12)
		"6004355460005260206000f3"
	LendingDeployedBytecode = "0x6004355460005260206000f3"
)

// EmptyRuntimeBytecode deploys successfully but leaves no code behind.
const EmptyRuntimeBytecode = "0x60006000f3"

// RevertingBytecode reverts in the constructor.
const RevertingBytecode = "0x60006000fd"

const NoArgsABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[]}]`

// RevertOnCallBytecode deploys a contract whose runtime code reverts on every
// call.
const (
	RevertOnCallBytecode = "0x" +
		"6005600c600039" + // codecopy(0, 12, 5)
		"60056000f3" + // return(0, 5)
		"60006000fd"
	RevertOnCallABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[]},
	{"type":"function","name":"fail","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`
)

type hardhatArtifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	Abi              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

// WriteHardhatArtifact writes an artifact the way hardhat lays it out:
// <dir>/contracts/<name>.sol/<name>.json. It returns the file path.
func WriteHardhatArtifact(t testing.TB, dir, name, abiJSON, bytecode, deployed string) string {
	t.Helper()

	path := filepath.Join(dir, "contracts", name+".sol", name+".json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	data, err := json.MarshalIndent(hardhatArtifact{
		Format:           "hh-sol-artifact-1",
		ContractName:     name,
		SourceName:       "contracts/" + name + ".sol",
		Abi:              json.RawMessage(abiJSON),
		Bytecode:         bytecode,
		DeployedBytecode: deployed,
	}, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// WriteLendingArtifact writes the MetaFiLendingPlatform test artifact into dir.
func WriteLendingArtifact(t testing.TB, dir string) string {
	return WriteHardhatArtifact(t, dir, "MetaFiLendingPlatform", LendingABI, LendingBytecode, LendingDeployedBytecode)
}

// autoCommit seals a block after every accepted transaction so receipts are
// available right away.
type autoCommit struct {
	simulated.Client
	sim *simulated.Backend
}

func (b *autoCommit) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := b.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	b.sim.Commit()
	return nil
}

// fixedGas skips gas estimation, so transactions that revert are still mined
// and produce a failed receipt.
type fixedGas struct {
	framework.Backend
	gas uint64
}

func (b *fixedGas) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return b.gas, nil
}

// FixedGas wraps backend so every transaction uses the given gas limit.
func FixedGas(backend framework.Backend, gas uint64) framework.Backend {
	return &fixedGas{Backend: backend, gas: gas}
}

type Chain struct {
	Sim *simulated.Backend
	// Backend mines a block for each sent transaction.
	Backend framework.Backend
	// Client does not mine on its own, Sim.Commit has to be called.
	Client simulated.Client
	Key    *framework.PrivKey
}

// New starts a simulated chain with the default deployer key prefunded.
func New(t testing.TB) *Chain {
	t.Helper()

	key, err := framework.NewPrivKeyFromHex(framework.DefaultPrivKeyHex)
	require.NoError(t, err)

	funds := new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))
	sim := simulated.NewBackend(types.GenesisAlloc{
		key.Address(): {Balance: funds},
	})
	t.Cleanup(func() { _ = sim.Close() })

	return &Chain{
		Sim:     sim,
		Backend: &autoCommit{Client: sim.Client(), sim: sim},
		Client:  sim.Client(),
		Key:     key,
	}
}

// Config returns a framework config pointing at fresh temporary directories.
func Config(t testing.TB) *framework.Config {
	cfg := framework.DefaultConfig()
	cfg.Network = "simulated"
	cfg.ArtifactsDir = t.TempDir()
	cfg.DeploymentsDir = t.TempDir()
	cfg.ConfirmTimeout = 10 * time.Second
	return cfg
}

func Logger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(log)
}

// BufferLogger logs at info level into the returned buffer, the way the CLI
// logs by default.
func BufferLogger() (*logrus.Entry, *bytes.Buffer) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.InfoLevel)
	return logrus.NewEntry(log), &buf
}

// Framework builds a framework on the auto-mining backend.
func (c *Chain) Framework(t testing.TB, cfg *framework.Config) *framework.Framework {
	t.Helper()
	return c.FrameworkWithBackend(t, c.Backend, cfg)
}

func (c *Chain) FrameworkWithBackend(t testing.TB, backend framework.Backend, cfg *framework.Config) *framework.Framework {
	t.Helper()
	return c.FrameworkWithLogger(t, backend, cfg, Logger())
}

func (c *Chain) FrameworkWithLogger(t testing.TB, backend framework.Backend, cfg *framework.Config, log *logrus.Entry) *framework.Framework {
	t.Helper()
	fr, err := framework.NewWithBackend(context.Background(), backend, cfg, log)
	require.NoError(t, err)
	return fr
}
