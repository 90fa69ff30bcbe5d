package framework

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

var (
	ErrArgumentCount      = errors.New("constructor argument count mismatch")
	ErrTxReverted         = errors.New("transaction reverted")
	ErrDeploymentReverted = errors.New("deployment transaction reverted")
	ErrNoCodeAfterDeploy  = errors.New("no contract code at deployed address")
	ErrConfirmTimeout     = errors.New("timed out waiting for confirmation")

	errNotDeployedHere = errors.New("contract was not deployed by this framework")
)

// Backend is the part of an Ethereum JSON-RPC client the framework relies
// on. *ethclient.Client and the go-ethereum simulated backend satisfy it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type Framework struct {
	config    *Config
	log       *logrus.Entry
	backend   Backend
	chainID   *big.Int
	deployer  *PrivKey
	artifacts *ArtifactStore
	records   *RecordStore
	closeFn   func()
}

// New dials the configured RPC endpoint and prepares a framework that signs
// with the configured deployer key.
func New(ctx context.Context, config *Config, log *logrus.Entry) (*Framework, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.RPCURL, err)
	}

	fr, err := NewWithBackend(ctx, client, config, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	fr.closeFn = client.Close
	return fr, nil
}

func NewWithBackend(ctx context.Context, backend Backend, config *Config, log *logrus.Entry) (*Framework, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	deployer, err := NewPrivKeyFromHex(config.PrivKeyHex)
	if err != nil {
		return nil, err
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed getting chain id: %w", err)
	}

	fr := &Framework{
		config:    config,
		backend:   backend,
		chainID:   chainID,
		deployer:  deployer,
		artifacts: NewArtifactStore(config.ArtifactsDir),
		log: log.WithFields(logrus.Fields{
			"network": config.Network,
			"chainId": chainID.String(),
		}),
	}
	if config.DeploymentsDir != "" {
		fr.records = NewRecordStore(config.DeploymentsDir)
	}

	fr.log.WithField("deployer", deployer.Address().Hex()).Debug("framework initialized")
	return fr, nil
}

func (f *Framework) Close() {
	if f.closeFn != nil {
		f.closeFn()
	}
}

func (f *Framework) ChainID() *big.Int {
	return new(big.Int).Set(f.chainID)
}

func (f *Framework) Deployer() *PrivKey {
	return f.deployer
}

func (f *Framework) Records() *RecordStore {
	return f.records
}

func (f *Framework) transactOpts(ctx context.Context, key *PrivKey) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key.Priv, f.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// DeployContract signs and broadcasts the creation transaction of the named
// contract. It returns as soon as the node accepted the transaction; use
// Contract.WaitForDeployment to wait for it to be mined.
func (f *Framework) DeployContract(ctx context.Context, name string, args ...interface{}) (*Contract, error) {
	artifact, err := f.artifacts.Load(name)
	if err != nil {
		return nil, err
	}

	if want := len(artifact.Abi.Constructor.Inputs); want != len(args) {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrArgumentCount, artifact.ContractName, want, len(args))
	}

	opts, err := f.transactOpts(ctx, f.deployer)
	if err != nil {
		return nil, err
	}

	addr, tx, _, err := bind.DeployContract(opts, *artifact.Abi, artifact.Code, f.backend, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", artifact.ContractName, err)
	}

	// address is logged once the deployment is confirmed
	f.log.WithFields(logrus.Fields{
		"contract": artifact.ContractName,
		"tx":       tx.Hash().Hex(),
	}).Info("deployment transaction sent")

	return &Contract{
		addr:     addr,
		abi:      artifact.Abi,
		artifact: artifact,
		args:     args,
		deployTx: tx,
		deployer: f.deployer.Address(),
		fr:       f,
		key:      f.deployer,
	}, nil
}

// ContractAt binds an already deployed contract.
func (f *Framework) ContractAt(addr common.Address, contractAbi *abi.ABI) *Contract {
	return &Contract{
		addr: addr,
		abi:  contractAbi,
		fr:   f,
		key:  f.deployer,
	}
}

func (f *Framework) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return f.backend.BalanceAt(ctx, addr, nil)
}

func (f *Framework) SignTx(key *PrivKey, txdata types.TxData) (*types.Transaction, error) {
	return types.SignNewTx(key.Priv, types.LatestSignerForChainID(f.chainID), txdata)
}

// FundAccount transfers value wei from the deployer account to `to` and
// waits for the transfer to be mined.
func (f *Framework) FundAccount(ctx context.Context, to common.Address, value *uint256.Int) error {
	from := f.deployer.Address()

	nonce, err := f.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("failed getting nonce: %w", err)
	}
	tip, err := f.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed getting gas tip: %w", err)
	}
	head, err := f.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed getting head: %w", err)
	}

	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx, err := f.SignTx(f.deployer, &types.DynamicFeeTx{
		ChainID:   f.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       21000,
		To:        &to,
		Value:     value.ToBig(),
	})
	if err != nil {
		return err
	}

	if err := f.backend.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to send transfer: %w", err)
	}

	receipt, err := f.waitMined(ctx, tx)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: transfer %s", ErrTxReverted, tx.Hash().Hex())
	}

	f.log.WithFields(logrus.Fields{
		"to":    to.Hex(),
		"value": value.Dec(),
	}).Info("account funded")
	return nil
}

// waitMined blocks until tx is included, bounded by the configured confirm
// timeout.
func (f *Framework) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.ConfirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, f.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: tx %s after %s", ErrConfirmTimeout, tx.Hash().Hex(), f.config.ConfirmTimeout)
		}
		return nil, err
	}
	return receipt, nil
}
