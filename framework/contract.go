package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

type Contract struct {
	addr     common.Address
	abi      *abi.ABI
	artifact *Artifact
	args     []interface{}
	deployTx *types.Transaction
	// deployer signed deployTx. It is not changed by Ref.
	deployer common.Address
	fr       *Framework
	key      *PrivKey
}

func (c *Contract) Address() common.Address {
	return c.addr
}

func (c *Contract) Abi() *abi.ABI {
	return c.abi
}

// DeployTx is the creation transaction, nil for contracts bound with ContractAt.
func (c *Contract) DeployTx() *types.Transaction {
	return c.deployTx
}

// Ref returns a copy of the contract that sends transactions signed by key.
func (c *Contract) Ref(key *PrivKey) *Contract {
	ref := *c
	ref.key = key
	return &ref
}

func (c *Contract) bound() *bind.BoundContract {
	b := c.fr.backend
	return bind.NewBoundContract(c.addr, *c.abi, b, b, b)
}

// WaitForDeployment waits until the creation transaction is mined and the
// contract code is live. On success the deployment is recorded under the
// framework's deployments directory.
func (c *Contract) WaitForDeployment(ctx context.Context) (*types.Receipt, error) {
	if c.deployTx == nil {
		return nil, errNotDeployedHere
	}
	log := c.fr.log.WithFields(logrus.Fields{
		"contract": c.artifact.ContractName,
		"tx":       c.deployTx.Hash().Hex(),
	})
	log.Debug("waiting for deployment")

	receipt, err := c.fr.waitMined(ctx, c.deployTx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s in block %s", ErrDeploymentReverted, c.deployTx.Hash().Hex(), receipt.BlockNumber)
	}

	code, err := c.fr.backend.CodeAt(ctx, c.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed reading code at %s: %w", c.addr.Hex(), err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCodeAfterDeploy, c.addr.Hex())
	}

	log.WithFields(logrus.Fields{
		"block":   receipt.BlockNumber,
		"gasUsed": receipt.GasUsed,
	}).Info("contract deployed")
	log.WithField("address", c.addr.Hex()).Debug("deployment confirmed")

	if c.fr.records != nil {
		record := NewDeploymentRecord(c.fr.config.Network, c.fr.chainID, c.artifact, c.addr, c.deployer, c.args, receipt, time.Now())
		if err := c.fr.records.Save(record); err != nil {
			log.WithError(err).Warn("failed to record deployment")
		}
	}

	return receipt, nil
}

// Call runs a read-only method and returns its decoded outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound().Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return out, nil
}

// SendTransaction invokes method in a transaction and waits for a successful
// receipt.
func (c *Contract) SendTransaction(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	opts, err := c.fr.transactOpts(ctx, c.key)
	if err != nil {
		return nil, err
	}

	tx, err := c.bound().Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	receipt, err := c.fr.waitMined(ctx, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s %s", ErrTxReverted, method, tx.Hash().Hex())
	}
	return receipt, nil
}
