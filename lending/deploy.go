// Package lending deploys the MetaFi lending platform contract.
package lending

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/metafi/lending-deploy/framework"
)

const (
	ContractName = "MetaFiLendingPlatform"

	TokenAddressHex    = "0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199"
	InterestRate       = 5  // percent
	MinCollateralRatio = 10 // percent
)

// Params are the platform's constructor parameters. Percentages are whole
// numbers.
type Params struct {
	Token              common.Address
	InterestRate       *uint256.Int
	MinCollateralRatio *uint256.Int
}

// DefaultParams returns the parameters the platform is always deployed with.
func DefaultParams() Params {
	return Params{
		Token:              common.HexToAddress(TokenAddressHex),
		InterestRate:       uint256.NewInt(InterestRate),
		MinCollateralRatio: uint256.NewInt(MinCollateralRatio),
	}
}

// ConstructorArgs returns p in ABI order, with the percentages converted to
// the *big.Int the ABI packer expects.
func (p Params) ConstructorArgs() []interface{} {
	return []interface{}{
		p.Token,
		p.InterestRate.ToBig(),
		p.MinCollateralRatio.ToBig(),
	}
}

// ConstructorArgs returns the platform's constructor arguments in ABI order:
// token address, interest rate, minimum collateral ratio.
func ConstructorArgs() []interface{} {
	return DefaultParams().ConstructorArgs()
}

type Deployment interface {
	WaitForDeployment(ctx context.Context) (*types.Receipt, error)
	Address() common.Address
}

type Deployer interface {
	DeployContract(ctx context.Context, name string, args ...interface{}) (Deployment, error)
}

type frameworkDeployer struct {
	fr *framework.Framework
}

// FrameworkDeployer adapts a framework instance to Deployer.
func FrameworkDeployer(fr *framework.Framework) Deployer {
	return frameworkDeployer{fr: fr}
}

func (d frameworkDeployer) DeployContract(ctx context.Context, name string, args ...interface{}) (Deployment, error) {
	contract, err := d.fr.DeployContract(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// Deploy publishes the platform, waits for it to be mined and writes its
// address to out. Nothing is written when any step fails.
func Deploy(ctx context.Context, deployer Deployer, out io.Writer) (common.Address, error) {
	contract, err := deployer.DeployContract(ctx, ContractName, ConstructorArgs()...)
	if err != nil {
		return common.Address{}, err
	}

	if _, err := contract.WaitForDeployment(ctx); err != nil {
		return common.Address{}, err
	}

	addr := contract.Address()
	fmt.Fprintln(out, ContractName+" is deployed to : ", addr.Hex())
	return addr, nil
}
