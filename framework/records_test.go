package framework_test

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/metafi/lending-deploy/framework"
	"github.com/metafi/lending-deploy/internal/testchain"
	"github.com/stretchr/testify/require"
)

func testRecord(t *testing.T, network, name string) *framework.DeploymentRecord {
	artifact, err := framework.ReadArtifact(testchain.WriteLendingArtifact(t, t.TempDir()))
	require.NoError(t, err)
	artifact.ContractName = name

	receipt := &types.Receipt{
		TxHash:      common.HexToHash("0x01"),
		BlockNumber: big.NewInt(7),
		GasUsed:     90000,
	}
	return framework.NewDeploymentRecord(network, big.NewInt(31337), artifact,
		common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		lendArgs, receipt, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
}

func TestRecordStoreSaveLoad(t *testing.T) {
	store := framework.NewRecordStore(t.TempDir())
	record := testRecord(t, "localhost", "MetaFiLendingPlatform")
	require.NoError(t, store.Save(record))

	loaded, err := store.Load("localhost", "MetaFiLendingPlatform")
	require.NoError(t, err)
	require.Equal(t, record.Address, loaded.Address)
	require.Equal(t, record.TransactionHash, loaded.TransactionHash)
	require.Equal(t, uint64(7), loaded.BlockNumber)
	require.Equal(t, "31337", loaded.ChainID)
	require.Equal(t, []string{tokenAddr.Hex(), "5", "10"}, loaded.Args)
	require.True(t, record.DeployedAt.Equal(loaded.DeployedAt))
	require.JSONEq(t, string(record.Abi), string(loaded.Abi))

	_, err = os.Stat(filepath.Join(store.Dir, "localhost", "MetaFiLendingPlatform.json"))
	require.NoError(t, err)
}

func TestRecordStoreOverwrite(t *testing.T) {
	store := framework.NewRecordStore(t.TempDir())
	first := testRecord(t, "localhost", "MetaFiLendingPlatform")
	require.NoError(t, store.Save(first))

	second := testRecord(t, "localhost", "MetaFiLendingPlatform")
	second.Address = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	require.NoError(t, store.Save(second))

	loaded, err := store.Load("localhost", "MetaFiLendingPlatform")
	require.NoError(t, err)
	require.Equal(t, second.Address, loaded.Address)
}

func TestRecordStoreListAndNetworks(t *testing.T) {
	store := framework.NewRecordStore(t.TempDir())

	networks, err := store.Networks()
	require.NoError(t, err)
	require.Empty(t, networks)

	require.NoError(t, store.Save(testRecord(t, "sepolia", "Token")))
	require.NoError(t, store.Save(testRecord(t, "sepolia", "MetaFiLendingPlatform")))
	require.NoError(t, store.Save(testRecord(t, "localhost", "MetaFiLendingPlatform")))

	networks, err = store.Networks()
	require.NoError(t, err)
	require.Equal(t, []string{"localhost", "sepolia"}, networks)

	records, err := store.List("sepolia")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "MetaFiLendingPlatform", records[0].ContractName)
	require.Equal(t, "Token", records[1].ContractName)

	records, err = store.List("mainnet")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestRecordStoreRejectsPathNames(t *testing.T) {
	store := framework.NewRecordStore(t.TempDir())

	for _, name := range []string{"..", ".", "a/b", "", "../etc"} {
		_, err := store.Load(name, "MetaFiLendingPlatform")
		require.ErrorIs(t, err, framework.ErrInvalidName, name)
		_, err = store.Load("localhost", name)
		require.ErrorIs(t, err, framework.ErrInvalidName, name)
	}

	_, err := store.Load("localhost", "Missing")
	require.ErrorIs(t, err, framework.ErrRecordNotFound)
}

func TestFormatArgs(t *testing.T) {
	got := framework.FormatArgs([]interface{}{
		tokenAddr,
		big.NewInt(5),
		uint256.NewInt(10),
		"text",
		true,
	})
	require.Equal(t, []string{tokenAddr.Hex(), "5", "10", "text", "true"}, got)
}
