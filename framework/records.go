package framework

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrRecordNotFound = errors.New("deployment record not found")
	ErrInvalidName    = errors.New("invalid network or contract name")

	validName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// DeploymentRecord is what gets written to
// <deployments dir>/<network>/<contract>.json once a contract is live.
type DeploymentRecord struct {
	Network         string          `json:"network"`
	ChainID         string          `json:"chainId"`
	ContractName    string          `json:"contractName"`
	Address         common.Address  `json:"address"`
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     uint64          `json:"blockNumber"`
	GasUsed         uint64          `json:"gasUsed"`
	Deployer        common.Address  `json:"deployer"`
	Args            []string        `json:"args"`
	Abi             json.RawMessage `json:"abi,omitempty"`
	DeployedAt      time.Time       `json:"deployedAt"`
}

func NewDeploymentRecord(network string, chainID *big.Int, artifact *Artifact, addr, deployer common.Address, args []interface{}, receipt *types.Receipt, now time.Time) *DeploymentRecord {
	record := &DeploymentRecord{
		Network:         network,
		ChainID:         chainID.String(),
		ContractName:    artifact.ContractName,
		Address:         addr,
		TransactionHash: receipt.TxHash,
		GasUsed:         receipt.GasUsed,
		Deployer:        deployer,
		Args:            FormatArgs(args),
		DeployedAt:      now.UTC(),
	}
	if receipt.BlockNumber != nil {
		record.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if artifact.Abi != nil {
		if abiJSON, err := json.Marshal(abiEntries(artifact)); err == nil {
			record.Abi = abiJSON
		}
	}
	return record
}

// FormatArgs renders constructor arguments the way they are shown to users
// and stored in records: addresses as checksummed hex, integers in decimal.
func FormatArgs(args []interface{}) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case common.Address:
			out[i] = v.Hex()
		case *big.Int:
			out[i] = v.String()
		case fmt.Stringer:
			out[i] = v.String()
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

type abiParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type abiEntry struct {
	Type   string     `json:"type"`
	Name   string     `json:"name,omitempty"`
	Inputs []abiParam `json:"inputs"`
}

// abiEntries keeps a summary of the constructor and methods; the full ABI
// stays in the build artifact.
func abiEntries(artifact *Artifact) []abiEntry {
	params := func(args abi.Arguments) []abiParam {
		out := make([]abiParam, 0, len(args))
		for _, a := range args {
			out = append(out, abiParam{Name: a.Name, Type: a.Type.String()})
		}
		return out
	}

	entries := []abiEntry{{Type: "constructor", Inputs: params(artifact.Abi.Constructor.Inputs)}}

	names := make([]string, 0, len(artifact.Abi.Methods))
	for name := range artifact.Abi.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entries = append(entries, abiEntry{
			Type:   "function",
			Name:   name,
			Inputs: params(artifact.Abi.Methods[name].Inputs),
		})
	}
	return entries
}

type RecordStore struct {
	Dir string
}

func NewRecordStore(dir string) *RecordStore {
	return &RecordStore{Dir: dir}
}

func (s *RecordStore) path(network, name string) (string, error) {
	for _, part := range []string{network, name} {
		if !validName.MatchString(part) || strings.Trim(part, ".") == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, part)
		}
	}
	return filepath.Join(s.Dir, network, name+".json"), nil
}

// Save writes the record, replacing an earlier deployment of the same
// contract on the same network.
func (s *RecordStore) Save(record *DeploymentRecord) error {
	path, err := s.path(record.Network, record.ContractName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *RecordStore) Load(network, name string) (*DeploymentRecord, error) {
	path, err := s.path(network, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, network, name)
	} else if err != nil {
		return nil, err
	}

	record := new(DeploymentRecord)
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return record, nil
}

// List returns every record of a network sorted by contract name. An unknown
// network yields an empty list.
func (s *RecordStore) List(network string) ([]*DeploymentRecord, error) {
	if _, err := s.path(network, "_"); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.Dir, network))
	if errors.Is(err, os.ErrNotExist) {
		return []*DeploymentRecord{}, nil
	} else if err != nil {
		return nil, err
	}

	records := make([]*DeploymentRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		record, err := s.Load(network, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ContractName < records[j].ContractName })
	return records, nil
}

func (s *RecordStore) Networks() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	} else if err != nil {
		return nil, err
	}

	networks := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && validName.MatchString(entry.Name()) {
			networks = append(networks, entry.Name())
		}
	}
	sort.Strings(networks)
	return networks, nil
}
