package framework

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrAmbiguousArtifact = errors.New("more than one artifact matches")
	ErrNoBytecode        = errors.New("artifact has no creation bytecode")
)

// Artifact is a compiled contract: its ABI plus creation and runtime code.
type Artifact struct {
	ContractName string
	Abi          *abi.ABI
	Code         []byte
	DeployedCode []byte
}

// rawArtifact covers both the Hardhat layout, where bytecode fields are hex
// strings, and the Foundry layout, where they are objects with an "object" key.
type rawArtifact struct {
	ContractName     string          `json:"contractName"`
	Abi              json.RawMessage `json:"abi"`
	Bytecode         json.RawMessage `json:"bytecode"`
	DeployedBytecode json.RawMessage `json:"deployedBytecode"`
}

// ReadArtifact reads a compiled contract from a Hardhat or Foundry artifact file.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseArtifact(data, contractNameFromPath(path))
}

// ParseArtifact decodes artifact JSON. fallbackName is used when the file
// itself does not carry a contract name (Foundry output).
func ParseArtifact(data []byte, fallbackName string) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding artifact: %w", err)
	}
	if len(raw.Abi) == 0 {
		return nil, errors.New("artifact has no abi")
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.Abi))
	if err != nil {
		return nil, fmt.Errorf("parsing abi: %w", err)
	}

	code, err := decodeBytecode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("bytecode: %w", err)
	}
	deployed, err := decodeBytecode(raw.DeployedBytecode)
	if err != nil {
		return nil, fmt.Errorf("deployedBytecode: %w", err)
	}

	name := raw.ContractName
	if name == "" {
		name = fallbackName
	}

	return &Artifact{
		ContractName: name,
		Abi:          &parsed,
		Code:         code,
		DeployedCode: deployed,
	}, nil
}

func decodeBytecode(field json.RawMessage) ([]byte, error) {
	if len(field) == 0 || string(field) == "null" {
		return nil, nil
	}

	var str string
	if err := json.Unmarshal(field, &str); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(field, &obj); err != nil {
			return nil, err
		}
		str = obj.Object
	}

	if str == "" || str == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(str, "0x") {
		str = "0x" + str
	}
	// unlinked libraries show up as __$...$__ placeholders
	if strings.Contains(str, "__") {
		return nil, errors.New("bytecode has unlinked library references")
	}
	return hexutil.Decode(str)
}

func contractNameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// ArtifactStore locates artifacts by contract name below a build output
// directory such as Hardhat's artifacts/ or Foundry's out/.
type ArtifactStore struct {
	Dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{Dir: dir}
}

// Resolve returns the path of <name>.json below the store directory. Debug
// files (*.dbg.json) and build-info are skipped.
func (s *ArtifactStore) Resolve(name string) (string, error) {
	want := name + ".json"
	var matches []string

	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == want {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", s.Dir, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, name, s.Dir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s (%s)", ErrAmbiguousArtifact, name, strings.Join(matches, ", "))
	}
}

// Load resolves and reads the artifact for name. A path ending in .json is
// read directly, relative to the store directory.
func (s *ArtifactStore) Load(name string) (*Artifact, error) {
	path := filepath.Join(s.Dir, name)
	if !strings.HasSuffix(name, ".json") {
		var err error
		if path, err = s.Resolve(name); err != nil {
			return nil, err
		}
	}

	artifact, err := ReadArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}
	if len(artifact.Code) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBytecode, artifact.ContractName)
	}
	return artifact, nil
}
