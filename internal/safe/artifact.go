package safe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrEmptyBytecode is returned for artifacts without deployable bytecode.
var ErrEmptyBytecode = errors.New("artifact has no bytecode")

// Artifact is the subset of a compiled contract artifact (Hardhat or
// Foundry layout) needed to deploy it.
type Artifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// foundryArtifact nests bytecode under an object field.
type foundryArtifact struct {
	Bytecode struct {
		Object string `json:"object"`
	} `json:"bytecode"`
}

// LoadArtifact reads and decodes a compiled contract artifact.
func LoadArtifact(path string) (Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	return ParseArtifact(raw)
}

// ParseArtifact decodes artifact JSON.
func ParseArtifact(raw []byte) (Artifact, error) {
	var art Artifact
	if err := json.Unmarshal(raw, &art); err == nil {
		return art, nil
	}

	// Foundry emits bytecode as {"object": "0x..."}.
	var fa foundryArtifact
	if err := json.Unmarshal(raw, &fa); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	var meta struct {
		ContractName string          `json:"contractName"`
		ABI          json.RawMessage `json:"abi"`
	}
	_ = json.Unmarshal(raw, &meta)
	return Artifact{ContractName: meta.ContractName, ABI: meta.ABI, Bytecode: fa.Bytecode.Object}, nil
}

// Code returns the decoded creation bytecode.
func (a Artifact) Code() ([]byte, error) {
	hex := strings.TrimSpace(a.Bytecode)
	if hex == "" || hex == "0x" {
		return nil, ErrEmptyBytecode
	}
	if !strings.HasPrefix(hex, "0x") {
		hex = "0x" + hex
	}
	code, err := hexutil.Decode(hex)
	if err != nil {
		return nil, fmt.Errorf("decode bytecode: %w", err)
	}
	return code, nil
}
