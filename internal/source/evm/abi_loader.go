package evm

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LoadABI parses a contract ABI JSON file.
func LoadABI(path string) (*abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi %s: %w", path, err)
	}
	a, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", path, err)
	}
	return &a, nil
}

// ResolveSignatures looks up the TakeOrderV2 and ClearV2 event ids in the ABI.
func ResolveSignatures(a *abi.ABI) (Signatures, error) {
	if a == nil {
		return Signatures{}, fmt.Errorf("resolve signatures: nil abi")
	}
	takeEv, ok := a.Events[TakeOrderEventName]
	if !ok {
		return Signatures{}, fmt.Errorf("resolve signatures: event %s not in abi", TakeOrderEventName)
	}
	clearEv, ok := a.Events[ClearEventName]
	if !ok {
		return Signatures{}, fmt.Errorf("resolve signatures: event %s not in abi", ClearEventName)
	}
	return Signatures{TakeOrder: takeEv.ID, Clear: clearEv.ID}, nil
}

// LoadSignatures is LoadABI followed by ResolveSignatures.
func LoadSignatures(path string) (Signatures, error) {
	a, err := LoadABI(path)
	if err != nil {
		return Signatures{}, err
	}
	return ResolveSignatures(a)
}
