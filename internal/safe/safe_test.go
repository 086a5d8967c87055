package safe

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSafe  = common.HexToAddress("0x00000000000000000000000000000000000005AF")
	testToken = common.HexToAddress("0x0000000000000000000000000000000000000A11")
	testDest  = common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
)

func TestTransactionHashMatchesABIEncoding(t *testing.T) {
	chainID := big.NewInt(688688)
	tx := NewCall(testToken, PackTransfer(testDest, big.NewInt(5)), big.NewInt(3))

	// Recompute with the generic ABI encoder as an independent reference.
	bytes32, _ := abi.NewType("bytes32", "", nil)
	uint256, _ := abi.NewType("uint256", "", nil)
	uint8T, _ := abi.NewType("uint8", "", nil)
	address, _ := abi.NewType("address", "", nil)

	domainArgs := abi.Arguments{{Type: bytes32}, {Type: uint256}, {Type: address}}
	domainEnc, err := domainArgs.Pack(domainTypeHash, chainID, testSafe)
	require.NoError(t, err)
	domain := crypto.Keccak256Hash(domainEnc)
	assert.Equal(t, domain, DomainSeparator(chainID, testSafe))

	structArgs := abi.Arguments{
		{Type: bytes32}, {Type: address}, {Type: uint256}, {Type: bytes32}, {Type: uint8T},
		{Type: uint256}, {Type: uint256}, {Type: uint256}, {Type: address}, {Type: address}, {Type: uint256},
	}
	structEnc, err := structArgs.Pack(
		safeTxTypeHash, tx.To, tx.Value, crypto.Keccak256Hash(tx.Data), uint8(0),
		big.NewInt(0), big.NewInt(0), big.NewInt(0), common.Address{}, common.Address{}, big.NewInt(3),
	)
	require.NoError(t, err)

	want := crypto.Keccak256Hash([]byte{0x19, 0x01}, domain.Bytes(), crypto.Keccak256(structEnc))
	assert.Equal(t, want, TransactionHash(chainID, testSafe, tx))
}

func TestTransactionHashDependsOnNonceChainAndSafe(t *testing.T) {
	chainID := big.NewInt(1)
	data := PackTransfer(testDest, big.NewInt(1))
	base := TransactionHash(chainID, testSafe, NewCall(testToken, data, big.NewInt(0)))

	assert.NotEqual(t, base, TransactionHash(chainID, testSafe, NewCall(testToken, data, big.NewInt(1))))
	assert.NotEqual(t, base, TransactionHash(big.NewInt(2), testSafe, NewCall(testToken, data, big.NewInt(0))))
	assert.NotEqual(t, base, TransactionHash(chainID, testToken, NewCall(testToken, data, big.NewInt(0))))
	assert.Equal(t, base, TransactionHash(chainID, testSafe, Transaction{To: testToken, Data: data}))
}

func TestSignHashRecoversOwner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hash := TransactionHash(big.NewInt(1), testSafe, NewCall(testToken, nil, big.NewInt(0)))

	sig, err := SignHash(key, hash)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	assert.Contains(t, []byte{0x1f, 0x20}, sig[64])

	signer, err := RecoverSigner(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestNormalizeSignature(t *testing.T) {
	tests := []struct {
		name  string
		v     byte
		want  byte
		isErr bool
	}{
		{name: "v 27", v: 0x1b, want: 0x1f},
		{name: "v 28", v: 0x1c, want: 0x20},
		{name: "raw recovery id", v: 0x00, isErr: true},
		{name: "already shifted", v: 0x1f, isErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := make([]byte, SignatureLength)
			sig[0] = 0xaa
			sig[64] = tt.v

			out, err := NormalizeSignature(sig)
			if tt.isErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrSignature))
				var sigErr *SignatureError
				require.ErrorAs(t, err, &sigErr)
				assert.Equal(t, tt.v, sigErr.V)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out[64])
			assert.Equal(t, byte(0xaa), out[0])
			assert.Equal(t, tt.v, sig[64], "input must not be mutated")
		})
	}

	_, err := NormalizeSignature(make([]byte, 10))
	assert.ErrorIs(t, err, ErrSignature)
}

func TestPackAndUnpackRoundTrips(t *testing.T) {
	out, err := SafeABI.Methods["nonce"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)
	n, err := UnpackUint(SafeABI, "nonce", out)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n.Int64())

	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	out, err = SafeABI.Methods["getOwners"].Outputs.Pack([]common.Address{owner})
	require.NoError(t, err)
	owners, err := UnpackOwners(out)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{owner}, owners)

	h := common.HexToHash("0xdeadbeef")
	out, err = SafeABI.Methods["getTransactionHash"].Outputs.Pack([32]byte(h))
	require.NoError(t, err)
	got, err := UnpackHash(out)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	out, err = TokenABI.Methods["decimals"].Outputs.Pack(uint8(6))
	require.NoError(t, err)
	d, err := UnpackDecimals(out)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)
}

func TestPackSetupEncodesSingleOwner(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	data := PackSetup(owner)

	method, err := SafeABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "setup", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, []common.Address{owner}, args[0])
	assert.Equal(t, int64(1), args[1].(*big.Int).Int64())
}

func TestParseArtifact(t *testing.T) {
	hardhat := []byte(`{"contractName":"Safe","abi":[],"bytecode":"0x6080"}`)
	art, err := ParseArtifact(hardhat)
	require.NoError(t, err)
	assert.Equal(t, "Safe", art.ContractName)
	code, err := art.Code()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)

	foundry := []byte(`{"abi":[],"bytecode":{"object":"6080"}}`)
	art, err = ParseArtifact(foundry)
	require.NoError(t, err)
	code, err = art.Code()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)

	_, err = Artifact{Bytecode: "0x"}.Code()
	assert.ErrorIs(t, err, ErrEmptyBytecode)

	_, err = ParseArtifact([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadArtifactFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SafeProxyFactory.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"contractName":"SafeProxyFactory","bytecode":"0x00"}`), 0o600))

	art, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, "SafeProxyFactory", art.ContractName)

	_, err = LoadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
