package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// The contract surface is small and fixed, so calls are packed by hand
// instead of going through a generated binding.

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

var (
	selCalculateBuyCost    = selector("calculateBuyCost(uint256,uint256)")
	selCalculateSellRefund = selector("calculateSellRefund(uint256,uint256)")
	selTokens              = selector("tokens(uint256)")
	selBuy                 = selector("buy(uint256,uint256,uint256)")
	selSell                = selector("sell(uint256,uint256)")
	selBalanceOf1155       = selector("balanceOf(address,uint256)")
	selBalanceOf20         = selector("balanceOf(address)")
	selAllowance           = selector("allowance(address,address)")
	selGetAddress          = selector("getAddress(address,uint256)")
	selExecuteSigned       = selector("executeSigned(address,bytes,bytes)")
)

func packCall(sel []byte, words ...[]byte) []byte {
	data := make([]byte, 0, 4+32*len(words))
	data = append(data, sel...)
	for _, w := range words {
		data = append(data, common.LeftPadBytes(w, 32)...)
	}
	return data
}

func uintWord(v uint64) []byte {
	return new(big.Int).SetUint64(v).Bytes()
}

func intWord(v int64) []byte {
	return big.NewInt(v).Bytes()
}

func addressWord(addr string) []byte {
	return common.HexToAddress(addr).Bytes()
}

// packExecuteSigned encodes executeSigned(target, data, signature). The
// bytes arguments are dynamic, so the head carries their tail offsets.
func packExecuteSigned(target common.Address, data, sig []byte) []byte {
	const head = 3 * 32
	out := make([]byte, 0, 4+head+64+pad32(len(data))+pad32(len(sig)))
	out = append(out, selExecuteSigned...)
	out = append(out, common.LeftPadBytes(target.Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(big.NewInt(head).Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(big.NewInt(int64(head+32+pad32(len(data)))).Bytes(), 32)...)
	out = append(out, bytesArg(data)...)
	out = append(out, bytesArg(sig)...)
	return out
}

// bytesArg encodes a dynamic bytes tail: length word plus right-padded
// payload.
func bytesArg(b []byte) []byte {
	out := make([]byte, 0, 32+pad32(len(b)))
	out = append(out, common.LeftPadBytes(big.NewInt(int64(len(b))).Bytes(), 32)...)
	out = append(out, common.RightPadBytes(b, pad32(len(b)))...)
	return out
}

func pad32(n int) int {
	return (n + 31) / 32 * 32
}

// signCallAuthorization signs the EIP-191 digest the smart wallet
// verifies before executing a relayed call: keccak over the wallet, the
// target, the calldata and the chain id, so a signature cannot be
// replayed against another wallet, contract or chain.
func signCallAuthorization(key *ecdsa.PrivateKey, wallet, target common.Address, data []byte, chainID *big.Int) ([]byte, error) {
	digest := crypto.Keccak256(wallet.Bytes(), target.Bytes(), data, common.LeftPadBytes(chainID.Bytes(), 32))
	return crypto.Sign(accounts.TextHash(digest), key)
}

// word extracts the i-th 32-byte return word.
func word(data []byte, i int) ([]byte, error) {
	if len(data) < (i+1)*32 {
		return nil, fmt.Errorf("return data too short: have %d bytes, want word %d", len(data), i)
	}
	return data[i*32 : (i+1)*32], nil
}

func wordToInt64(data []byte, i int) (int64, error) {
	w, err := word(data, i)
	if err != nil {
		return 0, err
	}
	v := new(big.Int).SetBytes(w)
	if !v.IsInt64() {
		return 0, fmt.Errorf("return word %d overflows int64: %s", i, v)
	}
	return v.Int64(), nil
}

func wordToUint64(data []byte, i int) (uint64, error) {
	w, err := word(data, i)
	if err != nil {
		return 0, err
	}
	v := new(big.Int).SetBytes(w)
	if !v.IsUint64() {
		return 0, fmt.Errorf("return word %d overflows uint64: %s", i, v)
	}
	return v.Uint64(), nil
}

func wordToAddress(data []byte, i int) (string, error) {
	w, err := word(data, i)
	if err != nil {
		return "", err
	}
	return common.BytesToAddress(w).Hex(), nil
}

func wordToBool(data []byte, i int) (bool, error) {
	w, err := word(data, i)
	if err != nil {
		return false, err
	}
	return new(big.Int).SetBytes(w).Sign() != 0, nil
}

// unpackRevertReason decodes the string payload of Error(string) revert
// data. Returns empty for anything that does not match.
func unpackRevertReason(data []byte) string {
	// 4-byte selector for Error(string) is 0x08c379a0.
	if len(data) < 4+32+32 {
		return ""
	}
	sel := selector("Error(string)")
	for i := 0; i < 4; i++ {
		if data[i] != sel[i] {
			return ""
		}
	}
	payload := data[4:]
	offset := new(big.Int).SetBytes(payload[:32])
	if !offset.IsUint64() || offset.Uint64() != 32 {
		return ""
	}
	length := new(big.Int).SetBytes(payload[32:64])
	if !length.IsUint64() || length.Uint64() > math.MaxInt32 {
		return ""
	}
	n := int(length.Uint64())
	if len(payload) < 64+n {
		return ""
	}
	return string(payload[64 : 64+n])
}
