package chain

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestSelectorMatchesKnownERC20(t *testing.T) {
	// balanceOf(address) has the well-known selector 0x70a08231.
	got := hex.EncodeToString(selBalanceOf20)
	if got != "70a08231" {
		t.Errorf("balanceOf(address) selector = %s, want 70a08231", got)
	}

	// allowance(address,address) = 0xdd62ed3e.
	got = hex.EncodeToString(selAllowance)
	if got != "dd62ed3e" {
		t.Errorf("allowance selector = %s, want dd62ed3e", got)
	}
}

func TestPackCallLayout(t *testing.T) {
	data := packCall(selBuy, intWord(7), uintWord(1), intWord(525_000))

	if len(data) != 4+3*32 {
		t.Fatalf("packed length = %d, want %d", len(data), 4+3*32)
	}
	if !bytes.Equal(data[:4], selBuy) {
		t.Error("selector not at head of call data")
	}

	tokenID := new(big.Int).SetBytes(data[4:36])
	if tokenID.Int64() != 7 {
		t.Errorf("word 0 = %s, want 7", tokenID)
	}
	maxCost := new(big.Int).SetBytes(data[68:100])
	if maxCost.Int64() != 525_000 {
		t.Errorf("word 2 = %s, want 525000", maxCost)
	}
}

func TestPackExecuteSignedLayout(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	inner := packCall(selBuy, intWord(7), uintWord(1), intWord(525_000))
	sig := bytes.Repeat([]byte{0xab}, 65)

	data := packExecuteSigned(target, inner, sig)

	if !bytes.Equal(data[:4], selExecuteSigned) {
		t.Error("selector not at head of call data")
	}
	addr, err := wordToAddress(data[4:], 0)
	if err != nil || addr != target.Hex() {
		t.Errorf("word 0 = %s, %v; want the target address", addr, err)
	}

	// Head words 1 and 2 are the offsets of the two dynamic tails.
	dataOff, err := wordToInt64(data[4:], 1)
	if err != nil || dataOff != 96 {
		t.Errorf("calldata offset = %d, %v; want 96", dataOff, err)
	}
	wantSigOff := int64(96 + 32 + pad32(len(inner)))
	sigOff, err := wordToInt64(data[4:], 2)
	if err != nil || sigOff != wantSigOff {
		t.Errorf("signature offset = %d, want %d", sigOff, wantSigOff)
	}

	// Each tail is a length word followed by the right-padded payload.
	innerLen, err := wordToInt64(data[4+96:], 0)
	if err != nil || innerLen != int64(len(inner)) {
		t.Errorf("calldata length = %d, want %d", innerLen, len(inner))
	}
	if !bytes.Equal(data[4+96+32:4+96+32+len(inner)], inner) {
		t.Error("calldata payload not copied verbatim")
	}
	sigLen, err := wordToInt64(data[4+int(sigOff):], 0)
	if err != nil || sigLen != 65 {
		t.Errorf("signature length = %d, want 65", sigLen)
	}
}

func TestSignCallAuthorizationRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	target := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	data := packCall(selBuy, intWord(7), uintWord(1), intWord(500_000))
	chainID := big.NewInt(137)

	sig, err := signCallAuthorization(key, wallet, target, data, chainID)
	if err != nil {
		t.Fatalf("signCallAuthorization: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}

	digest := crypto.Keccak256(wallet.Bytes(), target.Bytes(), data,
		common.LeftPadBytes(chainID.Bytes(), 32))
	pub, err := crypto.SigToPub(accounts.TextHash(digest), sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != crypto.PubkeyToAddress(key.PublicKey) {
		t.Error("recovered signer does not match the custodial key")
	}
}

func TestWordHelpers(t *testing.T) {
	data := append(
		common.LeftPadBytes(big.NewInt(42).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress("0x00000000000000000000000000000000000000aa").Bytes(), 32)...,
	)
	data = append(data, common.LeftPadBytes(big.NewInt(1).Bytes(), 32)...)

	v, err := wordToInt64(data, 0)
	if err != nil || v != 42 {
		t.Errorf("wordToInt64 = %d, %v; want 42, nil", v, err)
	}

	addr, err := wordToAddress(data, 1)
	if err != nil || addr != common.HexToAddress("0xaa").Hex() {
		t.Errorf("wordToAddress = %s, %v", addr, err)
	}

	b, err := wordToBool(data, 2)
	if err != nil || !b {
		t.Errorf("wordToBool = %v, %v; want true, nil", b, err)
	}

	if _, err := wordToInt64(data, 3); err == nil {
		t.Error("expected error reading past end of return data")
	}
}

func TestUnpackRevertReason(t *testing.T) {
	reason := "ERC20: transfer amount exceeds balance"

	payload := selector("Error(string)")
	payload = append(payload, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	payload = append(payload, common.LeftPadBytes(big.NewInt(int64(len(reason))).Bytes(), 32)...)
	padded := make([]byte, (len(reason)+31)/32*32)
	copy(padded, reason)
	payload = append(payload, padded...)

	if got := unpackRevertReason(payload); got != reason {
		t.Errorf("unpackRevertReason = %q, want %q", got, reason)
	}

	if got := unpackRevertReason([]byte{0x01, 0x02}); got != "" {
		t.Errorf("unpackRevertReason on garbage = %q, want empty", got)
	}
}
