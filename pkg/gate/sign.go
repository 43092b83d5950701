package gate

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SignatureFile is the signature artifact name under the report directory.
const SignatureFile = "gate_report.sig"

// ReportSignature attests to the report artifacts of one gate run.
type ReportSignature struct {
	JUnitHash    string    `json:"junit_hash"`
	CoverageHash string    `json:"coverage_hash"`
	Signature    string    `json:"signature"`
	PublicKey    string    `json:"public_key"`
	SignedAt     time.Time `json:"signed_at"`
	SignerID     string    `json:"signer_id"`
}

// SignerFunc signs bytes and returns a hex-encoded signature.
type SignerFunc func(data []byte) (string, error)

// Ed25519SignerFunc adapts an ed25519 private key to a SignerFunc.
func Ed25519SignerFunc(priv ed25519.PrivateKey) SignerFunc {
	return func(data []byte) (string, error) {
		return hex.EncodeToString(ed25519.Sign(priv, data)), nil
	}
}

// GenerateSigningKey creates a fresh ed25519 key pair.
func GenerateSigningKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("key generation failed: %w", err)
	}
	return pub, priv, nil
}

// SignReports hashes the two report artifacts in dir, signs the canonical
// hash payload, and writes the signature file alongside them.
func SignReports(dir, signerID string, pub ed25519.PublicKey, signer SignerFunc) (*ReportSignature, error) {
	junitHash, err := hashFile(filepath.Join(dir, JUnitReportFile))
	if err != nil {
		return nil, err
	}
	covHash, err := hashFile(filepath.Join(dir, CoverageReportFile))
	if err != nil {
		return nil, err
	}

	payload, err := signingPayload(junitHash, covHash)
	if err != nil {
		return nil, err
	}
	sig, err := signer(payload)
	if err != nil {
		return nil, fmt.Errorf("sign reports: %w", err)
	}

	reportSig := &ReportSignature{
		JUnitHash:    junitHash,
		CoverageHash: covHash,
		Signature:    sig,
		PublicKey:    hex.EncodeToString(pub),
		SignedAt:     time.Now().UTC(),
		SignerID:     signerID,
	}
	data, err := json.MarshalIndent(reportSig, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal signature: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SignatureFile), data, 0o600); err != nil {
		return nil, fmt.Errorf("write signature: %w", err)
	}
	return reportSig, nil
}

// VerifyReports re-hashes the artifacts in dir and checks both the hashes and
// the cryptographic signature recorded in the signature file.
func VerifyReports(dir string) (*ReportSignature, error) {
	data, err := os.ReadFile(filepath.Join(dir, SignatureFile))
	if err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}
	var reportSig ReportSignature
	if err := json.Unmarshal(data, &reportSig); err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}

	junitHash, err := hashFile(filepath.Join(dir, JUnitReportFile))
	if err != nil {
		return nil, err
	}
	if junitHash != reportSig.JUnitHash {
		return nil, fmt.Errorf("%s hash mismatch", JUnitReportFile)
	}
	covHash, err := hashFile(filepath.Join(dir, CoverageReportFile))
	if err != nil {
		return nil, err
	}
	if covHash != reportSig.CoverageHash {
		return nil, fmt.Errorf("%s hash mismatch", CoverageReportFile)
	}

	pub, err := hex.DecodeString(reportSig.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size")
	}
	sig, err := hex.DecodeString(reportSig.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	payload, err := signingPayload(reportSig.JUnitHash, reportSig.CoverageHash)
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		return nil, fmt.Errorf("signature verification failed")
	}
	return &reportSig, nil
}

func signingPayload(junitHash, covHash string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"junit_hash":    junitHash,
		"coverage_hash": covHash,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal signing payload: %w", err)
	}
	return payload, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
