package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainPoses  = "orbitsplat/poses/v1"
	DomainParams = "orbitsplat/params/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PoseSetHash returns a stable identity for a pose sequence.
// Two sequences hash equal iff their canonical JSON is byte-identical.
func PoseSetHash(poses []CameraPose) (string, error) {
	canonical, err := MarshalCanonical(poses)
	if err != nil {
		return "", fmt.Errorf("PoseSetHash: %w", err)
	}
	return hashWithDomain(DomainPoses, canonical), nil
}

// ParamsHash returns a stable identity for a parameter object.
func ParamsHash(params map[string]any) (string, error) {
	canonical, err := MarshalCanonical(params)
	if err != nil {
		return "", fmt.Errorf("ParamsHash: %w", err)
	}
	return hashWithDomain(DomainParams, canonical), nil
}
