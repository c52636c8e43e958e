// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package external implements a crypto.Signer that delegates the private-key
// operation to an external process (an HSM CLI, a PKCS#11 wrapper script, a
// KMS client binary) instead of holding key material in the capfd process.
// The issuer's CA key is the only signing operation in this system worth
// offloading this way, so this package has exactly one client:
// internal/issuer.LoadExternal.
package external

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandExecutor runs an external command template with {variable}
// substitution, the same shelling-out pattern the teacher's manufacturing
// station used for its own external signing hook.
type CommandExecutor struct {
	commandTemplate string
	timeout         time.Duration
}

// NewCommandExecutor builds an executor for commandTemplate, which may
// reference {requestfile} and {requestid}.
func NewCommandExecutor(commandTemplate string, timeout time.Duration) *CommandExecutor {
	return &CommandExecutor{commandTemplate: commandTemplate, timeout: timeout}
}

func (e *CommandExecutor) execute(ctx context.Context, variables map[string]string) (string, error) {
	command := e.commandTemplate
	for key, value := range variables {
		command = strings.ReplaceAll(command, "{"+key+"}", value)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("external signer command failed: %w", err)
	}
	return string(output), nil
}

// SigningRequest is the JSON payload written to a temp file and handed to
// the external command via {requestfile}.
type SigningRequest struct {
	Digest         string            `json:"digest"`
	RequestID      string            `json:"request_id"`
	Timestamp      time.Time         `json:"timestamp"`
	Issuer         string            `json:"issuer"`
	SigningOptions map[string]string `json:"signing_options"`
}

// SigningResponse is the JSON the external command is expected to print to
// stdout.
type SigningResponse struct {
	Signature string `json:"signature"` // base64
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// Signer implements crypto.Signer by shelling out to an external process
// for every Sign call, so the CA private key never needs to live in the
// capfd process's address space.
type Signer struct {
	publicKey crypto.PublicKey
	executor  *CommandExecutor
	issuerID  string
}

// NewSigner builds a Signer that reports publicKey as its Public() and
// delegates every Sign to executor, identifying itself as issuerID in each
// request (useful for HSM-side audit logs).
func NewSigner(publicKey crypto.PublicKey, executor *CommandExecutor, issuerID string) *Signer {
	return &Signer{publicKey: publicKey, executor: executor, issuerID: issuerID}
}

func (s *Signer) Public() crypto.PublicKey { return s.publicKey }

// Sign implements crypto.Signer by writing digest to a temp file-backed
// request, invoking the external command, and parsing its response.
func (s *Signer) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	requestID := fmt.Sprintf("req-%d", time.Now().UnixNano())

	hashFunc := "unknown"
	if opts != nil {
		hashFunc = opts.HashFunc().String()
	}

	req := SigningRequest{
		Digest:    base64.StdEncoding.EncodeToString(digest),
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Issuer:    s.issuerID,
		SigningOptions: map[string]string{
			"hash":     hashFunc,
			"key_type": keyTypeName(s.publicKey),
		},
	}

	requestData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("external signer: marshal request: %w", err)
	}

	requestFile, err := os.CreateTemp("", "capf-external-signer-*.json")
	if err != nil {
		return nil, fmt.Errorf("external signer: create temp request file: %w", err)
	}
	defer os.Remove(requestFile.Name())

	if _, err := requestFile.Write(requestData); err != nil {
		requestFile.Close()
		return nil, fmt.Errorf("external signer: write request file: %w", err)
	}
	if err := requestFile.Close(); err != nil {
		return nil, fmt.Errorf("external signer: close request file: %w", err)
	}

	output, err := s.executor.execute(context.Background(), map[string]string{
		"requestfile": requestFile.Name(),
		"requestid":   requestID,
	})
	if err != nil {
		return nil, fmt.Errorf("external signer: %w", err)
	}

	var resp SigningResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		return nil, fmt.Errorf("external signer: parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("external signer: %s", resp.Error)
	}

	signature, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("external signer: decode signature: %w", err)
	}
	return signature, nil
}

func keyTypeName(pub crypto.PublicKey) string {
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		return fmt.Sprintf("ECDSA-%s", key.Params().Name)
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA-%d", key.Size())
	default:
		return fmt.Sprintf("unknown-%T", key)
	}
}
