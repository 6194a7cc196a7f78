package sshclient

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"pkt.systems/ait/schema"
)

// authMethods builds the client auth chain for a profile. The returned
// release func closes the agent connection, if any, once the handshake is
// done.
func (t *Transport) authMethods(profile schema.Profile, cred schema.Credential) ([]ssh.AuthMethod, func(), error) {
	release := func() {}
	var methods []ssh.AuthMethod
	switch profile.AuthType {
	case schema.AuthKey:
		if len(cred.PrivateKey) == 0 {
			return nil, release, schema.ErrMissingCredential
		}
		signer, err := ssh.ParsePrivateKey(cred.PrivateKey)
		if err != nil {
			return nil, release, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	case schema.AuthAgent:
		socket := t.cfg.AgentSocket
		if socket == "" {
			socket = os.Getenv("SSH_AUTH_SOCK")
		}
		if strings.TrimSpace(socket) == "" {
			return nil, release, errors.New("ssh agent unavailable: SSH_AUTH_SOCK is not set")
		}
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return nil, release, fmt.Errorf("ssh agent: %w", err)
		}
		release = func() { _ = conn.Close() }
		methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	default:
		if cred.Password == "" {
			return nil, release, schema.ErrMissingCredential
		}
		methods = append(methods, ssh.Password(cred.Password))
	}
	if cred.Password != "" || cred.TOTPSecret != "" {
		methods = append(methods, ssh.KeyboardInteractive(t.challengeResponder(cred)))
	}
	return methods, release, nil
}

// challengeResponder answers keyboard-interactive prompts. Prompts that ask
// for a code get the current TOTP value; the rest get the password.
func (t *Transport) challengeResponder(cred schema.Credential) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i, question := range questions {
			if cred.TOTPSecret != "" && (isCodePrompt(question) || cred.Password == "") {
				code, err := totp.GenerateCode(cred.TOTPSecret, t.cfg.Now())
				if err != nil {
					return nil, fmt.Errorf("totp: %w", err)
				}
				answers[i] = code
				continue
			}
			answers[i] = cred.Password
		}
		return answers, nil
	}
}

func isCodePrompt(question string) bool {
	q := strings.ToLower(question)
	for _, word := range []string{"code", "otp", "token", "verification", "one-time"} {
		if strings.Contains(q, word) {
			return true
		}
	}
	return false
}
