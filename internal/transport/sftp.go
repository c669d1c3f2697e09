package transport

import (
	"context"
	"fmt"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPConn is an SFTP session together with the SSH connection carrying it.
type SFTPConn struct {
	*sftp.Client
	ssh *ssh.Client
}

// DialSFTP connects to loc over SSH and starts an SFTP session. A port in
// loc overrides opts.Port. The caller must call Close when done.
func DialSFTP(ctx context.Context, loc Location, opts SSHOpts) (*SFTPConn, error) {
	if loc.Port != 0 {
		opts.Port = loc.Port
	}
	sshClient, err := DialSSH(ctx, loc.Host, loc.User, opts)
	if err != nil {
		return nil, err
	}
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	return &SFTPConn{Client: client, ssh: sshClient}, nil
}

func (c *SFTPConn) Close() error {
	err := c.Client.Close()
	if sshErr := c.ssh.Close(); sshErr != nil && err == nil {
		err = sshErr
	}
	return err
}
