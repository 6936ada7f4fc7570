package main

import (
	"context"
	"fmt"
)

// resetPassword stores a new password for uname and ends its session.
func (cli *commandLine) resetPassword(uname, pwd string) error {
	if err := cli.usrSvc.SetPassword(context.Background(), uname, pwd); err != nil {
		return err
	}
	cli.logger.Info(fmt.Sprintf("password of %q reset", uname))
	return nil
}
