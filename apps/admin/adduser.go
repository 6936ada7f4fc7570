package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/campus/core/user"
)

// addUser updates or creates a staff user.User. Existing accounts get their names, role and password replaced.
func (cli *commandLine) addUser(uname, firstName, lastName string, role user.Role, pwd string) error {
	nu := user.NewUser{
		Username:  uname,
		Password:  pwd,
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
	}
	if err := nu.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, nu.Username)
	exists := err == nil
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return errors.Wrap(err, "finding user")
	}
	if !exists {
		usr = user.User{Username: nu.Username, CreatedAt: time.Now().UTC()}
	}
	usr.FirstName = nu.FirstName
	usr.LastName = nu.LastName
	usr.Role = nu.Role
	usr.Course = ""
	if err = usr.SetPassword(nu.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}

	if exists {
		err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return errors.Wrap(err, "saving user")
	}
	cli.logger.Info(fmt.Sprintf("%s %q (%s) saved", usr.Role, usr.Username, usr.FullName()))
	return nil
}
