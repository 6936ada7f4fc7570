package main

import (
	"github.com/trezcool/campus/storage/database"
)

var (
	gooseRunFunc = database.RunMigrations // mockable
	resetDBFunc  = database.Reset         // mockable
)

func (cli *commandLine) migrate(args []string) error {
	command := "up"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	return gooseRunFunc(cli.db, cli.engine, command, args...)
}

// resetDB drops every table then migrates again. Uploaded files are left in place.
func (cli *commandLine) resetDB() error {
	if err := resetDBFunc(cli.db, cli.engine); err != nil {
		return err
	}
	cli.logger.Info("database reset")
	return nil
}
