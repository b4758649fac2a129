package cmd

import "errors"

var (
	errNoDest = errors.New("no destination: set --dest or dest in the config file")
	errNotDir = errors.New("not a directory")
)
