// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

// name holds the name of this program.
const name = "netavark"

const usage = "Configure container network namespaces"

// version is set by the build.
var version = "0.1.0"

var navLog = logrus.WithField("source", "netavark")

// netavarkError is a failure carrying a numeric code. It is reported to the
// caller in its structured form on the failure channel.
type netavarkError struct {
	Message string `json:"error"`
	Errno   int    `json:"errno"`
}

func (e *netavarkError) Error() string {
	return e.Message
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = name
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "file, f",
			Usage: "path to the network options document",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "set the log level (trace, debug, info, warn, error)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "set the log format (text, json)",
		},
	}

	app.Before = func(context *cli.Context) error {
		if err := setupLogging(context.GlobalString("log-level"),
			context.GlobalString("log-format")); err != nil {
			return err
		}

		logrus.SetOutput(os.Stderr)
		return nil
	}

	app.Commands = []cli.Command{
		setupCLICommand,
		teardownCLICommand,
		versionCLICommand,
	}

	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fatal(err)
	}
}

// setupLogging configures the global logger from the log-level and
// log-format flag values.
func setupLogging(levelName, format string) error {
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	switch format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %s", format)
	}
	return nil
}

// fatal reports err on stderr and exits nonzero. Coded errors are written in
// their structured JSON form so callers can parse the errno.
func fatal(err error) {
	var coded *netavarkError
	if errors.As(err, &coded) {
		if data, jerr := json.Marshal(coded); jerr == nil {
			fmt.Fprintln(os.Stderr, string(data))
			os.Exit(1)
		}
	}

	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
