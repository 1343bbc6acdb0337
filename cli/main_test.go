// Copyright (c) The netavark authors
//
// SPDX-License-Identifier: Apache-2.0
//

package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func resetLogging(t *testing.T) {
	t.Helper()

	origLevel := logrus.GetLevel()
	origFormatter := logrus.StandardLogger().Formatter
	t.Cleanup(func() {
		logrus.SetLevel(origLevel)
		logrus.SetFormatter(origFormatter)
	})
}

func TestSetupLogging(t *testing.T) {
	assert := assert.New(t)
	resetLogging(t)

	assert.NoError(setupLogging("debug", "text"))
	assert.Equal(logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(&logrus.TextFormatter{}, logrus.StandardLogger().Formatter)

	assert.NoError(setupLogging("info", "json"))
	assert.IsType(&logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	assert.Error(setupLogging("nosuchlevel", "text"))
	assert.Error(setupLogging("info", "xml"))
}

func TestAppLogFormatFlag(t *testing.T) {
	assert := assert.New(t)
	resetLogging(t)

	app := newApp()

	err := app.Run([]string{name, "--log-format", "json", "version"})
	assert.NoError(err)
	assert.IsType(&logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	err = app.Run([]string{name, "--log-format", "yaml", "version"})
	assert.Error(err)
}
