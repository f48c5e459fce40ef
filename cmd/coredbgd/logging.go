package main

import (
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// newLogger builds the daemon's root logger: structured fields via logrus,
// a human-readable prefixed format for console output, and go-colorable so
// the colored output survives a Windows console too.
func newLogger(levelName string) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(colorable.NewColorableStdout())
	return log, nil
}
