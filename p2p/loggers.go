package p2p

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLogLevel applies a LOG_LEVEL config value. Unknown levels leave the logger untouched.
func SetLogLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(parsed)
	return nil
}

func logMsg(name string, fn string, msg string) {
	log.WithFields(logrus.Fields{"node": name, "fn": fn}).Info(msg)
}

func logDebug(name string, fn string, msg string, fields logrus.Fields) {
	log.WithFields(fields).WithFields(logrus.Fields{"node": name, "fn": fn}).Debug(msg)
}

func logError(name string, fn string, err error, msg string) {
	log.WithError(err).WithFields(logrus.Fields{"node": name, "fn": fn}).Error(msg)
}

func logHandlerError(name string, handlerName string, remoteAddr string, err error, input any) {
	log.WithError(err).WithFields(logrus.Fields{
		"node":    name,
		"handler": handlerName,
		"remote":  remoteAddr,
		"input":   input,
	}).Warn("handler failed")
}
