package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the shared logger. An empty path logs to stdout.
func New(path string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	if len(path) == 0 {
		l.SetOutput(os.Stdout)
		return l
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		l.Fatal(err)
	}
	l.SetOutput(f)
	l.Info("Initializing rvsim log")
	return l
}
