package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code: 0 on success, 1
// on any error.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(stdout, stderr)
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		log := a.log
		if log == nil {
			log = newLogger(stderr, logrus.InfoLevel)
		}
		log.WithError(err).Error(failureMessage(cmd.Name()))
		return 1
	}
	return 0
}

func failureMessage(command string) string {
	switch command {
	case cmdRegistry:
		return "registry failed"
	case cmdAddress:
		return "address lookup failed"
	default:
		return "deployment failed"
	}
}

func newLogger(out io.Writer, lvl logrus.Level) *logrus.Entry {
	log := logrus.NewEntry(logrus.New())
	log.Logger.SetOutput(out)
	log.Logger.SetLevel(lvl)
	return log
}
