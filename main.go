package main

import (
	"fmt"
	"os"
	"time"

	"tokenexecutor/cmd/executor"
	"tokenexecutor/src/logging"

	logger "github.com/sirupsen/logrus"
)

var APP_NAME = os.Getenv("APP_NAME")

func main() {
	logging.LoadEnv()
	logging.SetupLogger()
	defer handlePanic()

	if err := (&executor.Executor{}).Start(); err != nil {
		logger.WithError(err).Fatal("Executor failed")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
