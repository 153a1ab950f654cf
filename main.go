package main

import (
	"os"

	"github.com/alantheprice/terminput/cmd"
	"github.com/alantheprice/terminput/pkg/utils"
)

func main() {
	// Commands initialize the logger with their configured path; main only
	// guarantees the file is flushed on the way out.
	if err := cmd.Execute(); err != nil {
		logger := utils.GetLogger("")
		logger.Logf("Application error: %v", err)
		logger.Close()
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := utils.CloseActiveLogger(); err != nil {
		os.Stderr.WriteString("Error closing logger: " + err.Error() + "\n")
	}
}
