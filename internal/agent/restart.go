package agent

import (
	"log"
	"os"
)

// processRestarter restarts the device by exiting; the service supervisor
// brings the process back up with the fresh configuration.
type processRestarter struct{}

func (processRestarter) Restart() {
	log.Println("[Agent] Restarting process.")
	os.Exit(0)
}
