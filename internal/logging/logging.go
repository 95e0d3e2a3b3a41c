package logging

import (
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "vigilo-agent ", log.LstdFlags|log.LUTC)
}
