package notification

import (
	"fmt"
	"log"
	"os"
)

// ShowBlockingError reports a fatal condition to the operator. It writes to
// stderr even when logging goes to a file, since the process is about to
// exit.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, message)
	fmt.Fprintf(os.Stderr, "%s\n\n%s\n", title, message)
}
