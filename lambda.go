package blobcast

import (
	"os"
	"strings"
)

// isLambda reports whether the process is running on AWS Lambda. The serve
// command uses this only for logging; ridge switches transports on its own.
func isLambda() bool {
	if strings.HasPrefix(os.Getenv("AWS_EXECUTION_ENV"), "AWS_Lambda") || os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		return true
	}
	return false
}
