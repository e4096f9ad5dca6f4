// Package main is the entry point for the dispatcher Lambda function.
//
// The function is subscribed to the SNS topic and to Control Tower
// lifecycle events. It turns both into stack instance requests and creates
// them once no other operation is running on the StackSet.
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imamik/stackfleet/internal/handlers"
)

func main() {
	lambda.Start(handlers.NewDispatcher(handlers.AWSSetup).Handle)
}
