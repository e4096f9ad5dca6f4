// Package main is the entry point for the onboarding Lambda function.
//
// The function backs the CloudFormation custom resource of the management
// account template: Create and Update register the StackSet and seed it,
// Delete tears every stack instance and the StackSet down. The result is
// reported back to CloudFormation through the presigned response URL.
package main

import (
	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imamik/stackfleet/internal/handlers"
)

func main() {
	lambda.Start(cfn.LambdaWrap(handlers.NewOnboarding(handlers.AWSSetup).Handle))
}
