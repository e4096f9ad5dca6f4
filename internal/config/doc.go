// Package config defines the single configuration structure shared by the
// Lambda functions and the CLI.
//
// The Lambda functions read it from the environment with [FromEnv]; the CLI
// reads a YAML file with [LoadFile], falling back to the environment for
// anything the file leaves out. Either way the result is validated once and
// then passed by value into the provisioning components.
package config
