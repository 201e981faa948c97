// Package configs provides the embedded configuration template for the
// foundry CLI. The template is embedded at build time so `foundry config
// init` works identically for source builds and binary releases.
package configs

import _ "embed"

// WorkspaceConfigTemplate is written by `foundry config init` as
// foundry.yaml in the working directory. Every key carries its default
// value, so the generated file is a no-op until edited.
//
//go:embed foundry.example.yaml
var WorkspaceConfigTemplate string
