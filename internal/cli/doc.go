// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the 200model8 command line, built on cobra.
//
// Every command shares one loaded configuration and one slog logger,
// installed by the root command's PersistentPreRunE. Commands that run chat
// turns build a runtime (quota store, tool transport, permission gate and
// orchestrator) and answer tool approvals from the terminal.
//
// # Key Types
//
//   - rootFlags: global flags plus the loaded configuration
//   - runtime: the wired components one command works with
//   - session: drives turns and answers approval prompts
//
// # Usage
//
//	os.Exit(cli.Execute(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]...))
//
// # Commands
//
//   - serve: HTTP API with config hot reload
//   - chat: interactive chat with slash commands
//   - ask: one question, from arguments or stdin
//   - tool: call one tool and print its envelope
//   - models: catalog with today's usage
//   - version: build information
package cli
