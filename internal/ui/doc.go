// Package ui provides terminal output components for the nodelink CLIs.
//
// These components follow a "run once and exit" pattern: they render styled
// output with Lipgloss but don't require user interaction. The interactive
// provisioning flow lives in the wizard package.
//
// # Components
//
//   - Header: command banner showing operation name and parameters
//   - Result: success/failure/warning boxes with ordered details
//   - NodeTable: discovered nodes, one per line
//   - StoreTable: credential store contents with secrets masked
//   - Prompts: password and confirmation prompts on the controlling terminal
//
// Example:
//
//	fmt.Println(ui.NewHeader("Provision", "nodelink-cfg provision",
//	    ui.Param{Key: "Node", Value: url},
//	    ui.Param{Key: "SSID", Value: ssid},
//	).Render())
//
// # Logging Integration
//
// This package expects logging to be controlled via the NODELINK_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the curated UI output to be displayed cleanly.
package ui
