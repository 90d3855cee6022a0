// Package server implements the MCP (Model Context Protocol) server for label propagation.
//
// This package provides a JSON-RPC 2.0 server that exposes one project directory:
// its committed labels, its pending suggestions and the three propagation strategies.
// An MCP client drives the review loop: label a few images, propagate, inspect the
// suggestions on a rendered overlay, then accept or reject them.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - notifications/cancelled: Stop an in-flight tools/call
//   - ping: Health check
//
// # Available Tools
//
// Labels:
//   - labels_get: Committed labels and pending suggestions of an image
//   - labels_set: Replace the committed labels of an image
//
// Similarity:
//   - image_similarity: Whole-image score by hash or histogram
//
// Propagation:
//   - propagate_image: Copy labels onto near-identical images
//   - propagate_object: Find each labeled object in similar images
//   - propagate_tracking: Follow labels through neighbouring frames
//
// Suggestions:
//   - suggestions_list, suggestion_accept, suggestions_accept_all
//   - suggestion_reject, suggestions_reject_all, suggestions_clear
//
// Review:
//   - render_overlay: Labels and suggestions drawn onto the image as PNG
//   - project_save: Write labels.json and flush the hash cache
//
// # Long-running Calls
//
// Tool calls run on their own goroutine so the read loop stays responsive. A
// propagate_* call whose request carries _meta.progressToken reports its phases as
// notifications/progress. notifications/cancelled with the call's id cancels its
// context; the run stops early and the response reports what had already been added,
// with "cancelled": true.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	p, err := project.Open(dir, nil, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := server.New(p, version).Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
