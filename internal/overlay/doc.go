// Package overlay renders labels and suggestions onto an image for review.
//
// Committed labels are drawn as solid outlines and pending suggestions as dashed
// ones, each in a colour derived from its class id. Render returns the result as a
// base64-encoded PNG suitable for a tool response; Draw returns the raw image.
package overlay
