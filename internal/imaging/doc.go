// Package imaging provides image access and pixel preparation for label propagation.
//
// This package sits between the propagation engine and image files. It owns decoding
// (behind the Decoder interface), the per-run decoded pixel cache, the longer-lived
// dimension cache, and the crop/downscale/channel-split helpers used by template matching.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - Regions are image.Rectangle values with Min inclusive and Max exclusive
//
// # Thread Safety
//
// ImageCache and Records are safe for concurrent use. Helper functions are stateless
// and can be called concurrently on different images.
//
// # Error Handling
//
// Functions return errors for:
//   - File I/O errors and undecodable files
//   - Crop regions that do not overlap the image
//
// Callers in the propagation engine treat these errors as "skip this image", never as a
// reason to abort a run.
//
// # Performance Considerations
//
// Decoded images are large. ImageCache is meant to be scoped to a single propagation
// run and cleared afterwards; Records only holds dimensions and may live for the whole
// project session.
package imaging
