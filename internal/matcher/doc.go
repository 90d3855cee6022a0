// Package matcher finds where a cropped object appears in another image.
//
// Matching uses per-channel normalized cross-correlation averaged over R, G and B and
// mapped from [-1,1] to a [0,1] score. Large candidates are downscaled first; the scan
// can be restricted to a search rectangle and is split by rows across CPUs with each
// worker keeping its own best before a single merge.
//
// Scores below AbsoluteFloor never count as a match. Callers combine the floor with
// their own threshold through Accepts.
package matcher
