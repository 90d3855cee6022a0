// Package labels holds committed bounding-box labels and pending suggestions.
//
// The Store is the single place where propagated candidates meet ground truth. Its
// merge rules keep the two sets disjoint: a suggestion is never stored when it overlaps
// a committed label at or above the merge IoU, duplicate suggestions of the same class
// collapse to the higher-scoring one, and accepting a suggestion moves it into the
// label set rather than copying it.
//
// All Store methods are safe for concurrent use. Updates to one image are serialized by
// a per-image mutex; different images never contend.
package labels
