// Package similarity scores how alike two images are.
//
// Two fingerprints are supported: a 64-bit difference hash (compared by Hamming
// distance) and a 16-bin grayscale histogram (compared by cosine similarity). Both map
// to [0,1] with 1 meaning identical. Fingerprints are cached per path; hashes can be
// persisted to a project cache file through a debounced, best-effort writer.
package similarity
