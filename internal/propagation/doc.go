// Package propagation turns existing labels into suggestions on other images.
//
// An Orchestrator runs three algorithms against a labels.Store:
//
//   - RunImageSimilarity copies every label of a source onto candidates that look the
//     same as a whole, scaling boxes to the candidate's size.
//   - RunObjectSimilarity crops each label and searches ranked candidates for it with
//     normalized cross-correlation.
//   - RunTracking follows the labels of an anchor frame through the frames around it,
//     narrowing each search to a window around the object's last position.
//
// Results go to the store as pending suggestions, or straight into the committed
// labels when Options.AutoAccept is set. Both paths drop anything that duplicates a
// committed label.
//
// # Cancellation
//
// Every run takes a context. Cancellation is checked before each comparison or frame;
// work already running finishes, nothing is rolled back, and the run returns the
// partial Summary with a nil error.
//
// # Progress
//
// Options.Progress receives (phase, current, total) updates, at most one per
// Settings.ProgressInterval plus a final one per phase. Calls never overlap.
package propagation
