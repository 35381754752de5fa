// Package pipeline orchestrates one run: download, transform, quality,
// cleanup, notify, in that fixed order.
//
// Failure containment follows the stage's role. A failed data stage
// (download, transform, quality) fails the run and skips the data stages
// after it; cleanup and notify still execute so disk hygiene and operator
// visibility never depend on a healthy dataset. A failed cleanup degrades an
// otherwise successful run to PARTIAL_SUCCESS. A failed notify is logged and
// changes nothing else.
//
// The run record is persisted after every stage transition, so an operator
// inspecting a crashed run sees exactly how far it got.
package pipeline
