// Package curation drives robust triangulation across a whole track set
// and assembles the final landmark output handed to bundle adjustment.
//
// Responsibilities: per-track dispatch over a bounded worker pool, the
// global minimum-support policy, drop accounting.
// Key types: Curator, SceneResult, Stats.
//
// Dependency rule: curation may depend on sfm and camera, but sfm never
// depends back on curation. Per-track estimation policy (mode,
// threshold) belongs to sfm.Config; the support-length policy lives
// here.
package curation
