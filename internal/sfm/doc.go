// Package sfm owns the robust-estimation core of the reconstruction
// pipeline: 2D feature tracks, the robust per-track triangulator and the
// shared reprojection scoring it is built on.
//
// Responsibilities: track and landmark data model, outlier rejection
// (RANSAC pair sampling and triplet growth), reprojection-error scoring,
// acceptance gating.
// Key types: Track2D, Landmark, RobustTriangulator.
//
// Dependency rule: sfm may depend on camera, geom and dlt, but never on
// curation, sceneio or storage. No SQL/database code is allowed in this
// package.
package sfm
