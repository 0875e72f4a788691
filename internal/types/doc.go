// Package types defines the core roadmap planning entities.
//
// A RoadmapSession is one planning run: it holds the capacity configuration,
// the source references to pull work from, and the pipeline state machine
// position. The pipeline materializes the remaining entities as it runs:
//
//   - RoadmapItem: a unit of work normalized from a source record
//   - RoadmapItemSegment: a contiguous placement of (part of) one item on one
//     team's timeline; the item is the unit of identity, the segment is the
//     unit of placement
//   - RoadmapDependency: a directed edge between items, or from an item to an
//     external prerequisite
//   - RoadmapTheme: a reporting-level grouping of items
//   - RoadmapMilestone: a sprint-anchored checkpoint with completion tracking
//
// All entities are flat structs with JSON tags mirroring the wire format, and
// carry Validate/SetDefaults in the usual style so stores and handlers never
// persist half-formed rows.
package types
