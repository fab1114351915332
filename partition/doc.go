// Package partition implements the Chinese Restaurant Process row
// partition that underlies a crosscat View.
//
// A Partition maps row ids to cluster labels. Labels are contiguous,
// 0..K-1, at all times: removing the last row of a cluster compacts the
// labels above it. Per-cluster row membership is tracked with roaring
// bitmaps so that bulk reassignment can iterate rows of a cluster in
// ascending order cheaply.
package partition
