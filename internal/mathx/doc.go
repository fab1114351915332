// Package mathx provides log-space numerical helpers shared by the
// partition, component and query layers.
//
// Everything operates on unnormalized log weights so that callers never
// have to leave log space until a categorical draw is made.
package mathx
