/*
	Package pyramid plans and writes multiresolution pyramids of N-D arrays to chunked
	sinks.

	Each level is generated either from the original array or, when a completed finer
	level has an exact integer factor ratio and the LoopbackHeuristic agrees, by reading
	back that finer level ("loopback").  Chunks of a level are generated plane by plane
	along the slowest grid dimension: all chunks of one plane are distributed across a
	fixed WorkerPool, the coordinator waits for the plane to finish, and the
	CacheGovernor is consulted before the next plane.  At most one plane of chunks is
	in flight at any time.

	Levels are written in increasing index order, so a level used for loopback is always
	complete before it is read.
*/
package pyramid
