/*
	Package mip provides types, constants, and functions that have no other dependencies
	and can be used by all packages of the pyramid exporter.  This includes N-D points
	and regions, element data types and typed buffers, chunk serialization with
	compression and checksums, the error taxonomy of an export, and logging.
*/
package mip
