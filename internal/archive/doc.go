// Package archive moves the whole planner state in and out of tar streams.
//
// An archive holds at most one "data.json" entry (the canonical document)
// and any number of "device-files/<deviceId>/<name>" regular files. Exports
// are plain tar; imports also accept gzip, zstd and bzip2 compressed tar.
//
// Imports are two-phase: every entry is validated and extracted into a
// private staging directory first, and live state is only replaced once the
// whole archive has passed.
package archive

// DocumentEntry is the archive entry name of the canonical document.
const DocumentEntry = "data.json"
