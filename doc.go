// Package chparse reads Wikipedia XML dumps for the citation-needed
// snippet pipeline.
//
// The dumps are available from the wikimedia group here:
//    http://dumps.wikimedia.org/
//
// The pipeline itself lives in the pipeline package; the chparse
// command under tools wires it to a dump, a page id list and a SQLite
// database.
package chparse
